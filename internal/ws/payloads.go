package ws

import "portfolio_backend/internal/domain"

// Envelope is every frame on the socket.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// client → server
type inbound struct {
	Type string `json:"type"`
}

// server → client
type LedgerPayload struct {
	Ledger *domain.Ledger `json:"ledger"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
