package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"
)

// Hub fans committed ledgers out to the sockets of their owner.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.With("component", "ws_hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.UserID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

// Connections returns the number of open sockets for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// LedgerCommitted pushes the new snapshot to every socket of its owner.
func (h *Hub) LedgerCommitted(_ context.Context, l *domain.Ledger) {
	msg := mustEncode(MsgLedger, LedgerPayload{Ledger: l})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[l.UserID] {
		if !c.enqueue(msg) {
			h.log.Warn("ws client lagging, dropped ledger frame", "user_id", l.UserID)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			_ = c.Conn.Close()
		}
	}
}

func mustEncode(typ string, payload any) []byte {
	b, err := json.Marshal(Envelope{Type: typ, Payload: payload})
	if err != nil {
		panic(err)
	}
	return b
}
