// Package payment talks to the external payment provider: order creation,
// payment status lookups and signature verification.
package payment

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// Payment statuses reported by the provider.
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Order note keys. Notes round-trip through the provider so a payment can
// be attributed without a user session.
const (
	NoteUserID = "user_id"
	NoteKind   = "kind"
	NoteItemID = "item_id"
	NotePackID = "pack_id"
)

// Notes are free-form key/value pairs attached to an order. The provider
// encodes an empty set as [], which decodes to a nil map.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*n = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// OrderRequest describes an order to create. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    Notes
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Notes    Notes  `json:"notes"`
}

// Settled reports whether the provider has taken the customer's money.
func (p Payment) Settled() bool {
	return p.Status == StatusCaptured || p.Status == StatusAuthorized
}

// Gateway is the payment provider surface the checkout flow depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	VerifyCheckoutSignature(orderID, paymentID, signature string) error
	VerifyWebhookSignature(body []byte, signature string) error
	KeyID() string
}

// WebhookEvent is the subset of the provider webhook envelope we consume.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity Payment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

const EventPaymentCaptured = "payment.captured"
