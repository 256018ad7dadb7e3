package domain

import "time"

// ReconciliationKind says which executor operation a pending reconciliation
// must replay.
type ReconciliationKind string

const (
	ReconciliationKindItem        ReconciliationKind = "item"
	ReconciliationKindCreditsPack ReconciliationKind = "credits_pack"
)

type ReconciliationStatus string

const (
	ReconciliationStatusPending  ReconciliationStatus = "pending"
	ReconciliationStatusResolved ReconciliationStatus = "resolved"
	// ReconciliationStatusRejected marks a verified charge that can never be
	// applied and must be refunded by an operator.
	ReconciliationStatusRejected ReconciliationStatus = "rejected"
)

// PendingReconciliation records a verified external charge whose ledger
// commit failed or that was rejected outright. It is keyed by the provider
// transaction id so replays stay idempotent.
type PendingReconciliation struct {
	ID                    string               `db:"id" json:"id"`
	UserID                string               `db:"user_id" json:"user_id"`
	Kind                  ReconciliationKind   `db:"kind" json:"kind"`
	ItemID                string               `db:"item_id" json:"item_id,omitempty"`
	PackID                string               `db:"pack_id" json:"pack_id,omitempty"`
	ProviderTransactionID string               `db:"provider_transaction_id" json:"provider_transaction_id"`
	AmountMinor           int64                `db:"amount_minor" json:"amount_minor"`
	Currency              string               `db:"currency" json:"currency"`
	Credits               int64                `db:"credits" json:"credits,omitempty"`
	Attempts              int                  `db:"attempts" json:"attempts"`
	LastError             string               `db:"last_error" json:"last_error,omitempty"`
	Status                ReconciliationStatus `db:"status" json:"status"`
	CreatedAt             time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time            `db:"updated_at" json:"updated_at"`
	ResolvedAt            *time.Time           `db:"resolved_at" json:"resolved_at,omitempty"`
}

// StatusOrPending defaults an unset status to pending.
func (p *PendingReconciliation) StatusOrPending() ReconciliationStatus {
	if p.Status == "" {
		return ReconciliationStatusPending
	}
	return p.Status
}
