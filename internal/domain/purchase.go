package domain

import "time"

// PurchaseType says what a purchase record paid for.
type PurchaseType string

const (
	PurchaseTypeItem        PurchaseType = "item"
	PurchaseTypeCredits     PurchaseType = "credits"
	PurchaseTypeEventReward PurchaseType = "event_reward"
)

// PaymentMethod says how a purchase record was paid.
type PaymentMethod string

const (
	PaymentMethodCredits   PaymentMethod = "credits"
	PaymentMethodRealMoney PaymentMethod = "real_money"
	PaymentMethodGrant     PaymentMethod = "grant"
)

// PurchaseStatus is always success: failed attempts never produce a record.
type PurchaseStatus string

const PurchaseStatusSuccess PurchaseStatus = "success"

// CurrencyCredits is the currency label used for amounts paid in credits.
const CurrencyCredits = "credits"

// PurchaseRecord is the write-once audit entry committed together with the
// ledger mutation it documents.
type PurchaseRecord struct {
	RecordID              string         `db:"record_id" json:"record_id"`
	Seq                   int64          `db:"seq" json:"seq"`
	UserID                string         `db:"user_id" json:"user_id"`
	Type                  PurchaseType   `db:"type" json:"type"`
	ItemID                string         `db:"item_id" json:"item_id,omitempty"`
	AmountCharged         int64          `db:"amount_charged" json:"amount_charged"`
	Currency              string         `db:"currency" json:"currency"`
	CreditsDelta          int64          `db:"credits_delta" json:"credits_delta"`
	PaymentMethod         PaymentMethod  `db:"payment_method" json:"payment_method"`
	ProviderTransactionID *string        `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	Status                PurchaseStatus `db:"status" json:"status"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
}

// PurchasePage is one page of a user's purchase history, newest first.
// NextCursor is zero when there are no older records.
type PurchasePage struct {
	Records    []*PurchaseRecord `json:"records"`
	NextCursor int64             `json:"next_cursor,omitempty"`
}
