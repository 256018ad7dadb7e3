package service

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyOwned       = errors.New("item already owned")
	ErrNotFound           = errors.New("not found")
	ErrLedgerNotFound     = fmt.Errorf("ledger %w", ErrNotFound)
	ErrItemNotFound       = fmt.Errorf("item %w", ErrNotFound)
	ErrPackNotFound       = fmt.Errorf("credit pack %w", ErrNotFound)
	ErrNotOwned           = errors.New("item not owned")
	ErrNotPurchasable     = errors.New("item cannot be purchased this way")
	ErrInvalidSlot        = errors.New("invalid selection slot")
	ErrCategoryMismatch   = errors.New("item category does not match slot")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEventRewardClaimed = errors.New("event reward already claimed")

	// ErrTransactionConflict means the ledger kept changing underneath the
	// operation until the retry budget ran out. Callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict, retry")

	ErrExternalPaymentFailure = errors.New("external payment failed")
	ErrInvalidSignature       = fmt.Errorf("%w: invalid signature", ErrExternalPaymentFailure)
)

// PendingReconciliationError is returned when a charge was verified but the
// ledger commit failed. The charge is persisted and will be replayed.
type PendingReconciliationError struct {
	ProviderTransactionID string
	Err                   error
}

func (e *PendingReconciliationError) Error() string {
	return fmt.Sprintf("payment %s pending reconciliation: %v", e.ProviderTransactionID, e.Err)
}

func (e *PendingReconciliationError) Unwrap() error { return ErrPaymentPendingReconciliation }

var ErrPaymentPendingReconciliation = errors.New("payment pending reconciliation")

// ErrPaymentRejected marks a verified charge that was recorded for refund
// instead of being applied.
var ErrPaymentRejected = errors.New("payment rejected for refund")

// IsDefinitive reports whether err is a business rule outcome that retrying
// cannot change.
func IsDefinitive(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAlreadyOwned),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotOwned),
		errors.Is(err, ErrNotPurchasable),
		errors.Is(err, ErrInvalidSlot),
		errors.Is(err, ErrCategoryMismatch),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrEventRewardClaimed),
		errors.Is(err, ErrExternalPaymentFailure):
		return true
	}
	return false
}
