package repository

import "portfolio_backend/internal/domain"

// LedgerCommit is one atomic write: the mutated ledger, the version it was
// read at, any newly owned items and the purchase record documenting it.
type LedgerCommit struct {
	Ledger          *domain.Ledger
	ExpectedVersion int64
	NewItems        []domain.OwnedItem
	Record          *domain.PurchaseRecord
}

// Page limits for purchase history.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampPageSize applies the default and maximum page sizes.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
