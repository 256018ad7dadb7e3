package service

import (
	"context"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/repository"
)

// LedgerStore is the persistence the executor needs. It is implemented by
// repository.LedgerRepository (Postgres) and sqlite.Store.
type LedgerStore interface {
	GetLedger(ctx context.Context, userID string) (*domain.Ledger, error)
	CreateLedger(ctx context.Context, userID string, openingBalance int64) (*domain.Ledger, bool, error)
	CommitLedger(ctx context.Context, c repository.LedgerCommit) error
	FindPurchaseByProviderTx(ctx context.Context, providerTxID string) (*domain.PurchaseRecord, error)
	ListPurchases(ctx context.Context, userID string, limit int, before int64) ([]*domain.PurchaseRecord, error)
}

// ReconciliationStore persists verified charges whose commit failed.
type ReconciliationStore interface {
	CreatePending(ctx context.Context, p *domain.PendingReconciliation) error
	GetByProviderTx(ctx context.Context, providerTxID string) (*domain.PendingReconciliation, error)
	ListPending(ctx context.Context, limit int) ([]*domain.PendingReconciliation, error)
	CountPending(ctx context.Context) (int, error)
	MarkAttempt(ctx context.Context, id string, lastErr string) error
	MarkResolved(ctx context.Context, id string) error
}

// LedgerListener is notified after a ledger commit. Implementations must not
// block; failures are theirs to log.
type LedgerListener interface {
	LedgerCommitted(ctx context.Context, l *domain.Ledger)
}

// LedgerCache is a read-through cache for ledger snapshots.
type LedgerCache interface {
	Get(ctx context.Context, userID string) (*domain.Ledger, bool)
	Set(ctx context.Context, l *domain.Ledger)
	Invalidate(ctx context.Context, userID string)
}
