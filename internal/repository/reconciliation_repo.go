package repository

import (
	"context"
	"errors"

	"portfolio_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reconciliationColumns = `id, user_id, kind, item_id, pack_id, provider_transaction_id, amount_minor,
	currency, credits, attempts, last_error, status, created_at, updated_at, resolved_at`

type ReconciliationRepository struct {
	db *pgxpool.Pool
}

func NewReconciliationRepository(db *pgxpool.Pool) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// CreatePending stores a verified charge that still needs a ledger commit, or
// one rejected for refund. A second call for the same provider transaction is
// a no-op.
func (r *ReconciliationRepository) CreatePending(ctx context.Context, p *domain.PendingReconciliation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pending_reconciliations (id, user_id, kind, item_id, pack_id, provider_transaction_id,
		                                     amount_minor, currency, credits, last_error, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider_transaction_id) DO NOTHING
	`, p.ID, p.UserID, p.Kind, p.ItemID, p.PackID, p.ProviderTransactionID,
		p.AmountMinor, p.Currency, p.Credits, p.LastError, p.StatusOrPending())
	return err
}

// GetByProviderTx retrieves a reconciliation by provider transaction id
func (r *ReconciliationRepository) GetByProviderTx(ctx context.Context, providerTxID string) (*domain.PendingReconciliation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reconciliationColumns+`
		FROM pending_reconciliations
		WHERE provider_transaction_id = $1
	`, providerTxID)
	p, err := scanReconciliation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPending retrieves unresolved reconciliations, oldest first
func (r *ReconciliationRepository) ListPending(ctx context.Context, limit int) ([]*domain.PendingReconciliation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+reconciliationColumns+`
		FROM pending_reconciliations
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PendingReconciliation
	for rows.Next() {
		p, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPending returns the number of unresolved reconciliations
func (r *ReconciliationRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM pending_reconciliations WHERE status = 'pending'
	`).Scan(&n)
	return n, err
}

// MarkAttempt records a failed replay
func (r *ReconciliationRepository) MarkAttempt(ctx context.Context, id string, lastErr string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE pending_reconciliations
		SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, lastErr)
	return err
}

// MarkResolved closes a reconciliation once its ledger commit exists
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pending_reconciliations
		SET status = 'resolved', resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReconciliation(row pgx.Row) (*domain.PendingReconciliation, error) {
	var p domain.PendingReconciliation
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.ItemID, &p.PackID, &p.ProviderTransactionID,
		&p.AmountMinor, &p.Currency, &p.Credits, &p.Attempts, &p.LastError, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &p.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
