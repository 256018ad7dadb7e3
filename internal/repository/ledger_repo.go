package repository

import (
	"context"
	"errors"
	"fmt"

	"portfolio_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	db        *pgxpool.Pool
	purchases *PurchaseRepository
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db, purchases: NewPurchaseRepository(db)}
}

// GetLedger loads a ledger with its owned items.
func (r *LedgerRepository) GetLedger(ctx context.Context, userID string) (*domain.Ledger, error) {
	l := domain.NewLedger(userID, 0)
	err := r.db.QueryRow(ctx, `
		SELECT virtual_currency, active_effect, selected_video_id, selected_music_id,
		       event_reward_claimed, version, created_at, updated_at
		FROM ledgers
		WHERE user_id = $1
	`, userID).Scan(
		&l.VirtualCurrency, &l.ActiveEffect, &l.SelectedVideoID, &l.SelectedMusicID,
		&l.EventRewardClaimed, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT category, item_id FROM owned_items WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cat domain.Category
		var itemID string
		if err := rows.Scan(&cat, &itemID); err != nil {
			return nil, err
		}
		l.Grant(cat, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLedger inserts an empty ledger unless one exists, then returns the
// stored row. created is false when the ledger already existed.
func (r *LedgerRepository) CreateLedger(ctx context.Context, userID string, openingBalance int64) (l *domain.Ledger, created bool, err error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO ledgers (user_id, virtual_currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, openingBalance)
	if err != nil {
		return nil, false, err
	}
	l, err = r.GetLedger(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return l, tag.RowsAffected() == 1, nil
}

// CommitLedger applies c in a single transaction. The ledger row is updated
// only if its version still equals c.ExpectedVersion; otherwise nothing is
// written and ErrVersionConflict is returned. On success c.Ledger carries the
// new version and c.Record its sequence number.
func (r *LedgerRepository) CommitLedger(ctx context.Context, c LedgerCommit) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l := c.Ledger
	err = tx.QueryRow(ctx, `
		UPDATE ledgers
		SET virtual_currency = $3,
		    active_effect = $4,
		    selected_video_id = $5,
		    selected_music_id = $6,
		    event_reward_claimed = $7,
		    version = version + 1,
		    updated_at = NOW()
		WHERE user_id = $1 AND version = $2
		RETURNING version, updated_at
	`, l.UserID, c.ExpectedVersion, l.VirtualCurrency, l.ActiveEffect,
		l.SelectedVideoID, l.SelectedMusicID, l.EventRewardClaimed,
	).Scan(&l.Version, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update ledger: %w", err)
	}

	for _, it := range c.NewItems {
		if _, err := tx.Exec(ctx, `
			INSERT INTO owned_items (user_id, category, item_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, l.UserID, it.Category, it.ItemID); err != nil {
			return fmt.Errorf("insert owned item: %w", err)
		}
	}

	if c.Record != nil {
		if err := r.purchases.CreateWithTx(ctx, tx, c.Record); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindPurchaseByProviderTx returns the record for an external transaction id.
func (r *LedgerRepository) FindPurchaseByProviderTx(ctx context.Context, providerTxID string) (*domain.PurchaseRecord, error) {
	return r.purchases.GetByProviderTx(ctx, providerTxID)
}

// ListPurchases returns records newest first, strictly older than before
// when before is positive.
func (r *LedgerRepository) ListPurchases(ctx context.Context, userID string, limit int, before int64) ([]*domain.PurchaseRecord, error) {
	return r.purchases.GetByUserID(ctx, userID, limit, before)
}

// Ping checks the pool for readiness probes.
func (r *LedgerRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
