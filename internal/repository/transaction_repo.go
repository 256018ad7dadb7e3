package repository

import (
	"context"
	"errors"

	"portfolio_backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const purchaseColumns = `seq, record_id, user_id, type, item_id, amount_charged, currency,
	credits_delta, payment_method, provider_transaction_id, status, created_at`

// PurchaseRepository stores the write-once purchase audit trail.
type PurchaseRepository struct {
	db *pgxpool.Pool
}

func NewPurchaseRepository(db *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// GetByUserID returns recent purchases for a user
func (r *PurchaseRepository) GetByUserID(ctx context.Context, userID string, limit int, before int64) ([]*domain.PurchaseRecord, error) {
	limit = ClampPageSize(limit)

	rows, err := r.db.Query(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchase_records
		 WHERE user_id = $1 AND ($2::bigint = 0 OR seq < $2::bigint)
		 ORDER BY seq DESC
		 LIMIT $3`,
		userID, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

// GetByProviderTx finds the record created for an external payment
func (r *PurchaseRepository) GetByProviderTx(ctx context.Context, providerTxID string) (*domain.PurchaseRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchase_records
		 WHERE provider_transaction_id = $1`,
		providerTxID,
	)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// CreateWithTx inserts a purchase record using an existing database transaction
func (r *PurchaseRepository) CreateWithTx(ctx context.Context, dbTx pgx.Tx, p *domain.PurchaseRecord) error {
	err := dbTx.QueryRow(ctx,
		`INSERT INTO purchase_records (record_id, user_id, type, item_id, amount_charged, currency,
		                               credits_delta, payment_method, provider_transaction_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING seq, created_at`,
		p.RecordID, p.UserID, p.Type, p.ItemID, p.AmountCharged, p.Currency,
		p.CreditsDelta, p.PaymentMethod, p.ProviderTransactionID, p.Status,
	).Scan(&p.Seq, &p.CreatedAt)
	if err != nil && isUniqueViolation(err, "purchase_records_provider_tx_idx") {
		return ErrDuplicateProviderTransaction
	}
	return err
}

func scanPurchase(row pgx.Row) (*domain.PurchaseRecord, error) {
	var p domain.PurchaseRecord
	err := row.Scan(&p.Seq, &p.RecordID, &p.UserID, &p.Type, &p.ItemID, &p.AmountCharged, &p.Currency,
		&p.CreditsDelta, &p.PaymentMethod, &p.ProviderTransactionID, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPurchases(rows pgx.Rows) ([]*domain.PurchaseRecord, error) {
	var out []*domain.PurchaseRecord
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
