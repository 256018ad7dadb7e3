// Package sqlite provides a SQLite-backed ledger store for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/repository"
	"portfolio_backend/internal/repository/sqlite/migrations"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists ledgers, purchase records and reconciliations in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection keeps commits serialised without SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the handle for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// GetLedger loads a ledger with its owned items.
func (s *Store) GetLedger(ctx context.Context, userID string) (*domain.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return getLedger(ctx, s.sqlDB, userID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getLedger(ctx context.Context, q querier, userID string) (*domain.Ledger, error) {
	l := domain.NewLedger(userID, 0)
	var claimed int
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx,
		`SELECT virtual_currency, active_effect, selected_video_id, selected_music_id,
		        event_reward_claimed, version, created_at, updated_at
		 FROM ledgers WHERE user_id = ?`,
		userID,
	).Scan(&l.VirtualCurrency, &l.ActiveEffect, &l.SelectedVideoID, &l.SelectedMusicID,
		&claimed, &l.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	l.EventRewardClaimed = claimed != 0
	l.CreatedAt = fromMillis(createdAt)
	l.UpdatedAt = fromMillis(updatedAt)

	rows, err := q.QueryContext(ctx, `SELECT category, item_id FROM owned_items WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat domain.Category
		var itemID string
		if err := rows.Scan(&cat, &itemID); err != nil {
			return nil, fmt.Errorf("scan owned item: %w", err)
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
func (s *Store) CreateLedger(ctx context.Context, userID string, openingBalance int64) (*domain.Ledger, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, fmt.Errorf("user id is required")
	}
	now := toMillis(time.Now())
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ledgers (user_id, virtual_currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, openingBalance, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create ledger: %w", err)
	}
	n, _ := res.RowsAffected()
	l, err := s.GetLedger(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return l, n == 1, nil
}

// CommitLedger applies c in a single transaction guarded by the ledger
// version. See repository.LedgerRepository.CommitLedger.
func (s *Store) CommitLedger(ctx context.Context, c repository.LedgerCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l := c.Ledger
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE ledgers
		 SET virtual_currency = ?, active_effect = ?, selected_video_id = ?, selected_music_id = ?,
		     event_reward_claimed = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		l.VirtualCurrency, l.ActiveEffect, l.SelectedVideoID, l.SelectedMusicID,
		boolToInt(l.EventRewardClaimed), toMillis(now), l.UserID, c.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return repository.ErrVersionConflict
	}

	for _, it := range c.NewItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO owned_items (user_id, category, item_id, acquired_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			l.UserID, it.Category, it.ItemID, toMillis(now),
		); err != nil {
			return fmt.Errorf("insert owned item: %w", err)
		}
	}

	if p := c.Record; p != nil {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO purchase_records (record_id, user_id, type, item_id, amount_charged, currency,
			                               credits_delta, payment_method, provider_transaction_id, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.RecordID, p.UserID, p.Type, p.ItemID, p.AmountCharged, p.Currency,
			p.CreditsDelta, p.PaymentMethod, p.ProviderTransactionID, p.Status, toMillis(now),
		)
		if err != nil {
			if isUniqueViolation(err, "purchase_records.provider_transaction_id") {
				return repository.ErrDuplicateProviderTransaction
			}
			return fmt.Errorf("insert purchase record: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.Seq = seq
		p.CreatedAt = fromMillis(toMillis(now))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	l.Version = c.ExpectedVersion + 1
	l.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

const purchaseColumns = `seq, record_id, user_id, type, item_id, amount_charged, currency,
	credits_delta, payment_method, provider_transaction_id, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row scanner) (*domain.PurchaseRecord, error) {
	var p domain.PurchaseRecord
	var createdAt int64
	if err := row.Scan(&p.Seq, &p.RecordID, &p.UserID, &p.Type, &p.ItemID, &p.AmountCharged, &p.Currency,
		&p.CreditsDelta, &p.PaymentMethod, &p.ProviderTransactionID, &p.Status, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// FindPurchaseByProviderTx returns the record for an external transaction id.
func (s *Store) FindPurchaseByProviderTx(ctx context.Context, providerTxID string) (*domain.PurchaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE provider_transaction_id = ?`,
		providerTxID,
	)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return p, nil
}

// ListPurchases returns records newest first, strictly older than before
// when before is positive.
func (s *Store) ListPurchases(ctx context.Context, userID string, limit int, before int64) ([]*domain.PurchaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = repository.ClampPageSize(limit)
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchase_records
		 WHERE user_id = ? AND (? = 0 OR seq < ?)
		 ORDER BY seq DESC
		 LIMIT ?`,
		userID, before, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []*domain.PurchaseRecord
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const reconciliationColumns = `id, user_id, kind, item_id, pack_id, provider_transaction_id, amount_minor,
	currency, credits, attempts, last_error, status, created_at, updated_at, resolved_at`

func scanReconciliation(row scanner) (*domain.PendingReconciliation, error) {
	var p domain.PendingReconciliation
	var createdAt, updatedAt int64
	var resolvedAt sql.NullInt64
	if err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.ItemID, &p.PackID, &p.ProviderTransactionID,
		&p.AmountMinor, &p.Currency, &p.Credits, &p.Attempts, &p.LastError, &p.Status,
		&createdAt, &updatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		p.ResolvedAt = &t
	}
	return &p, nil
}

// CreatePending stores a verified charge that still needs a ledger commit, or
// one rejected for refund. A second call for the same provider transaction is
// a no-op.
func (s *Store) CreatePending(ctx context.Context, p *domain.PendingReconciliation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := toMillis(time.Now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pending_reconciliations (id, user_id, kind, item_id, pack_id, provider_transaction_id,
		                                      amount_minor, currency, credits, last_error, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider_transaction_id) DO NOTHING`,
		p.ID, p.UserID, p.Kind, p.ItemID, p.PackID, p.ProviderTransactionID,
		p.AmountMinor, p.Currency, p.Credits, p.LastError, p.StatusOrPending(), now, now,
	)
	if err != nil {
		return fmt.Errorf("create reconciliation: %w", err)
	}
	return nil
}

// GetByProviderTx retrieves a reconciliation by provider transaction id.
func (s *Store) GetByProviderTx(ctx context.Context, providerTxID string) (*domain.PendingReconciliation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+reconciliationColumns+` FROM pending_reconciliations WHERE provider_transaction_id = ?`,
		providerTxID,
	)
	p, err := scanReconciliation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	return p, nil
}

// ListPending returns unresolved reconciliations, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*domain.PendingReconciliation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+reconciliationColumns+`
		 FROM pending_reconciliations
		 WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingReconciliation
	for rows.Next() {
		p, err := scanReconciliation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPending returns the number of unresolved reconciliations.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_reconciliations WHERE status = 'pending'`,
	).Scan(&n)
	return n, err
}

// MarkAttempt records a failed replay.
func (s *Store) MarkAttempt(ctx context.Context, id string, lastErr string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE pending_reconciliations
		 SET attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		lastErr, toMillis(time.Now()), id,
	)
	return err
}

// MarkResolved closes a reconciliation once its ledger commit exists.
func (s *Store) MarkResolved(ctx context.Context, id string) error {
	now := toMillis(time.Now())
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE pending_reconciliations
		 SET status = 'resolved', resolved_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		now, now, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return column == "" || strings.Contains(sqliteErr.Error(), column)
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, column)
}

const migrationTable = "schema_migrations"

// applyMigrations executes embedded migrations at most once per file.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := string(content)
		if i := strings.Index(upSQL, "-- +migrate Up"); i >= 0 {
			upSQL = upSQL[i+len("-- +migrate Up"):]
		}
		if j := strings.Index(upSQL, "-- +migrate Down"); j >= 0 {
			upSQL = upSQL[:j]
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}
