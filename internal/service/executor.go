package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAttempts = 5
	defaultBackoff     = 5 * time.Millisecond
)

// ExecutorConfig tunes the transaction executor.
type ExecutorConfig struct {
	// MaxAttempts bounds OCC retries per operation.
	MaxAttempts int
	// EventRewardMax caps a single event reward. Zero means unbounded.
	EventRewardMax int64
	// Backoff is the base delay between conflicting attempts.
	Backoff time.Duration
}

// Result is the outcome of a ledger-mutating operation. Ledger is the
// committed snapshot the client should adopt.
type Result struct {
	Ledger *domain.Ledger         `json:"ledger"`
	Record *domain.PurchaseRecord `json:"record,omitempty"`
	// Replayed is set when the provider transaction was already recorded and
	// nothing was mutated.
	Replayed bool `json:"replayed,omitempty"`
	// AlreadyOwned is set when a real-money charge was recorded for an item
	// the user already had. The caller should refund.
	AlreadyOwned bool `json:"already_owned,omitempty"`
}

// Executor performs every ledger mutation through a version-checked
// commit with bounded retries.
type Executor struct {
	store     LedgerStore
	catalog   *catalog.Catalog
	cfg       ExecutorConfig
	listeners []LedgerListener
	tracer    trace.Tracer
	log       *slog.Logger
}

// NewExecutor creates a transaction executor
func NewExecutor(store LedgerStore, cat *catalog.Catalog, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Executor{
		store:   store,
		catalog: cat,
		cfg:     cfg,
		tracer:  otel.Tracer("portfolio_backend/service"),
		log:     logger.With("component", "executor"),
	}
}

// AddListener registers a post-commit hook.
func (e *Executor) AddListener(l LedgerListener) {
	e.listeners = append(e.listeners, l)
}

// Catalog returns the catalog prices are resolved against.
func (e *Executor) Catalog() *catalog.Catalog { return e.catalog }

type change struct {
	record   *domain.PurchaseRecord
	newItems []domain.OwnedItem
}

// mutate loads the ledger, lets fn change a copy and commits it guarded by
// the version that was read. Version conflicts reload and retry; errors from
// fn end the operation unchanged.
func (e *Executor) mutate(ctx context.Context, op, userID string, fn func(l *domain.Ledger) (*change, error)) (*domain.Ledger, *change, error) {
	start := time.Now()
	defer func() { CommitLatency.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	for attempt := 1; ; attempt++ {
		current, err := e.store.GetLedger(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, ErrLedgerNotFound
			}
			return nil, nil, fmt.Errorf("load ledger: %w", err)
		}

		next := current.Clone()
		ch, err := fn(next)
		if err != nil {
			return nil, nil, err
		}
		if ch == nil {
			ch = &change{}
		}

		err = e.store.CommitLedger(ctx, repository.LedgerCommit{
			Ledger:          next,
			ExpectedVersion: current.Version,
			NewItems:        ch.newItems,
			Record:          ch.record,
		})
		if err == nil {
			e.notify(ctx, next)
			return next, ch, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, nil, err
		}

		OCCConflicts.WithLabelValues(op).Inc()
		if attempt >= e.cfg.MaxAttempts {
			e.log.Warn("ledger conflict retries exhausted", "op", op, "user_id", userID, "attempts", attempt)
			return nil, nil, ErrTransactionConflict
		}
		if err := e.sleep(ctx, attempt); err != nil {
			return nil, nil, err
		}
	}
}

func (e *Executor) sleep(ctx context.Context, attempt int) error {
	d := e.cfg.Backoff << (attempt - 1)
	d += time.Duration(rand.Int63n(int64(e.cfg.Backoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// notify runs after the commit, so a caller that has gone away must not stop
// listeners from seeing it.
func (e *Executor) notify(ctx context.Context, l *domain.Ledger) {
	ctx = context.WithoutCancel(ctx)
	for _, lis := range e.listeners {
		lis.LedgerCommitted(ctx, l.Clone())
	}
}

func (e *Executor) startSpan(ctx context.Context, op, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("user.id", userID))
	return e.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
}

func (e *Executor) finish(span trace.Span, op string, err error) {
	PurchaseTotal.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Executor) resolveItem(itemID string) (domain.CatalogItem, error) {
	item, err := e.catalog.Resolve(itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return domain.CatalogItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		return domain.CatalogItem{}, err
	}
	return item, nil
}

func newRecord(userID string, typ domain.PurchaseType, method domain.PaymentMethod) *domain.PurchaseRecord {
	return &domain.PurchaseRecord{
		RecordID:      uuid.NewString(),
		UserID:        userID,
		Type:          typ,
		PaymentMethod: method,
		Status:        domain.PurchaseStatusSuccess,
	}
}

// PurchaseWithCredits spends credits on a locked item.
func (e *Executor) PurchaseWithCredits(ctx context.Context, userID, itemID string) (res *Result, err error) {
	const op = "purchase_credits"
	ctx, span := e.startSpan(ctx, op, userID, attribute.String("item.id", itemID))
	defer func() { e.finish(span, op, err) }()

	item, err := e.resolveItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.Free() || item.CreditPrice == nil || *item.CreditPrice <= 0 {
		return nil, fmt.Errorf("%w: %s has no credit price", ErrNotPurchasable, itemID)
	}
	price := *item.CreditPrice

	l, ch, err := e.mutate(ctx, op, userID, func(l *domain.Ledger) (*change, error) {
		if l.Owns(item.Category, item.ID) {
			return nil, ErrAlreadyOwned
		}
		if l.VirtualCurrency < price {
			return nil, ErrInsufficientFunds
		}
		l.VirtualCurrency -= price
		l.Grant(item.Category, item.ID)

		rec := newRecord(userID, domain.PurchaseTypeItem, domain.PaymentMethodCredits)
		rec.ItemID = item.ID
		rec.AmountCharged = price
		rec.Currency = domain.CurrencyCredits
		rec.CreditsDelta = -price
		return &change{
			record:   rec,
			newItems: []domain.OwnedItem{{Category: item.Category, ItemID: item.ID}},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("item purchased with credits", "user_id", userID, "item_id", itemID, "price", price, "balance", l.VirtualCurrency)
	return &Result{Ledger: l, Record: ch.record}, nil
}

// PurchaseWithRealMoney grants an item paid through the payment provider.
// Redelivery of the same providerTxID returns the original record.
func (e *Executor) PurchaseWithRealMoney(ctx context.Context, userID, itemID, providerTxID string, amount domain.Money) (res *Result, err error) {
	const op = "purchase_real_money"
	ctx, span := e.startSpan(ctx, op, userID,
		attribute.String("item.id", itemID),
		attribute.String("payment.id", providerTxID),
	)
	defer func() { e.finish(span, op, err) }()

	if providerTxID == "" {
		return nil, fmt.Errorf("%w: missing provider transaction id", ErrExternalPaymentFailure)
	}
	if amount.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if res, ok, err := e.replay(ctx, userID, providerTxID); err != nil || ok {
		return res, err
	}

	item, err := e.resolveItem(itemID)
	if err != nil {
		return nil, err
	}

	alreadyOwned := false
	l, ch, err := e.mutate(ctx, op, userID, func(l *domain.Ledger) (*change, error) {
		ch := &change{}
		alreadyOwned = !l.Grant(item.Category, item.ID)
		if !alreadyOwned {
			ch.newItems = []domain.OwnedItem{{Category: item.Category, ItemID: item.ID}}
		}

		txID := providerTxID
		rec := newRecord(userID, domain.PurchaseTypeItem, domain.PaymentMethodRealMoney)
		rec.ItemID = item.ID
		rec.AmountCharged = amount.Amount
		rec.Currency = amount.Currency
		rec.ProviderTransactionID = &txID
		ch.record = rec
		return ch, nil
	})
	if errors.Is(err, repository.ErrDuplicateProviderTransaction) {
		return e.mustReplay(ctx, userID, providerTxID)
	}
	if err != nil {
		return nil, err
	}

	if alreadyOwned {
		e.log.Warn("real money charge for owned item", "user_id", userID, "item_id", itemID, "payment_id", providerTxID)
	} else {
		e.log.Info("item purchased with real money", "user_id", userID, "item_id", itemID, "payment_id", providerTxID)
	}
	return &Result{Ledger: l, Record: ch.record, AlreadyOwned: alreadyOwned}, nil
}

// PurchaseCreditsPack credits the balance for a paid credit pack.
func (e *Executor) PurchaseCreditsPack(ctx context.Context, userID, providerTxID string, creditsGranted int64, amountPaid domain.Money) (res *Result, err error) {
	const op = "purchase_credits_pack"
	ctx, span := e.startSpan(ctx, op, userID,
		attribute.String("payment.id", providerTxID),
		attribute.Int64("credits", creditsGranted),
	)
	defer func() { e.finish(span, op, err) }()

	if providerTxID == "" {
		return nil, fmt.Errorf("%w: missing provider transaction id", ErrExternalPaymentFailure)
	}
	if creditsGranted <= 0 || amountPaid.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if res, ok, err := e.replay(ctx, userID, providerTxID); err != nil || ok {
		return res, err
	}

	l, ch, err := e.mutate(ctx, op, userID, func(l *domain.Ledger) (*change, error) {
		l.VirtualCurrency += creditsGranted

		txID := providerTxID
		rec := newRecord(userID, domain.PurchaseTypeCredits, domain.PaymentMethodRealMoney)
		rec.AmountCharged = amountPaid.Amount
		rec.Currency = amountPaid.Currency
		rec.CreditsDelta = creditsGranted
		rec.ProviderTransactionID = &txID
		return &change{record: rec}, nil
	})
	if errors.Is(err, repository.ErrDuplicateProviderTransaction) {
		return e.mustReplay(ctx, userID, providerTxID)
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("credits pack purchased", "user_id", userID, "credits", creditsGranted, "payment_id", providerTxID, "balance", l.VirtualCurrency)
	return &Result{Ledger: l, Record: ch.record}, nil
}

// ClaimEventReward grants creditAmount once per user.
func (e *Executor) ClaimEventReward(ctx context.Context, userID string, creditAmount int64) (res *Result, err error) {
	const op = "event_reward"
	ctx, span := e.startSpan(ctx, op, userID, attribute.Int64("credits", creditAmount))
	defer func() { e.finish(span, op, err) }()

	if creditAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.cfg.EventRewardMax > 0 && creditAmount > e.cfg.EventRewardMax {
		return nil, fmt.Errorf("%w: reward exceeds %d", ErrInvalidAmount, e.cfg.EventRewardMax)
	}

	l, ch, err := e.mutate(ctx, op, userID, func(l *domain.Ledger) (*change, error) {
		if l.EventRewardClaimed {
			return nil, ErrEventRewardClaimed
		}
		l.EventRewardClaimed = true
		l.VirtualCurrency += creditAmount

		rec := newRecord(userID, domain.PurchaseTypeEventReward, domain.PaymentMethodGrant)
		rec.Currency = domain.CurrencyCredits
		rec.CreditsDelta = creditAmount
		return &change{record: rec}, nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("event reward claimed", "user_id", userID, "credits", creditAmount)
	return &Result{Ledger: l, Record: ch.record}, nil
}

// replay returns the original outcome when providerTxID was already
// recorded. ok is false when there is nothing to replay.
func (e *Executor) replay(ctx context.Context, userID, providerTxID string) (*Result, bool, error) {
	rec, err := e.store.FindPurchaseByProviderTx(ctx, providerTxID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup provider transaction: %w", err)
	}
	if rec.UserID != userID {
		return nil, false, fmt.Errorf("%w: payment %s belongs to another user", ErrExternalPaymentFailure, providerTxID)
	}
	l, err := e.store.GetLedger(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, ErrLedgerNotFound
		}
		return nil, false, err
	}
	e.log.Info("duplicate payment callback replayed", "user_id", userID, "payment_id", providerTxID)
	return &Result{Ledger: l, Record: rec, Replayed: true}, true, nil
}

func (e *Executor) mustReplay(ctx context.Context, userID, providerTxID string) (*Result, error) {
	res, ok, err := e.replay(ctx, userID, providerTxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("provider transaction %s vanished after duplicate insert", providerTxID)
	}
	return res, nil
}
