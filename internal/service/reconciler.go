package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"

	"github.com/robfig/cron/v3"
)

const (
	DefaultReconcileSchedule = "@every 1m"
	reconcileBatchSize       = 50
)

// Reconciler replays parked payments through the executor until their
// ledger commit succeeds.
type Reconciler struct {
	exec     *Executor
	store    ReconciliationStore
	schedule string
	cron     *cron.Cron
	running  sync.Mutex
	log      *slog.Logger
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked  int
	Resolved int
	Failed   int
}

// NewReconciler validates schedule and creates a stopped reconciler.
func NewReconciler(exec *Executor, store ReconciliationStore, schedule string) (*Reconciler, error) {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return &Reconciler{
		exec:     exec,
		store:    store,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(parser)),
		log:      logger.With("component", "reconciler"),
	}, nil
}

// Start runs RunOnce on the configured schedule.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.log.Error("reconciliation pass failed", "error", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("reconciler started", "schedule", r.schedule)
	return nil
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce replays up to one batch of pending reconciliations. Passes never
// overlap; a call made while another pass runs waits for it.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	r.running.Lock()
	defer r.running.Unlock()

	var report ReconcileReport
	pending, err := r.store.ListPending(ctx, reconcileBatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending reconciliations: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		replayErr := r.replay(ctx, p)
		if replayErr == nil {
			if err := r.store.MarkResolved(ctx, p.ID); err != nil {
				r.log.Error("failed to mark reconciliation resolved", "id", p.ID, "error", err)
				report.Failed++
				continue
			}
			report.Resolved++
			r.log.Info("payment reconciled", "id", p.ID, "user_id", p.UserID, "payment_id", p.ProviderTransactionID)
			continue
		}

		report.Failed++
		if err := r.store.MarkAttempt(ctx, p.ID, replayErr.Error()); err != nil {
			r.log.Error("failed to record reconciliation attempt", "id", p.ID, "error", err)
		}
		level := slog.LevelWarn
		if IsDefinitive(replayErr) {
			level = slog.LevelError
		}
		r.log.Log(ctx, level, "reconciliation attempt failed",
			"id", p.ID, "payment_id", p.ProviderTransactionID, "attempts", p.Attempts+1, "error", replayErr)
	}

	if n, err := r.store.CountPending(ctx); err == nil {
		PendingReconciliations.Set(float64(n))
	}
	return report, nil
}

func (r *Reconciler) replay(ctx context.Context, p *domain.PendingReconciliation) error {
	paid := domain.Money{Amount: p.AmountMinor, Currency: p.Currency}
	switch p.Kind {
	case domain.ReconciliationKindItem:
		_, err := r.exec.PurchaseWithRealMoney(ctx, p.UserID, p.ItemID, p.ProviderTransactionID, paid)
		return err
	case domain.ReconciliationKindCreditsPack:
		_, err := r.exec.PurchaseCreditsPack(ctx, p.UserID, p.ProviderTransactionID, p.Credits, paid)
		return err
	}
	return errors.New("unknown reconciliation kind " + string(p.Kind))
}
