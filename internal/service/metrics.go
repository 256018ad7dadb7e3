package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PurchaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	OCCConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_version_conflicts_total",
			Help: "Ledger commits rejected by the version check",
		},
		[]string{"operation"},
	)

	CommitLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_commit_duration_seconds",
			Help:    "Time spent committing ledger mutations, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	PendingReconciliations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_pending_reconciliations",
			Help: "Verified payments waiting for a ledger commit",
		},
	)

	RejectedPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_rejected_payments_total",
			Help: "Verified payments that could not be applied and need a refund",
		},
	)
)

func init() {
	prometheus.MustRegister(PurchaseTotal, OCCConflicts, CommitLatency, PendingReconciliations, RejectedPayments)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch {
	case IsDefinitive(err):
		return "rejected"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	}
	return "error"
}
