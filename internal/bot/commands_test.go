package bot

import (
	"context"
	"errors"
	"testing"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/service"

	"github.com/stretchr/testify/assert"
)

type stubPending struct {
	items []*domain.PendingReconciliation
	err   error
}

func (s stubPending) ListPending(_ context.Context, limit int) ([]*domain.PendingReconciliation, error) {
	if len(s.items) > limit {
		return s.items[:limit], s.err
	}
	return s.items, s.err
}

func (s stubPending) CountPending(context.Context) (int, error) { return len(s.items), s.err }

type stubReconciler struct{ report service.ReconcileReport }

func (s stubReconciler) RunOnce(context.Context) (service.ReconcileReport, error) {
	return s.report, nil
}

type stubLedgers map[string]*domain.Ledger

func (s stubLedgers) GetLedger(_ context.Context, userID string) (*domain.Ledger, error) {
	if l, ok := s[userID]; ok {
		return l, nil
	}
	return nil, service.ErrLedgerNotFound
}

func TestPendingCommand(t *testing.T) {
	ctx := context.Background()

	empty := NewCommands(stubPending{}, stubReconciler{}, stubLedgers{})
	assert.Contains(t, empty.Handle(ctx, "pending", ""), "No pending")

	c := NewCommands(stubPending{items: []*domain.PendingReconciliation{
		{ProviderTransactionID: "pay_1", UserID: "u<1>", Kind: domain.ReconciliationKindItem, ItemID: "video4", AmountMinor: 9900, Currency: "INR", Attempts: 2, LastError: "db down"},
		{ProviderTransactionID: "pay_2", UserID: "u2", Kind: domain.ReconciliationKindCreditsPack, PackID: "pack_small", Credits: 100, AmountMinor: 4900, Currency: "INR"},
	}}, stubReconciler{}, stubLedgers{})

	out := c.Handle(ctx, "pending", "")
	assert.Contains(t, out, "Pending payments: 2")
	assert.Contains(t, out, "u&lt;1&gt;")
	assert.Contains(t, out, "99.00 INR")
	assert.Contains(t, out, "pack_small (+100 credits)")
	assert.Contains(t, out, "db down")

	failing := NewCommands(stubPending{err: errors.New("boom")}, stubReconciler{}, stubLedgers{})
	assert.Contains(t, failing.Handle(ctx, "pending", ""), "boom")
}

func TestReconcileCommand(t *testing.T) {
	c := NewCommands(stubPending{}, stubReconciler{report: service.ReconcileReport{Checked: 3, Resolved: 2, Failed: 1}}, stubLedgers{})
	out := c.Handle(context.Background(), "reconcile", "")
	assert.Contains(t, out, "Checked: 3")
	assert.Contains(t, out, "Resolved: 2")
	assert.Contains(t, out, "Failed: 1")
}

func TestLedgerCommand(t *testing.T) {
	l := domain.NewLedger("u1", 340)
	l.PurchasedVideos.Add("video4")
	l.PurchasedVideos.Add("video2")
	c := NewCommands(stubPending{}, stubReconciler{}, stubLedgers{"u1": l})
	ctx := context.Background()

	out := c.Handle(ctx, "ledger", " u1 ")
	assert.Contains(t, out, "Credits: 340")
	assert.Contains(t, out, "video2, video4")
	assert.Contains(t, out, "Music: -")

	assert.Contains(t, c.Handle(ctx, "ledger", ""), "Usage")
	assert.Contains(t, c.Handle(ctx, "ledger", "ghost"), "No ledger")
	assert.Contains(t, c.Handle(ctx, "nope", ""), "Unknown command")
	assert.Equal(t, helpMessage, c.Handle(ctx, "help", ""))
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, isAdmin([]int64{1, 2}, 2))
	assert.False(t, isAdmin([]int64{1, 2}, 3))
	assert.False(t, isAdmin(nil, 1))
}
