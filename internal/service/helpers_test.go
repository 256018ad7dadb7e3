package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/payment"
	"portfolio_backend/internal/repository"
	"portfolio_backend/internal/repository/sqlite"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *sqlite.Store
	catalog *catalog.Catalog
	exec    *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, ExecutorConfig{})
}

func newTestEnvWith(t *testing.T, cfg ExecutorConfig) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)

	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	return &testEnv{store: store, catalog: cat, exec: NewExecutor(store, cat, cfg)}
}

func (e *testEnv) openLedger(t *testing.T, userID string, balance int64) *domain.Ledger {
	t.Helper()
	l, _, err := e.store.CreateLedger(context.Background(), userID, balance)
	require.NoError(t, err)
	return l
}

func (e *testEnv) ledger(t *testing.T, userID string) *domain.Ledger {
	t.Helper()
	l, err := e.store.GetLedger(context.Background(), userID)
	require.NoError(t, err)
	return l
}

func (e *testEnv) purchases(t *testing.T, userID string) []*domain.PurchaseRecord {
	t.Helper()
	recs, err := e.store.ListPurchases(context.Background(), userID, repository.MaxPageSize, 0)
	require.NoError(t, err)
	return recs
}

// flakyStore fails commits on demand.
type flakyStore struct {
	LedgerStore
	mu        sync.Mutex
	commitErr error
	commits   int
}

func (f *flakyStore) CommitLedger(ctx context.Context, c repository.LedgerCommit) error {
	f.mu.Lock()
	f.commits++
	err := f.commitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.LedgerStore.CommitLedger(ctx, c)
}

func (f *flakyStore) setCommitErr(err error) {
	f.mu.Lock()
	f.commitErr = err
	f.mu.Unlock()
}

// fakeGateway is an in-memory payment provider.
type fakeGateway struct {
	mu        sync.Mutex
	orders    []payment.OrderRequest
	payments  map[string]*payment.Payment
	orderErr  error
	badSig    bool
	webhookOK bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*payment.Payment{}, webhookOK: true}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.orders = append(g.orders, req)
	return &payment.Order{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Notes: req.Notes}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (*payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) error {
	if g.badSig || signature != orderID+"|"+paymentID {
		return payment.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) error {
	if !g.webhookOK || signature == "" {
		return payment.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test" }

func (g *fakeGateway) addPayment(p payment.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = &p
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) NotifyAdmins(text string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
}

type recordingListener struct {
	mu      sync.Mutex
	ledgers []*domain.Ledger
}

func (r *recordingListener) LedgerCommitted(_ context.Context, l *domain.Ledger) {
	r.mu.Lock()
	r.ledgers = append(r.ledgers, l)
	r.mu.Unlock()
}

func inr(amount int64) domain.Money {
	return domain.Money{Amount: amount, Currency: "INR"}
}
