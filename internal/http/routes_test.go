package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"portfolio_backend/internal/catalog"
	apihttp "portfolio_backend/internal/http"
	"portfolio_backend/internal/http/handlers"
	"portfolio_backend/internal/http/middleware"
	"portfolio_backend/internal/payment"
	"portfolio_backend/internal/repository/sqlite"
	"portfolio_backend/internal/service"
	"portfolio_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keySecret     = "key-secret"
	webhookSecret = "hook-secret"
)

// fakeProvider is a minimal stand-in for the gateway's REST API.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]payment.Order
	payments map[string]payment.Payment
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/orders":
		var o payment.Order
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p.seq++
		o.ID = fmt.Sprintf("order_%d", p.seq)
		o.Status = "created"
		p.orders[o.ID] = o
		_ = json.NewEncoder(w).Encode(o)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payments/"):
		pay, ok := p.payments[strings.TrimPrefix(r.URL.Path, "/payments/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(pay)
	default:
		http.NotFound(w, r)
	}
}

// capture marks the order paid and returns the checkout widget response.
func (p *fakeProvider) capture(orderID, paymentID string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := p.orders[orderID]
	p.payments[paymentID] = payment.Payment{
		ID: paymentID, OrderID: orderID, Amount: o.Amount, Currency: o.Currency,
		Status: payment.StatusCaptured, Notes: o.Notes,
	}
	return map[string]string{
		"order_id":   orderID,
		"payment_id": paymentID,
		"signature":  payment.Sign([]byte(orderID+"|"+paymentID), keySecret),
	}
}

type apiEnv struct {
	router   *gin.Engine
	provider *fakeProvider
	store    *sqlite.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("routes-test-secret")
	middleware.InitRedisRateLimiter(nil)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cat, err := catalog.Default()
	require.NoError(t, err)

	provider := &fakeProvider{orders: map[string]payment.Order{}, payments: map[string]payment.Payment{}}
	providerSrv := httptest.NewServer(provider)
	t.Cleanup(providerSrv.Close)
	gw := payment.NewRazorpayClient(providerSrv.URL, "rzp_test_key", keySecret, webhookSecret)

	exec := service.NewExecutor(store, cat, service.ExecutorConfig{Backoff: time.Millisecond})
	ledgers := service.NewLedgerService(store, nil, 100)
	exec.AddListener(ledgers)
	checkout := service.NewCheckoutService(exec, gw, store)

	hub := ws.NewHub()
	exec.AddListener(hub)
	t.Cleanup(hub.Close)

	h := handlers.NewHandler(ledgers, exec, checkout, handlers.HandlerConfig{EventRewardCredits: 25})
	r := gin.New()
	r.Use(middleware.RequestLogger())
	apihttp.RegisterRoutes(r, h, handlers.NewHealthHandler(handlers.HealthDeps{Store: store, Backlog: store, Catalog: cat, Version: "test"}), hub, apihttp.RouteConfig{
		APIRateLimit:       1000,
		APIRateWindow:      time.Minute,
		PurchaseRateLimit:  1000,
		PurchaseRateWindow: time.Minute,
	})
	return &apiEnv{router: r, provider: provider, store: store}
}

func (e *apiEnv) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := service.GenerateJWT(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func balanceOf(t *testing.T, body map[string]any) float64 {
	t.Helper()
	if l, ok := body["ledger"].(map[string]any); ok {
		body = l
	}
	v, ok := body["virtual_currency"].(float64)
	require.True(t, ok, "no virtual_currency in %v", body)
	return v
}

func TestHealthAndCatalog(t *testing.T) {
	env := newAPIEnv(t)

	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["cache"])
	assert.EqualValues(t, 0, body["pending_reconciliations"])
	assert.EqualValues(t, 12, body["catalog_items"])
	assert.EqualValues(t, 3, body["credit_packs"])

	code, body = env.do(t, http.MethodGet, "/api/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "INR", body["currency"])
	assert.Len(t, body["items"], 12)
	assert.Len(t, body["credit_packs"], 3)
}

func TestMeRequiresAuthAndOpensLedger(t *testing.T) {
	env := newAPIEnv(t)

	code, _ := env.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["user_id"])
	assert.Equal(t, float64(100), balanceOf(t, body))
	assert.Equal(t, []any{}, body["purchased_videos"])
}

func TestCreditPurchaseFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/purchases/credits", "alice", map[string]string{"item_id": "video2"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(20), balanceOf(t, body))

	code, body = env.do(t, http.MethodPost, "/api/v1/purchases/credits", "alice", map[string]string{"item_id": "video2"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_owned", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/v1/purchases/credits", "alice", map[string]string{"item_id": "video3"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "insufficient_funds", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/v1/purchases/credits", "alice", map[string]string{"item_id": "video5"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "not_purchasable", body["code"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/purchases/credits", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/api/v1/purchases/credits", "bob", map[string]string{"item_id": "video2"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ledger_not_found", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/v1/me/purchases?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["records"], 1)

	code, _ = env.do(t, http.MethodGet, "/api/v1/me/purchases?cursor=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSelectionAndEventReward(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/selection", "alice", map[string]any{"slot": "video", "item_id": "video4"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_owned", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/v1/selection", "alice", map[string]any{"slot": "music", "item_id": "music1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "music1", body["ledger"].(map[string]any)["selected_music_id"])

	code, body = env.do(t, http.MethodPost, "/api/v1/selection", "alice", map[string]any{"slot": "music", "item_id": nil})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["ledger"].(map[string]any)["selected_music_id"])

	code, body = env.do(t, http.MethodPost, "/api/v1/selection", "alice", map[string]any{"slot": "wallpaper", "item_id": "music1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_slot", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/v1/event-reward/claim", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(125), balanceOf(t, body))

	code, body = env.do(t, http.MethodPost, "/api/v1/event-reward/claim", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "event_reward_claimed", body["code"])
}

func TestCheckoutVerifyFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)

	code, _ := env.do(t, http.MethodPost, "/api/v1/payments/orders", "alice", map[string]string{"item_id": "video4", "pack_id": "pack_small"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, order := env.do(t, http.MethodPost, "/api/v1/payments/orders", "alice", map[string]string{"item_id": "video4"})
	require.Equal(t, http.StatusCreated, code, order)
	assert.Equal(t, float64(9900), order["amount"])
	assert.Equal(t, "rzp_test_key", order["key_id"])

	confirm := env.provider.capture(order["order_id"].(string), "pay_1")

	forged := map[string]string{"order_id": confirm["order_id"], "payment_id": "pay_1", "signature": "deadbeef"}
	code, body := env.do(t, http.MethodPost, "/api/v1/payments/verify", "alice", forged)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_signature", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/v1/payments/verify", "alice", confirm)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body["ledger"].(map[string]any)["purchased_videos"], "video4")

	code, body = env.do(t, http.MethodPost, "/api/v1/payments/verify", "alice", confirm)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["replayed"])

	code, body = env.do(t, http.MethodPost, "/api/v1/payments/verify", "bob", confirm)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "payment_failed", body["code"])
}

func TestPaymentWebhook(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)

	_, order := env.do(t, http.MethodPost, "/api/v1/payments/orders", "alice", map[string]string{"pack_id": "pack_small"})
	env.provider.capture(order["order_id"].(string), "pay_wh")

	var ev payment.WebhookEvent
	ev.Event = payment.EventPaymentCaptured
	ev.Payload.Payment.Entity = env.provider.payments["pay_wh"]
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	post := func(sig string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(raw))
		req.Header.Set("X-Razorpay-Signature", sig)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return w.Code, out
	}

	code, _ := post("bogus")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := post(payment.Sign(raw, webhookSecret))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "applied", body["status"])

	code, body = post(payment.Sign(raw, webhookSecret))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["replayed"])

	_, me := env.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	assert.Equal(t, float64(200), balanceOf(t, me))
}

func TestPaymentWebhookAcknowledgesRejectedCharge(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/api/v1/me", "bob", nil)

	var ev payment.WebhookEvent
	ev.Event = payment.EventPaymentCaptured
	ev.Payload.Payment.Entity = payment.Payment{
		ID: "pay_short", OrderID: "order_short", Amount: 100, Currency: "INR", Status: payment.StatusCaptured,
		Notes: payment.Notes{payment.NoteUserID: "bob", payment.NoteKind: "credits_pack", payment.NotePackID: "pack_small"},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(raw))
		req.Header.Set("X-Razorpay-Signature", payment.Sign(raw, webhookSecret))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"rejected"`)
	}

	p, err := env.store.GetByProviderTx(context.Background(), "pay_short")
	require.NoError(t, err)
	assert.Equal(t, "rejected", string(p.Status))

	_, me := env.do(t, http.MethodGet, "/api/v1/me", "bob", nil)
	assert.Equal(t, float64(100), balanceOf(t, me))
}
