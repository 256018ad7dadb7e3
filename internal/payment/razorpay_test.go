package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 9900, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		_, _ = w.Write([]byte(`{"id":"order_1","amount":9900,"currency":"INR","status":"created","notes":{"user_id":"u1"}}`))
	}))
	defer srv.Close()

	c := NewRazorpayClient(srv.URL, "key", "secret", "whsec")
	order, err := c.CreateOrder(context.Background(), OrderRequest{
		Amount:   9900,
		Currency: "INR",
		Notes:    Notes{NoteUserID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, "u1", order.Notes[NoteUserID])
}

func TestCreateOrderRejectsZeroAmount(t *testing.T) {
	c := NewRazorpayClient("http://unused", "key", "secret", "")
	_, err := c.CreateOrder(context.Background(), OrderRequest{Currency: "INR"})
	assert.Error(t, err)
}

func TestFetchPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payments/pay_1":
			_, _ = w.Write([]byte(`{"id":"pay_1","order_id":"order_1","amount":4900,"currency":"INR","status":"captured","notes":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewRazorpayClient(srv.URL, "key", "secret", "")
	p, err := c.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, p.Settled())
	assert.Nil(t, p.Notes)

	_, err = c.FetchPayment(context.Background(), "pay_missing")
	assert.True(t, errors.Is(err, ErrPaymentNotFound))
}

func TestFetchPaymentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRazorpayClient(srv.URL, "key", "secret", "").FetchPayment(context.Background(), "pay_1")
	assert.Error(t, err)
}

func TestVerifyCheckoutSignature(t *testing.T) {
	c := NewRazorpayClient("", "key", "secret", "")
	sig := Sign([]byte("order_1|pay_1"), "secret")

	assert.NoError(t, c.VerifyCheckoutSignature("order_1", "pay_1", sig))
	assert.ErrorIs(t, c.VerifyCheckoutSignature("order_1", "pay_2", sig), ErrInvalidSignature)
	assert.ErrorIs(t, c.VerifyCheckoutSignature("order_1", "pay_1", ""), ErrInvalidSignature)
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)

	c := NewRazorpayClient("", "key", "secret", "whsec")
	assert.NoError(t, c.VerifyWebhookSignature(body, Sign(body, "whsec")))
	assert.ErrorIs(t, c.VerifyWebhookSignature(body, Sign(body, "secret")), ErrInvalidSignature)

	noSecret := NewRazorpayClient("", "key", "secret", "")
	assert.ErrorIs(t, noSecret.VerifyWebhookSignature(body, Sign(body, "")), ErrInvalidSignature)
}

func TestWebhookEventDecodes(t *testing.T) {
	raw := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":100,"currency":"INR","status":"captured","notes":{"user_id":"u1","kind":"item","item_id":"video3"}}}}}`
	var ev WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, EventPaymentCaptured, ev.Event)
	assert.Equal(t, "video3", ev.Payload.Payment.Entity.Notes[NoteItemID])
}
