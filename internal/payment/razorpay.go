package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultRazorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient is a Razorpay REST API client
type RazorpayClient struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
}

// NewRazorpayClient creates a new Razorpay API client. An empty baseURL
// uses the public API.
func NewRazorpayClient(baseURL, keyID, keySecret, webhookSecret string) *RazorpayClient {
	if baseURL == "" {
		baseURL = DefaultRazorpayBaseURL
	}
	return &RazorpayClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// KeyID is the public key the checkout widget is opened with.
func (c *RazorpayClient) KeyID() string { return c.keyID }

type createOrderBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Notes    Notes  `json:"notes,omitempty"`
}

// CreateOrder registers an order the checkout widget can pay
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive")
	}
	body, err := json.Marshal(createOrderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, err
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}

// FetchPayment retrieves a payment by id
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &p); err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}
	return &p, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error: %s - %s", resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyCheckoutSignature checks the signature the checkout widget returns:
// HMAC-SHA256 of "order_id|payment_id" keyed with the API secret.
func (c *RazorpayClient) VerifyCheckoutSignature(orderID, paymentID, signature string) error {
	return verifyHMAC([]byte(orderID+"|"+paymentID), c.keySecret, signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body.
func (c *RazorpayClient) VerifyWebhookSignature(body []byte, signature string) error {
	if c.webhookSecret == "" {
		return ErrInvalidSignature
	}
	return verifyHMAC(body, c.webhookSecret, signature)
}

// Sign computes the hex HMAC-SHA256 signature used by the provider.
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(message []byte, secret, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(message, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

var _ Gateway = (*RazorpayClient)(nil)
