package handlers

import (
	"errors"
	"io"
	"net/http"

	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	webhookSignatureHeader = "X-Razorpay-Signature"
	maxWebhookBody         = 1 << 20
)

type orderRequest struct {
	ItemID string `json:"item_id"`
	PackID string `json:"pack_id"`
}

// CreateOrder opens a gateway order for either an item or a credit pack.
func (h *Handler) CreateOrder(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.ItemID == "") == (req.PackID == "") {
		badRequest(c, "exactly one of item_id or pack_id is required")
		return
	}

	var (
		order *service.CheckoutOrder
		err   error
	)
	if req.ItemID != "" {
		order, err = h.Checkout.CreateItemOrder(c.Request.Context(), userID, req.ItemID)
	} else {
		order, err = h.Checkout.CreatePackOrder(c.Request.Context(), userID, req.PackID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// VerifyPayment confirms a completed checkout and applies it to the ledger.
func (h *Handler) VerifyPayment(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req service.Confirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "order_id, payment_id and signature are required")
		return
	}

	res, err := h.Checkout.ConfirmPayment(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PaymentWebhook is called by the gateway; it authenticates by signature.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	res, err := h.Checkout.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader))
	if errors.Is(err, service.ErrPaymentRejected) {
		// recorded for refund; redelivery cannot change the outcome
		logger.WithContext(c.Request.Context()).Warn("webhook payment rejected", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}
	if err != nil {
		logger.WithContext(c.Request.Context()).Warn("webhook rejected", "error", err)
		respondError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "replayed": res.Replayed})
}
