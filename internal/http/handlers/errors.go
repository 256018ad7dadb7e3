package handlers

import (
	"errors"
	"net/http"

	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps service errors to HTTP status and a stable machine code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, service.ErrAlreadyOwned):
		return http.StatusConflict, "already_owned"
	case errors.Is(err, service.ErrEventRewardClaimed):
		return http.StatusConflict, "event_reward_claimed"
	case errors.Is(err, service.ErrLedgerNotFound):
		return http.StatusNotFound, "ledger_not_found"
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, service.ErrPackNotFound):
		return http.StatusNotFound, "pack_not_found"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden, "not_owned"
	case errors.Is(err, service.ErrNotPurchasable):
		return http.StatusBadRequest, "not_purchasable"
	case errors.Is(err, service.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid_slot"
	case errors.Is(err, service.ErrCategoryMismatch):
		return http.StatusBadRequest, "category_mismatch"
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, service.ErrExternalPaymentFailure):
		return http.StatusBadGateway, "payment_failed"
	case errors.Is(err, service.ErrPaymentPendingReconciliation):
		return http.StatusAccepted, "pending_reconciliation"
	case errors.Is(err, service.ErrTransactionConflict):
		return http.StatusServiceUnavailable, "transaction_conflict"
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes err as JSON. Unmapped errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	if status == http.StatusAccepted {
		var perr *service.PendingReconciliationError
		if errors.As(err, &perr) {
			c.JSON(status, gin.H{"status": "pending_reconciliation", "code": code, "provider_transaction_id": perr.ProviderTransactionID})
			return
		}
	}
	c.JSON(status, errorBody{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
