package handlers

import (
	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/http/middleware"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
)

// HandlerConfig holds configuration for handler
type HandlerConfig struct {
	// EventRewardCredits is granted by POST /event-reward/claim.
	EventRewardCredits int64
}

type Handler struct {
	Ledgers  *service.LedgerService
	Executor *service.Executor
	Checkout *service.CheckoutService
	Catalog  *catalog.Catalog
	cfg      HandlerConfig
}

func NewHandler(ledgers *service.LedgerService, exec *service.Executor, checkout *service.CheckoutService, cfg HandlerConfig) *Handler {
	return &Handler{
		Ledgers:  ledgers,
		Executor: exec,
		Checkout: checkout,
		Catalog:  exec.Catalog(),
		cfg:      cfg,
	}
}

// getUserID returns the subject the JWT middleware stored.
func getUserID(c *gin.Context) (string, bool) {
	uid := c.GetString(middleware.UserIDKey)
	return uid, uid != ""
}
