package http

import (
	"time"

	"portfolio_backend/internal/http/handlers"
	"portfolio_backend/internal/http/middleware"
	"portfolio_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteConfig carries the limits and origins the router needs.
type RouteConfig struct {
	APIRateLimit       int
	APIRateWindow      time.Duration
	PurchaseRateLimit  int
	PurchaseRateWindow time.Duration
	AllowedOrigin      string
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub, cfg RouteConfig) {
	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// Gateway callbacks are signed and must never be throttled
	v1.POST("/payments/webhook", h.PaymentWebhook)

	api := v1.Group("")
	api.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	api.GET("/catalog", h.GetCatalog)

	authed := api.Group("")
	authed.Use(middleware.JWT())
	authed.GET("/me", h.Me)
	authed.GET("/me/purchases", h.MyPurchases)
	authed.POST("/selection", h.Select)

	purchaseRL := middleware.PurchaseRateLimit(cfg.PurchaseRateLimit, cfg.PurchaseRateWindow)
	authed.POST("/purchases/credits", purchaseRL, h.PurchaseWithCredits)
	authed.POST("/event-reward/claim", purchaseRL, h.ClaimEventReward)
	authed.POST("/payments/orders", purchaseRL, h.CreateOrder)
	authed.POST("/payments/verify", purchaseRL, h.VerifyPayment)

	r.GET("/ws", ws.HandleWS(hub, h.Ledgers, cfg.AllowedOrigin))
}

// CORS mirrors the request origin when it is allowed. An empty allowed
// origin accepts any.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowedOrigin == "" || origin == allowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
