package ws

import (
	"context"
	"net/http"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LedgerReader loads the snapshot sent right after the handshake.
type LedgerReader interface {
	OpenLedger(ctx context.Context, userID string) (*domain.Ledger, error)
}

// HandleWS authenticates with ?token=, upgrades and streams ledger updates.
func HandleWS(hub *Hub, ledgers LedgerReader, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		userID, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ledger, err := ledgers.OpenLedger(c.Request.Context(), userID)
		if err != nil {
			hub.log.Error("ws ledger load failed", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("ws upgrade error", "error", err)
			return
		}

		client := NewClient(userID, conn, hub)
		client.enqueue(mustEncode(MsgReady, nil))
		client.enqueue(mustEncode(MsgLedger, LedgerPayload{Ledger: ledger}))
		hub.Register(client)
		go client.Run()
	}
}
