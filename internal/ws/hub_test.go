package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLedgers struct{}

func (stubLedgers) OpenLedger(_ context.Context, userID string) (*domain.Ledger, error) {
	return domain.NewLedger(userID, 10), nil
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func startServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("ws-test-secret")

	hub := NewHub()
	r := gin.New()
	r.GET("/ws", HandleWS(hub, stubLedgers{}, ""))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	token, err := service.GenerateJWT(userID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHubPushesCommittedLedger(t *testing.T) {
	hub, url := startServer(t)
	conn := dial(t, url, "u1")
	other := dial(t, url, "u2")

	assert.Equal(t, MsgReady, readFrame(t, conn).Type)
	snap := readFrame(t, conn)
	require.Equal(t, MsgLedger, snap.Type)
	assert.Contains(t, string(snap.Payload), `"virtual_currency":10`)

	require.Eventually(t, func() bool {
		return hub.Connections("u1") == 1 && hub.Connections("u2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	l := domain.NewLedger("u1", 250)
	l.Version = 3
	hub.LedgerCommitted(context.Background(), l)

	f := readFrame(t, conn)
	require.Equal(t, MsgLedger, f.Type)
	var p LedgerPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	assert.Equal(t, int64(250), p.Ledger.VirtualCurrency)
	assert.Equal(t, int64(3), p.Ledger.Version)

	// u2 only sees its own handshake frames
	assert.Equal(t, MsgReady, readFrame(t, other).Type)
	assert.Equal(t, MsgLedger, readFrame(t, other).Type)
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestClientPingPong(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url, "u1")
	readFrame(t, conn)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": MsgPing}))
	assert.Equal(t, MsgPong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, MsgError, readFrame(t, conn).Type)
}

func TestUnregisterOnClose(t *testing.T) {
	hub, url := startServer(t)
	conn := dial(t, url, "u1")
	readFrame(t, conn)

	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWSRejectsBadToken(t *testing.T) {
	_, url := startServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
