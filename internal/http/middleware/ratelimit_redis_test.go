package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"portfolio_backend/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doGet(r http.Handler, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitFallsBackToLocal(t *testing.T) {
	InitRedisRateLimiter(nil)

	r := gin.New()
	r.GET("/test", RedisRateLimit(2, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	assert.Equal(t, http.StatusOK, doGet(r, "/test"))
	assert.Equal(t, http.StatusOK, doGet(r, "/test"))
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "/test"))
}

func TestPurchaseRateLimitIsPerUser(t *testing.T) {
	InitRedisRateLimiter(nil)

	r := gin.New()
	r.GET("/buy/:uid", func(c *gin.Context) {
		c.Set(UserIDKey, c.Param("uid"))
	}, PurchaseRateLimit(1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, doGet(r, "/buy/alice"))
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "/buy/alice"))
	assert.Equal(t, http.StatusNoContent, doGet(r, "/buy/bob"))
}

func TestRateLimitDisabled(t *testing.T) {
	InitRedisRateLimiter(nil)

	r := gin.New()
	r.GET("/test", RedisRateLimit(0, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, doGet(r, "/test"))
	}
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisRateLimitIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	pass := os.Getenv("REDIS_PASSWORD")
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			db = n
		}
	}

	client := cache.Connect(addr, pass, db)
	require.NotNil(t, client)
	defer client.Close()
	InitRedisRateLimiter(client)
	defer InitRedisRateLimiter(nil)

	// small window for test
	w := 2 * time.Second
	limit := 2

	r := gin.New()
	r.GET("/test", RedisRateLimit(limit, w), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	// do max allowed requests
	for i := 0; i < limit; i++ {
		res, err := http.Get(srv.URL + "/test")
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
	}

	// next request should be blocked
	res, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}
