package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct{
    last time.Time
    count int
}

// SimpleRateLimit is the in-process limiter used when Redis is not
// configured. Counts are per instance and per identity.
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
    var mu sync.Mutex
    clients := make(map[string]*clientInfo)

    return func(c *gin.Context) {
        id := rateLimitIdentity(c)
        now := time.Now()

        mu.Lock()
        ci, ok := clients[id]
        if !ok || now.Sub(ci.last) > window {
            if len(clients) > 10000 {
                for k, v := range clients {
                    if now.Sub(v.last) > window {
                        delete(clients, k)
                    }
                }
            }
            ci = &clientInfo{last: now}
            clients[id] = ci
        }
        ci.count++
        count := ci.count
        mu.Unlock()

        if count > maxRequests {
            RLBlocked.WithLabelValues("local:" + c.FullPath()).Inc()
            c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
            return
        }

        c.Next()
    }
}
