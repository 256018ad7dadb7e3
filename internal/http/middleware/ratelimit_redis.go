package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter installs the shared Redis client used by the
// limiters. A nil client switches them to the in-process fallback.
func InitRedisRateLimiter(client *redis.Client) {
    redisClient = client
}

// rateLimitIdentity is the authenticated user when JWT ran first, otherwise
// the client IP.
func rateLimitIdentity(c *gin.Context) string {
    if uid := c.GetString(UserIDKey); uid != "" {
        return "u:" + uid
    }
    return "ip:" + c.ClientIP()
}

// RedisRateLimit implements a fixed-window rate limiter using Redis INCR/EXPIRE.
// key format: rl:<window_seconds>:<identifier>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
    return fixedWindow("rl", "api", maxRequests, window)
}

// PurchaseRateLimit limits purchase attempts per user. Requires JWT to run
// before it.
func PurchaseRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
    return fixedWindow("purchase_rl", "purchase", maxRequests, window)
}

func fixedWindow(prefix, metric string, maxRequests int, window time.Duration) gin.HandlerFunc {
    fallback := SimpleRateLimit(maxRequests, window)
    return func(c *gin.Context) {
        if maxRequests <= 0 {
            c.Next()
            return
        }
        if redisClient == nil {
            fallback(c)
            return
        }

        key := prefix + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + rateLimitIdentity(c)
        ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
        defer cancel()

        val, err := redisClient.Incr(ctx, key).Result()
        if err != nil {
            // on Redis error, fail-open (allow) but set header
            c.Header("X-RateLimit-Error", "redis-error")
            c.Next()
            return
        }

        if val == 1 {
            redisClient.Expire(ctx, key, window)
        }

        c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
        c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

        if val > int64(maxRequests) {
            RLBlocked.WithLabelValues(metric + ":" + c.FullPath()).Inc()
            c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
                "error":       "rate limit exceeded",
                "retry_after": int(window.Seconds()),
            })
            return
        }

        RLRequests.WithLabelValues(metric + ":" + c.FullPath()).Inc()
        c.Next()
    }
}
