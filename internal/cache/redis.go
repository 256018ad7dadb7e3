// Package cache holds the shared Redis client and the ledger snapshot cache
// built on it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// Connect returns a Redis client, or nil when addr is empty or the server
// does not answer. Callers treat a nil client as "no cache".
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without it", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", addr)
	return client
}

const ledgerKeyPrefix = "ledger:"

// LedgerCache stores ledger snapshots as JSON. Every operation fails open:
// a Redis error is a cache miss.
type LedgerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Ping reports whether Redis answers.
func (c *LedgerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func NewLedgerCache(client *redis.Client, ttl time.Duration) *LedgerCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LedgerCache{client: client, ttl: ttl}
}

func (c *LedgerCache) Get(ctx context.Context, userID string) (*domain.Ledger, bool) {
	b, err := c.client.Get(ctx, ledgerKeyPrefix+userID).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WithContext(ctx).Debug("ledger cache read failed", "error", err)
		}
		return nil, false
	}
	var l domain.Ledger
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, false
	}
	return &l, true
}

func (c *LedgerCache) Set(ctx context.Context, l *domain.Ledger) {
	b, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, ledgerKeyPrefix+l.UserID, b, c.ttl).Err(); err != nil {
		logger.WithContext(ctx).Debug("ledger cache write failed", "error", err)
	}
}

func (c *LedgerCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, ledgerKeyPrefix+userID).Err(); err != nil {
		logger.WithContext(ctx).Warn("ledger cache invalidate failed", "user_id", userID, "error", err)
	}
}
