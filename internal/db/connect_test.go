package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "::not a dsn::", 0)
	assert.Error(t, err)
}

func TestConnectIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	pool, err := Connect(context.Background(), dsn, 4)
	require.NoError(t, err)
	defer pool.Close()
	assert.Equal(t, int32(4), pool.Config().MaxConns)
}
