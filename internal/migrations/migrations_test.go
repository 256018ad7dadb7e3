package migrations

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresMigrationsOrdered(t *testing.T) {
	ms, err := Postgres()
	require.NoError(t, err)
	require.Len(t, ms, 4)

	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Name, ms[i].Name)
	}
	assert.True(t, strings.Contains(ms[0].SQL, "CREATE TABLE IF NOT EXISTS ledgers"))
}

func TestApplyPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = ApplyPostgres(ctx, pool)
	require.NoError(t, err)

	again, err := ApplyPostgres(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, again)
}
