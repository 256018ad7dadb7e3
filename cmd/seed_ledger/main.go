// Command seed_ledger opens a ledger for a user and prints a bearer token
// for it, for local testing against the API.
package main

import (
	"context"
	"flag"
	"fmt"

	"portfolio_backend/internal/config"
	"portfolio_backend/internal/db"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/migrations"
	"portfolio_backend/internal/repository"
	"portfolio_backend/internal/repository/sqlite"
	"portfolio_backend/internal/service"
)

func main() {
	userID := flag.String("user", "test-user", "ledger owner id (JWT subject)")
	credits := flag.Int64("credits", -1, "opening balance, defaults to INITIAL_CREDITS")
	flag.Parse()

	cfg := config.MustLoad()
	service.InitJWT(cfg.JWTSecret)
	ctx := context.Background()

	opening := cfg.InitialCredits
	if *credits >= 0 {
		opening = *credits
	}

	var store service.LedgerStore
	if cfg.StoreDriver == config.DriverSQLite {
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("open sqlite", "error", err)
		}
		defer st.Close()
		store = st
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, 2)
		if err != nil {
			logger.Fatal("connect", "error", err)
		}
		defer pool.Close()
		if _, err := migrations.ApplyPostgres(ctx, pool); err != nil {
			logger.Fatal("migrate", "error", err)
		}
		store = repository.NewLedgerRepository(pool)
	}

	l, err := service.NewLedgerService(store, nil, opening).OpenLedger(ctx, *userID)
	if err != nil {
		logger.Fatal("open ledger", "error", err)
	}
	logger.Info("ledger ready", "user_id", l.UserID, "credits", l.VirtualCurrency, "version", l.Version)

	token, err := service.GenerateJWT(l.UserID)
	if err != nil {
		logger.Fatal("generate token", "error", err)
	}
	fmt.Println(token)
}
