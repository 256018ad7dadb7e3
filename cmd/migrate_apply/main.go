package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"portfolio_backend/internal/db"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/migrations"

	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply pending migrations (default lists them)")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	if !*apply {
		migs, err := migrations.Postgres()
		if err != nil {
			logger.Fatal("read embedded migrations", "error", err)
		}
		for _, m := range migs {
			fmt.Println(m.Name)
		}
		return
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, 2)
	if err != nil {
		logger.Fatal("connect", "error", err)
	}
	defer pool.Close()

	applied, err := migrations.ApplyPostgres(ctx, pool)
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
	if err != nil {
		logger.Fatal("migration failed", "error", err)
	}
	if len(applied) == 0 {
		fmt.Println("schema up to date")
	}
}
