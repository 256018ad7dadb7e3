package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio_backend/internal/bot"
	"portfolio_backend/internal/cache"
	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/config"
	"portfolio_backend/internal/db"
	httpServer "portfolio_backend/internal/http"
	"portfolio_backend/internal/http/handlers"
	"portfolio_backend/internal/http/middleware"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/migrations"
	"portfolio_backend/internal/payment"
	"portfolio_backend/internal/repository"
	"portfolio_backend/internal/repository/sqlite"
	"portfolio_backend/internal/service"
	"portfolio_backend/internal/telemetry"
	"portfolio_backend/internal/ws"

	"github.com/gin-gonic/gin"
)

const serviceName = "ledger-api"

// stores bundles the persistence the services need, whichever driver backs it.
type stores struct {
	ledger          service.LedgerStore
	reconciliations service.ReconciliationStore
	pinger          handlers.Pinger
	close           func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return &stores{ledger: st, reconciliations: st, pinger: st, close: func() { _ = st.Close() }}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	applied, err := migrations.ApplyPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "names", applied)
	}
	ledgers := repository.NewLedgerRepository(pool)
	return &stores{
		ledger:          ledgers,
		reconciliations: repository.NewReconciliationRepository(pool),
		pinger:          ledgers,
		close:           pool.Close,
	}, nil
}

func main() {
	cfg := config.MustLoad()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.AppVersion, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load catalog", "error", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer st.close()

	redisClient := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisClient != nil {
		defer redisClient.Close()
	}
	middleware.InitRedisRateLimiter(redisClient)

	var ledgerCache service.LedgerCache
	health := handlers.HealthDeps{Store: st.pinger, Backlog: st.reconciliations, Catalog: cat, Version: cfg.AppVersion}
	if redisClient != nil {
		lc := cache.NewLedgerCache(redisClient, cfg.LedgerCacheTTL)
		ledgerCache = lc
		health.Cache = lc
	}

	exec := service.NewExecutor(st.ledger, cat, service.ExecutorConfig{
		MaxAttempts:    cfg.TxMaxAttempts,
		EventRewardMax: cfg.EventRewardMax,
	})
	ledgers := service.NewLedgerService(st.ledger, ledgerCache, cfg.InitialCredits)
	exec.AddListener(ledgers)

	hub := ws.NewHub()
	exec.AddListener(hub)
	defer hub.Close()

	if !cfg.PaymentsEnabled() {
		logger.Warn("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET not set, real-money checkout will fail")
	}
	gateway := payment.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	checkout := service.NewCheckoutService(exec, gateway, st.reconciliations)

	reconciler, err := service.NewReconciler(exec, st.reconciliations, cfg.ReconcileSchedule)
	if err != nil {
		logger.Fatal("invalid reconcile schedule", "error", err)
	}
	if err := reconciler.Start(); err != nil {
		logger.Fatal("failed to start reconciler", "error", err)
	}
	defer reconciler.Stop()

	if cfg.AdminBotEnabled {
		adminBot, err := bot.NewAdminBot(cfg.AdminBotToken, bot.NewCommands(st.reconciliations, reconciler, ledgers), cfg.AdminTelegramIDs)
		if err != nil {
			logger.Error("admin bot disabled", "error", err)
		} else {
			checkout.SetNotifier(adminBot)
			go adminBot.Start()
			defer adminBot.Stop()
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), httpServer.CORS(cfg.AllowedOrigin))

	h := handlers.NewHandler(ledgers, exec, checkout, handlers.HandlerConfig{EventRewardCredits: cfg.EventRewardCredits})
	httpServer.RegisterRoutes(r, h, handlers.NewHealthHandler(health), hub, httpServer.RouteConfig{
		APIRateLimit:       cfg.APIRateLimit,
		APIRateWindow:      cfg.APIRateWindow,
		PurchaseRateLimit:  cfg.PurchaseRateLimit,
		PurchaseRateWindow: cfg.PurchaseRateWindow,
		AllowedOrigin:      cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", cfg.AppVersion, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
