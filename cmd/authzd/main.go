package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantage-erp/vantage-authz/internal/app"
	"github.com/vantage-erp/vantage-authz/internal/decisions"
	"github.com/vantage-erp/vantage-authz/internal/engine"
	"github.com/vantage-erp/vantage-authz/internal/guard"
	"github.com/vantage-erp/vantage-authz/internal/observability"
	"github.com/vantage-erp/vantage-authz/internal/overrides"
	"github.com/vantage-erp/vantage-authz/internal/platform/cache"
	"github.com/vantage-erp/vantage-authz/internal/platform/db"
	"github.com/vantage-erp/vantage-authz/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "authzd")

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	metrics := observability.NewMetrics()

	safePath := cfg.SafePath
	if safePath == "" {
		safePath = "/"
	}
	routeTable := guard.NewRouteTable(safePath, guard.DefaultRouteTable().Entries())
	if err := routeTable.Validate(); err != nil {
		logger.Error("route table", slog.Any("error", err))
		os.Exit(1)
	}
	routeGuard := guard.New(routeTable, logger)

	repo := overrides.NewRepository(dbpool)
	feed := overrides.NewRedisFeed(redisClient, logger)

	manager := engine.NewManager(engine.ManagerConfig{
		Fetcher:  repo,
		Feed:     feed,
		Guard:    routeGuard,
		Logger:   logger,
		Metrics:  metrics,
		Interval: cfg.RefreshInterval,
	})
	defer manager.Shutdown()

	decisionsHandler := decisions.NewHandler(logger, manager, metrics)
	overridesHandler := overrides.NewHandler(logger, repo, feed)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		DecisionsHandler: decisionsHandler,
		OverridesHandler: overridesHandler,
		Pool:             dbpool,
		Redis:            redisClient,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
