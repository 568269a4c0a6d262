package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/codfulfillment-backend/api/controllers"
	"github.com/angelmondragon/codfulfillment-backend/api/routes"
	"github.com/angelmondragon/codfulfillment-backend/internal/engine"
	"github.com/angelmondragon/codfulfillment-backend/pkg/cache"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db"
	"github.com/angelmondragon/codfulfillment-backend/pkg/instance"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/codfulfillment-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		roleCache   cache.TTLCache = cache.NewMemory()
		redisPinger controllers.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		shared, err := cache.NewRedis(redisClient, "roles")
		if err != nil {
			logg.Error(ctx, "failed to build role cache", err)
			os.Exit(1)
		}
		roleCache = shared
		redisPinger = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, using in-process role cache")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.New(engine.Params{
		DB:      dbClient.DB(),
		Config:  cfg,
		Cache:   roleCache,
		Logger:  logg,
		Metrics: metrics.NewFulfillmentMetrics(registry),
	})
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}
	if err := eng.Bootstrap(ctx); err != nil {
		logg.Error(ctx, "failed to bootstrap engine", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Engine:   eng,
			DB:       dbClient,
			Redis:    redisPinger,
			Gatherer: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}
