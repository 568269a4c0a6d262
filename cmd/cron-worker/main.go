package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/codfulfillment-backend/internal/cron"
	"github.com/angelmondragon/codfulfillment-backend/internal/engine"
	"github.com/angelmondragon/codfulfillment-backend/pkg/cache"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db"
	"github.com/angelmondragon/codfulfillment-backend/pkg/instance"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		lock      cron.Lock = &cron.LocalLock{}
		roleCache cache.TTLCache
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg)), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
		lock = redisLock
		if roleCache, err = cache.NewRedis(redisClient, "roles"); err != nil {
			logg.Error(context.Background(), "failed to build role cache", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured, cron lock is process-local")
	}

	eng, err := engine.New(engine.Params{
		DB:      dbClient.DB(),
		Config:  cfg,
		Cache:   roleCache,
		Logger:  logg,
		Metrics: metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	if err := eng.Bootstrap(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to bootstrap engine", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, eng)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, eng *engine.Engine) (*cron.Registry, error) {
	backfill, err := cron.NewFinancialBackfillJob(cron.FinancialBackfillJobParams{
		Logger:  logg,
		Finance: eng.Finance,
		Limit:   cfg.Cron.BackfillLimit,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  eng.OutboxRepo,
		Retention:   cfg.Cron.OutboxRetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry(backfill, retention)

	if cfg.Cron.DispatchOutbox {
		dispatcher, err := outbox.NewDispatcher(eng.OutboxRepo, outbox.LogSink{Logger: logg}, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts)
		if err != nil {
			return nil, err
		}
		job, err := cron.NewOutboxDispatchJob(logg, dispatcher)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockName(cfg *config.Config) string {
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("%s:%s", cfg.Cron.LockKey, env)
}
