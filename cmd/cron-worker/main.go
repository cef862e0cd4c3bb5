package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/repairdesk-backend/internal/cron"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	"github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/db"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/metrics"
	"github.com/angelmondragon/repairdesk-backend/pkg/migrate"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/redis"
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
		Format:      cfg.App.LogFormat,
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", cfg.App.Env), instanceID(), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	schedule, err := buildSchedule(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metricsCollector,
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Schedule, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	historySvc, err := history.NewService(history.NewRepository(conn), dbClient)
	if err != nil {
		return nil, err
	}
	taxRate, err := cfg.Billing.TaxRate()
	if err != nil {
		return nil, err
	}
	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Repository: invoices.NewRepository(conn),
		TxRunner:   dbClient,
		History:    historySvc,
		Outbox:     outboxSvc,
		TaxRate:    taxRate,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	reminders, err := cron.NewQuoteReminderJob(cron.QuoteReminderJobParams{
		Logger:    logg,
		DB:        dbClient,
		Quotes:    invoiceSvc,
		Outbox:    outboxSvc,
		AfterDays: cfg.Cron.QuoteReminderAfterDays,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		Retention:   cfg.Cron.OutboxRetentionDays,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	schedule := cron.NewSchedule()
	schedule.Add(reminders, cfg.Cron.QuoteReminderEvery)
	schedule.Add(retention, cfg.Cron.OutboxRetentionEvery)
	return schedule, nil
}

// instanceID names this worker in the lock value. Heroku sets DYNO.
func instanceID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "local"
	}
	return host
}
