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
	"go.uber.org/multierr"

	"github.com/angelmondragon/repairdesk-backend/api/routes"
	"github.com/angelmondragon/repairdesk-backend/internal/assignments"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	"github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/internal/requests"
	"github.com/angelmondragon/repairdesk-backend/internal/sequence"
	"github.com/angelmondragon/repairdesk-backend/internal/workflow"
	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/db"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/metrics"
	"github.com/angelmondragon/repairdesk-backend/pkg/migrate"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/redis"
)

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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shutting down gracefully")
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	conn := dbClient.DB()
	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	sequenceSvc, err := sequence.NewService(sequence.NewRepository(conn), dbClient, logg, workflowMetrics)
	if err != nil {
		return routes.Dependencies{}, err
	}
	historySvc, err := history.NewService(history.NewRepository(conn), dbClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	assignmentSvc, err := assignments.NewService(assignments.NewRepository(conn), dbClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	workflowSvc, err := workflow.NewService(workflow.ServiceParams{
		Repository:  workflow.NewRepository(conn),
		TxRunner:    dbClient,
		History:     historySvc,
		Assignments: assignmentSvc,
		Outbox:      outboxSvc,
		Metrics:     workflowMetrics,
		Logger:      logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	taxRate, err := cfg.Billing.TaxRate()
	if err != nil {
		return routes.Dependencies{}, err
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
		return routes.Dependencies{}, err
	}

	requestSvc, err := requests.NewService(requests.ServiceParams{
		Repository:  requests.NewRepository(conn),
		TxRunner:    dbClient,
		Sequence:    sequenceSvc,
		History:     historySvc,
		Assignments: assignmentSvc,
		Workflow:    workflowSvc,
		Outbox:      outboxSvc,
		Logger:      logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Idempotency: redisClient,
		RateLimiter: redisClient,
		Requests:    requestSvc,
		Workflow:    workflowSvc,
		History:     historySvc,
		Assignments: assignmentSvc,
		Invoices:    invoiceSvc,
		DeadLetters: outbox.NewDLQRepository(conn),
	}, nil
}
