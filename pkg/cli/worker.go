package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/pkg/config"
	"github.com/courseflow/courseflow/pkg/dispatch"
	"github.com/courseflow/courseflow/pkg/health"
	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/observability/metrics"
	"github.com/courseflow/courseflow/pkg/parser"
	"github.com/courseflow/courseflow/pkg/results"
	"github.com/courseflow/courseflow/pkg/timeline"
)

func newWorkerCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the parse worker pool",
		Long:  "Starts the worker pool: claims jobs from the queue, calls the parse service, and records terminal results until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runWorker(cmd.Context(), cfg, log)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	queue, err := jobs.NewRedisQueue(jobs.RedisQueueConfig{
		URL:              cfg.Queue.RedisURL,
		Name:             cfg.Queue.Name,
		LeaseTTL:         cfg.Queue.LeaseTTL,
		ClaimInterval:    cfg.Queue.ClaimInterval,
		OperationTimeout: cfg.Queue.OperationTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	defer func() { _ = queue.Close() }()

	store, err := results.NewRedisStore(results.RedisStoreConfig{
		URL:              cfg.Results.RedisURL,
		OperationTimeout: cfg.Results.OperationTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}
	defer func() { _ = store.Close() }()

	timelines, err := timeline.NewMongoStore(timeline.Config{
		URL:              cfg.Timeline.MongoURL,
		Database:         cfg.Timeline.Database,
		OperationTimeout: cfg.Timeline.OperationTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create timeline store: %w", err)
	}
	defer func() { _ = timelines.Close() }()

	parseClient, err := parser.NewClient(parser.Config{
		BaseURL:           cfg.Parser.BaseURL,
		RequestTimeout:    cfg.Parser.RequestTimeout,
		RequestsPerSecond: cfg.Parser.RequestsPerSecond,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create parse client: %w", err)
	}

	// Refuse to start on broken dependencies; a worker that cannot
	// reach its stores would claim jobs and stall them.
	if _, err := health.CheckAll(ctx,
		health.NewAdapterChecker("queue", queue, 0),
		health.NewAdapterChecker("results", store, 0),
		health.NewAdapterChecker("timeline", timelines, 0),
	); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	dispatcher, err := dispatch.New(parseClient, timelines, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	pool, err := jobs.NewPool(queue, store, dispatcher, log, jobs.PoolConfig{
		Concurrency: cfg.Worker.Concurrency,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Backoff: &jobs.JitteredBackoff{
			Base: cfg.Worker.BackoffBase,
			Max:  cfg.Worker.BackoffMax,
		},
		LeaseTTL:      cfg.Queue.LeaseTTL,
		ShutdownGrace: cfg.Worker.ShutdownGrace,
		ResultTTL:     cfg.Results.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		metricsServer := metrics.NewServer(cfg.Metrics.Addr, log)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := pool.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	log.Info("worker running", "queue", cfg.Queue.Name, "concurrency", cfg.Worker.Concurrency)
	<-runCtx.Done()
	log.Info("shutdown signal received, draining workers", "grace", cfg.Worker.ShutdownGrace)

	return pool.Stop()
}
