package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/pkg/health"
	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/parser"
	"github.com/courseflow/courseflow/pkg/results"
	"github.com/courseflow/courseflow/pkg/timeline"
)

func newHealthcheckCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check dependency connectivity",
		Long:  "Probes the queue, result store, timeline store, and parse service, printing each result. Exits non-zero when any dependency is unreachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			checkers := make([]*health.AdapterChecker, 0, 4)

			queue, err := jobs.NewRedisQueue(jobs.RedisQueueConfig{
				URL:              cfg.Queue.RedisURL,
				Name:             cfg.Queue.Name,
				OperationTimeout: cfg.Queue.OperationTimeout,
			}, log)
			if err != nil {
				return fmt.Errorf("queue: %w", err)
			}
			defer func() { _ = queue.Close() }()
			checkers = append(checkers, health.NewAdapterChecker("queue", queue, 0))

			store, err := results.NewRedisStore(results.RedisStoreConfig{
				URL:              cfg.Results.RedisURL,
				OperationTimeout: cfg.Results.OperationTimeout,
			})
			if err != nil {
				return fmt.Errorf("results: %w", err)
			}
			defer func() { _ = store.Close() }()
			checkers = append(checkers, health.NewAdapterChecker("results", store, 0))

			timelines, err := timeline.NewMongoStore(timeline.Config{
				URL:              cfg.Timeline.MongoURL,
				Database:         cfg.Timeline.Database,
				OperationTimeout: cfg.Timeline.OperationTimeout,
			}, log)
			if err != nil {
				return fmt.Errorf("timeline: %w", err)
			}
			defer func() { _ = timelines.Close() }()
			checkers = append(checkers, health.NewAdapterChecker("timeline", timelines, 0))

			parseClient, err := parser.NewClient(parser.Config{
				BaseURL:           cfg.Parser.BaseURL,
				RequestTimeout:    cfg.Parser.RequestTimeout,
				RequestsPerSecond: cfg.Parser.RequestsPerSecond,
			}, log)
			if err != nil {
				return fmt.Errorf("parser: %w", err)
			}
			checkers = append(checkers, health.NewAdapterChecker("parser", parseClient, 0))

			checkResults, checkErr := health.CheckAll(cmd.Context(), checkers...)
			for _, result := range checkResults {
				status := "ok"
				if !result.Healthy {
					status = "failed: " + result.Error
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s (%s)\n", result.Name, status, result.Duration)
			}
			return checkErr
		},
	}
}
