package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/pkg/ingest"
	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/results"
)

func newPollCommand(configFile *string) *cobra.Command {
	var (
		jobID  string
		extend bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a job's status",
		Long:  "Prints the job's status as JSON: pending while no terminal result exists, otherwise the stored result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := results.NewRedisStore(results.RedisStoreConfig{
				URL:              cfg.Results.RedisURL,
				OperationTimeout: cfg.Results.OperationTimeout,
			})
			if err != nil {
				return fmt.Errorf("failed to create result store: %w", err)
			}
			defer func() { _ = store.Close() }()

			// Poll never enqueues; the queue is only needed to satisfy
			// the ingest wiring, so the in-memory one avoids a second
			// Redis connection.
			service, err := ingest.NewService(
				jobs.NewMemoryQueue(cfg.Queue.Name, 0, 0),
				store,
				log,
				ingest.Config{QueueName: cfg.Queue.Name, ResultTTL: cfg.Results.TTL},
			)
			if err != nil {
				return fmt.Errorf("failed to create ingest service: %w", err)
			}

			resp, err := service.Poll(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			if extend && resp.Result != nil {
				if err := service.ExtendResult(cmd.Context(), jobID); err != nil {
					return fmt.Errorf("failed to extend result retention: %w", err)
				}
			}

			encoded, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "job id to poll")
	cmd.Flags().BoolVar(&extend, "extend", false, "reset the result's retention window")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
