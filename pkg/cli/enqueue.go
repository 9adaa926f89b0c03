package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/pkg/ingest"
	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/results"
)

func newEnqueueCommand(configFile *string) *cobra.Command {
	var (
		jobID      string
		kind       string
		filePath   string
		filename   string
		body       string
		timelineID string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a parse job",
		Long:  "Submits one job to the queue and prints its id. Exactly one of --file, --body, or --timeline-id must be set, matching --kind.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

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

			service, err := ingest.NewService(queue, store, log, ingest.Config{
				QueueName:   cfg.Queue.Name,
				MaxAttempts: cfg.Worker.MaxAttempts,
				ResultTTL:   cfg.Results.TTL,
			})
			if err != nil {
				return fmt.Errorf("failed to create ingest service: %w", err)
			}

			id, err := service.Submit(cmd.Context(), ingest.SubmitRequest{
				ID:         jobID,
				Kind:       jobs.Kind(kind),
				FilePath:   filePath,
				Filename:   filename,
				Body:       json.RawMessage(body),
				TimelineID: timelineID,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&kind, "kind", string(jobs.KindFile), "job kind: file, body, or timelineLookup")
	cmd.Flags().StringVar(&filePath, "file", "", "path to the uploaded document (kind=file)")
	cmd.Flags().StringVar(&filename, "filename", "", "original filename of the document (kind=file)")
	cmd.Flags().StringVar(&body, "body", "", "inline JSON payload (kind=body)")
	cmd.Flags().StringVar(&timelineID, "timeline-id", "", "existing timeline id (kind=timelineLookup)")

	return cmd
}
