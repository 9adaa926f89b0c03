// Package cli wires the courseflow commands: the worker process plus
// the enqueue, poll, and healthcheck operator tools.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/pkg/config"
	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/version"
)

const envPrefix = "CF"

// NewRootCommand builds the courseflow command tree.
func NewRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "courseflow",
		Short:         "Course document parse service",
		Long:          "courseflow runs the asynchronous course-document parse subsystem: a durable Redis-backed job queue, a worker pool calling the parse service, and a TTL-bound result store.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config-file", "c", "", "path to configuration file")

	root.AddCommand(newWorkerCommand(&configFile))
	root.AddCommand(newEnqueueCommand(&configFile))
	root.AddCommand(newPollCommand(&configFile))
	root.AddCommand(newHealthcheckCommand(&configFile))

	return root
}

// loadConfig resolves configuration with ENV > file > defaults
// precedence and builds the process logger from it.
func loadConfig(configFile string) (*config.Config, *logger.ZapLogger, error) {
	cfg, err := config.NewViperLoader(configFile, envPrefix).Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Log.Level),
		Format: logger.LogFormat(cfg.Log.Format),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
