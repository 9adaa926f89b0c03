package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration.
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a loader. configFile is optional; envPrefix is
// the prefix for environment variables (e.g. "CF").
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("service.name", defaults.Service.Name)
	v.SetDefault("service.environment", defaults.Service.Environment)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("queue.redis_url", defaults.Queue.RedisURL)
	v.SetDefault("queue.name", defaults.Queue.Name)
	v.SetDefault("queue.claim_interval", defaults.Queue.ClaimInterval)
	v.SetDefault("queue.lease_ttl", defaults.Queue.LeaseTTL)
	v.SetDefault("queue.operation_timeout", defaults.Queue.OperationTimeout)

	v.SetDefault("results.redis_url", defaults.Results.RedisURL)
	v.SetDefault("results.ttl", defaults.Results.TTL)
	v.SetDefault("results.operation_timeout", defaults.Results.OperationTimeout)

	v.SetDefault("timeline.mongo_url", defaults.Timeline.MongoURL)
	v.SetDefault("timeline.database", defaults.Timeline.Database)
	v.SetDefault("timeline.operation_timeout", defaults.Timeline.OperationTimeout)

	v.SetDefault("parser.base_url", defaults.Parser.BaseURL)
	v.SetDefault("parser.request_timeout", defaults.Parser.RequestTimeout)
	v.SetDefault("parser.requests_per_second", defaults.Parser.RequestsPerSecond)

	v.SetDefault("worker.concurrency", defaults.Worker.Concurrency)
	v.SetDefault("worker.max_attempts", defaults.Worker.MaxAttempts)
	v.SetDefault("worker.backoff_base", defaults.Worker.BackoffBase)
	v.SetDefault("worker.backoff_max", defaults.Worker.BackoffMax)
	v.SetDefault("worker.shutdown_grace", defaults.Worker.ShutdownGrace)

	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// bindEnvVars explicitly binds environment variables for nested structs.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("queue.redis_url", l.prefixedEnv("QUEUE_REDIS_URL"))
	v.BindEnv("queue.name", l.prefixedEnv("QUEUE_NAME"))
	v.BindEnv("queue.claim_interval", l.prefixedEnv("QUEUE_CLAIM_INTERVAL"))
	v.BindEnv("queue.lease_ttl", l.prefixedEnv("QUEUE_LEASE_TTL"))
	v.BindEnv("queue.operation_timeout", l.prefixedEnv("QUEUE_OPERATION_TIMEOUT"))

	v.BindEnv("results.redis_url", l.prefixedEnv("RESULTS_REDIS_URL"))
	v.BindEnv("results.ttl", l.prefixedEnv("RESULTS_TTL"))
	v.BindEnv("results.operation_timeout", l.prefixedEnv("RESULTS_OPERATION_TIMEOUT"))

	v.BindEnv("timeline.mongo_url", l.prefixedEnv("TIMELINE_MONGO_URL"))
	v.BindEnv("timeline.database", l.prefixedEnv("TIMELINE_DATABASE"))
	v.BindEnv("timeline.operation_timeout", l.prefixedEnv("TIMELINE_OPERATION_TIMEOUT"))

	v.BindEnv("parser.base_url", l.prefixedEnv("PARSER_BASE_URL"))
	v.BindEnv("parser.request_timeout", l.prefixedEnv("PARSER_REQUEST_TIMEOUT"))
	v.BindEnv("parser.requests_per_second", l.prefixedEnv("PARSER_REQUESTS_PER_SECOND"))

	v.BindEnv("worker.concurrency", l.prefixedEnv("WORKER_CONCURRENCY"))
	v.BindEnv("worker.max_attempts", l.prefixedEnv("WORKER_MAX_ATTEMPTS"))
	v.BindEnv("worker.backoff_base", l.prefixedEnv("WORKER_BACKOFF_BASE"))
	v.BindEnv("worker.backoff_max", l.prefixedEnv("WORKER_BACKOFF_MAX"))
	v.BindEnv("worker.shutdown_grace", l.prefixedEnv("WORKER_SHUTDOWN_GRACE"))

	v.BindEnv("metrics.addr", l.prefixedEnv("METRICS_ADDR"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	if l.envPrefix == "" {
		return name
	}
	return l.envPrefix + "_" + name
}

// Validate checks cross-field constraints that viper cannot express.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	if strings.TrimSpace(cfg.Queue.RedisURL) == "" {
		errs = append(errs, errors.New("queue.redis_url is required"))
	}
	if strings.TrimSpace(cfg.Queue.Name) == "" {
		errs = append(errs, errors.New("queue.name is required"))
	}
	if strings.TrimSpace(cfg.Results.RedisURL) == "" {
		errs = append(errs, errors.New("results.redis_url is required"))
	}
	if cfg.Results.TTL <= 0 {
		errs = append(errs, errors.New("results.ttl must be positive"))
	}
	if strings.TrimSpace(cfg.Parser.BaseURL) == "" {
		errs = append(errs, errors.New("parser.base_url is required"))
	}
	if cfg.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	if cfg.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("worker.max_attempts must be positive"))
	}
	if cfg.Worker.BackoffBase <= 0 {
		errs = append(errs, errors.New("worker.backoff_base must be positive"))
	}
	if cfg.Worker.BackoffMax > 0 && cfg.Worker.BackoffMax < cfg.Worker.BackoffBase {
		errs = append(errs, errors.New("worker.backoff_max must be >= worker.backoff_base"))
	}
	if cfg.Worker.ShutdownGrace <= 0 {
		errs = append(errs, errors.New("worker.shutdown_grace must be positive"))
	}
	if cfg.Queue.LeaseTTL <= 0 {
		errs = append(errs, errors.New("queue.lease_ttl must be positive"))
	}

	return errors.Join(errs...)
}
