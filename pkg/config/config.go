package config

import "time"

// Config is the root configuration for the courseflow service.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Results  ResultsConfig  `mapstructure:"results"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// MetricsConfig configures the Prometheus scrape endpoint. An empty
// Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QueueConfig configures the durable job queue backing store.
type QueueConfig struct {
	RedisURL         string        `mapstructure:"redis_url"`
	Name             string        `mapstructure:"name"`
	ClaimInterval    time.Duration `mapstructure:"claim_interval"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ResultsConfig configures the TTL-bound result store.
type ResultsConfig struct {
	RedisURL         string        `mapstructure:"redis_url"`
	TTL              time.Duration `mapstructure:"ttl"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// TimelineConfig configures the timeline lookup store.
type TimelineConfig struct {
	MongoURL         string        `mapstructure:"mongo_url"`
	Database         string        `mapstructure:"database"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ParserConfig configures the external parse-service client.
type ParserConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// WorkerConfig configures the worker pool and retry policy.
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// DefaultConfig returns the configuration used when no file or
// environment override is present.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "courseflow",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Queue: QueueConfig{
			RedisURL:         "redis://localhost:6379/0",
			Name:             "parse",
			ClaimInterval:    100 * time.Millisecond,
			LeaseTTL:         60 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Results: ResultsConfig{
			RedisURL:         "redis://localhost:6379/0",
			TTL:              24 * time.Hour,
			OperationTimeout: 5 * time.Second,
		},
		Timeline: TimelineConfig{
			MongoURL:         "mongodb://localhost:27017",
			Database:         "courseflow",
			OperationTimeout: 5 * time.Second,
		},
		Parser: ParserConfig{
			BaseURL:           "http://localhost:9090",
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 10,
		},
		Worker: WorkerConfig{
			Concurrency:   4,
			MaxAttempts:   3,
			BackoffBase:   time.Second,
			BackoffMax:    60 * time.Second,
			ShutdownGrace: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
	}
}
