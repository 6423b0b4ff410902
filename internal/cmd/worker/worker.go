// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/docseal/internal/platform/cmd"
	workerserver "github.com/louisbranch/docseal/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port          int           `env:"DOCSEAL_WORKER_PORT" envDefault:"8089"`
	DBPath        string        `env:"DOCSEAL_WORKER_DB_PATH" envDefault:"data/worker.db"`
	SigningDBPath string        `env:"DOCSEAL_SIGNING_DB_PATH" envDefault:"data/signing.db"`
	Consumer      string        `env:"DOCSEAL_WORKER_CONSUMER" envDefault:"worker-signing"`
	PollInterval  time.Duration `env:"DOCSEAL_WORKER_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL      time.Duration `env:"DOCSEAL_WORKER_LEASE_TTL" envDefault:"2m"`
	MaxAttempts   int           `env:"DOCSEAL_WORKER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"DOCSEAL_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"DOCSEAL_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
	BatchSize     int           `env:"DOCSEAL_WORKER_BATCH_SIZE" envDefault:"10"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker attempt journal SQLite path")
	fs.StringVar(&cfg.SigningDBPath, "signing-db-path", cfg.SigningDBPath, "The signing SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Signing outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Signing outbox poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Signing outbox lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events leased per poll")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			SigningDBPath: cfg.SigningDBPath,
			Consumer:      cfg.Consumer,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			BatchSize:     cfg.BatchSize,
		})
	})
}
