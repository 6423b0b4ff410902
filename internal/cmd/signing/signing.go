// Package signing parses signing command flags and launches the signing API.
package signing

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/docseal/internal/platform/cmd"
	server "github.com/louisbranch/docseal/internal/services/signing/app"
)

// Config holds signing command configuration.
type Config struct {
	Port     int    `env:"DOCSEAL_SIGNING_PORT" envDefault:"8090"`
	HTTPAddr string `env:"DOCSEAL_SIGNING_HTTP_ADDR" envDefault:":8091"`
	DBPath   string `env:"DOCSEAL_SIGNING_DB_PATH" envDefault:"data/signing.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The signing health gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The signing HTTP API address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The signing SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the signing server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSigning, func(context.Context) error {
		return server.Run(ctx, server.Config{
			Port:     cfg.Port,
			HTTPAddr: cfg.HTTPAddr,
			DBPath:   cfg.DBPath,
		})
	})
}
