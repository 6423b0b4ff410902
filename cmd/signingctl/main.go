// Package main provides signing maintenance utilities.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/docseal/internal/cmd/signingctl"
	"github.com/louisbranch/docseal/internal/platform/config"
)

func main() {
	cfg, err := signingctl.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(config.ExitUsage, "Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := signingctl.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("Error: %v", err)
	}
}
