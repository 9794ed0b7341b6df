package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/argus/internal/cli"
	"horse.fit/argus/internal/config"
	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/httpapi"
	"horse.fit/argus/internal/logging"
	"horse.fit/argus/internal/metrics"
)

// runServe starts the ops HTTP server (/healthz, /readyz, /metrics).
// Grounded on runServe's bootstrap shape in
// janitrai-scoop/backend/internal/app/serve.go.
func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ops server startup failed")
		return 1
	}
	defer pool.Close()

	server := httpapi.NewServer(pool, metrics.Registry(), logger, httpapi.Options{
		Addr:            cfg.HTTPAddr,
		ShutdownTimeout: 10 * time.Second,
	})
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("ops server failed")
		return 1
	}
	return 0
}
