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
	"horse.fit/argus/internal/llm"
	"horse.fit/argus/internal/logging"
	"horse.fit/argus/internal/worker"
)

// runDecision runs the Decision Worker's drain loop until SIGINT/SIGTERM,
// sleeping pollInterval between empty drains. Grounded on the
// pipeline-cycle shape of janitrai-scoop/scoop/internal/app/pipeline.go,
// adapted from a fixed-iteration loop to a claim-driven drain loop.
func runDecision(args []string) int {
	fs := flag.NewFlagSet("decision", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	pollInterval := fs.Duration("poll-interval", 5*time.Second, "Sleep between empty queue drains")

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
		logger.Error().Err(err).Msg("decision worker startup failed")
		return 1
	}
	defer pool.Close()

	llmc := llm.New(
		cfg.DecisionLLMEndpointList(),
		time.Duration(cfg.LLMRequestTimeout)*time.Second,
		cfg.LLMMaxRetries,
		llm.JSONParams{Model: cfg.DecisionLLMModel, Temperature: 0},
	)

	dw := worker.NewDecisionWorker(pool, llmc, worker.DecisionConfig{
		Model:         cfg.DecisionLLMModel,
		Topics:        cfg.TopicList(),
		MaxArticleAge: time.Duration(cfg.DecisionArticleMaxAgeHours) * time.Hour,
		LeaseDuration: time.Duration(cfg.QueueLeaseMinutes) * time.Minute,
		MaxAttempts:   cfg.QueueMaxAttempts,
	}, logger)

	logger.Info().Msg("decision worker started")
	for {
		if err := dw.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Msg("decision worker stopped")
				return 0
			}
			logger.Error().Err(err).Msg("decision worker exiting on fatal error")
			return 1
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("decision worker stopped")
			return 0
		case <-time.After(*pollInterval):
		}
	}
}
