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

	"github.com/rs/zerolog"

	"horse.fit/argus/internal/cli"
	"horse.fit/argus/internal/clustering"
	"horse.fit/argus/internal/config"
	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/entity"
	"horse.fit/argus/internal/globaltime"
	"horse.fit/argus/internal/llm"
	"horse.fit/argus/internal/logging"
	"horse.fit/argus/internal/similarity"
	"horse.fit/argus/internal/vectorstore"
	"horse.fit/argus/internal/worker"
)

// runAnalysis runs the Analysis Worker's fallback-aware drain loop
// alongside the Clustering Engine's periodic maintenance (summary
// refresh and merge scan), until SIGINT/SIGTERM. Grounded on the same
// pipeline-cycle shape as runDecision, extended with a maintenance
// ticker the way janitrai-scoop/scoop/internal/app/pipeline.go interleaves
// its dedup pass with document processing.
func runAnalysis(args []string) int {
	fs := flag.NewFlagSet("analysis", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	pollInterval := fs.Duration("poll-interval", 5*time.Second, "Sleep between empty queue drains")
	maintenanceInterval := fs.Duration("maintenance-interval", 2*time.Minute, "Interval between cluster summary/merge maintenance passes")

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
		logger.Error().Err(err).Msg("analysis worker startup failed")
		return 1
	}
	defer pool.Close()

	analysisLLM := llm.New(
		cfg.AnalysisLLMEndpointList(),
		time.Duration(cfg.LLMRequestTimeout)*time.Second,
		cfg.LLMMaxRetries,
		llm.JSONParams{Model: cfg.AnalysisLLMModel, Temperature: 0.1},
	)
	decisionLLM := llm.New(
		cfg.DecisionLLMEndpointList(),
		time.Duration(cfg.LLMRequestTimeout)*time.Second,
		cfg.LLMMaxRetries,
		llm.JSONParams{Model: cfg.DecisionLLMModel, Temperature: 0},
	)

	thresholds := entity.NewThresholdSet(
		cfg.FuzzyPersonJaroWinkler, cfg.FuzzyPersonLevenshtein,
		cfg.FuzzyOrgJaroWinkler, cfg.FuzzyOrgLevenshtein,
		cfg.FuzzyLocationJaroWinkler, cfg.FuzzyLocationLevenshtein,
		cfg.FuzzyProductJaroWinkler, cfg.FuzzyProductLevenshtein,
	)
	aliasRepo := entity.NewAliasRepository(pool, time.Duration(cfg.AliasCacheTTLMinutes)*time.Minute, cfg.AliasCacheMaxEntries, thresholds)
	normalizer := entity.NewNormalizer(pool, aliasRepo, thresholds)
	extractor := entity.NewExtractor(pool, analysisLLM, normalizer)

	embedder := vectorstore.NewEmbeddingClient(cfg.VectorStoreEndpoint, cfg.VectorDimensions, time.Duration(cfg.VectorRequestTimeout)*time.Second)
	store := vectorstore.NewStore(pool, cfg.EmbeddingModelName)

	similarityWeights := similarity.Weights{Vector: cfg.WeightVector, Entity: cfg.WeightEntity, Temporal: cfg.WeightTemporal}
	similarityEngine := similarity.NewEngine(similarityWeights, similarity.DefaultTypeWeights())
	gatherer := similarity.NewGatherer(pool, store, similarityEngine)

	clusterEngine := clustering.NewEngine(pool, similarityEngine,
		clustering.ImportanceWeights{Count: cfg.ClusterImportanceWeightCount, Quality: cfg.ClusterImportanceWeightQuality, Recency: cfg.ClusterImportanceWeightRecency},
		clustering.MergeThresholds{Jaccard: cfg.ClusterMergeEntityJaccard, SummaryCosine: cfg.ClusterMergeSummaryCosine},
	)
	mergeScanner := clustering.NewMergeScanner(pool, embedder, clusterEngine)

	aw := worker.NewAnalysisWorker(pool, analysisLLM, extractor, embedder, store, gatherer, clusterEngine, worker.AnalysisConfig{
		Model:            cfg.AnalysisLLMModel,
		LeaseDuration:    time.Duration(cfg.QueueLeaseMinutes) * time.Minute,
		MaxAttempts:      cfg.QueueMaxAttempts,
		IdleThreshold:    time.Duration(cfg.AnalysisIdleThresholdSeconds) * time.Second,
		FallbackDuration: time.Duration(cfg.AnalysisFallbackMinutes) * time.Minute,
	}, logger)

	dw := worker.NewDecisionWorker(pool, decisionLLM, worker.DecisionConfig{
		Model:         cfg.DecisionLLMModel,
		Topics:        cfg.TopicList(),
		MaxArticleAge: time.Duration(cfg.DecisionArticleMaxAgeHours) * time.Hour,
		LeaseDuration: time.Duration(cfg.QueueLeaseMinutes) * time.Minute,
		MaxAttempts:   cfg.QueueMaxAttempts,
	}, logger)

	maintainer := worker.NewMaintainer(pool, analysisLLM, clusterEngine, mergeScanner, cfg.AnalysisLLMModel, logger)

	go runMaintenanceLoop(ctx, maintainer, *maintenanceInterval, logger)

	logger.Info().Msg("analysis worker started")
	for {
		if err := aw.RunWithFallback(ctx, dw); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Msg("analysis worker stopped")
				return 0
			}
			logger.Error().Err(err).Msg("analysis worker exiting on fatal error")
			return 1
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("analysis worker stopped")
			return 0
		case <-time.After(*pollInterval):
		}
	}
}

func runMaintenanceLoop(ctx context.Context, m *worker.Maintainer, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := globaltime.UTC()
			refreshed, err := m.RefreshSummaries(ctx, now)
			if err != nil {
				logger.Error().Err(err).Msg("cluster summary refresh failed")
				continue
			}
			if refreshed > 0 {
				logger.Info().Int("refreshed", refreshed).Msg("cluster summaries refreshed")
			}
			if _, err := m.RunMergeScan(ctx, now); err != nil {
				logger.Error().Err(err).Msg("cluster merge scan failed")
			}
		}
	}
}
