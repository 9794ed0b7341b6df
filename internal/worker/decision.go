// Package worker implements the Decision Worker (§4.H) and Analysis
// Worker (§4.I): claim-loop processors over the RSS/TOPIC/SAFETY queues.
// The drain-to-empty loop shape is grounded on runProcess in
// janitrai-scoop/scoop/internal/app/pipeline.go; the claim-tx-then-
// commit-outcome-tx idiom is grounded on IngestOne in
// janitrai-scoop/news-pipeline/internal/ingest/service.go.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/errkind"
	"horse.fit/argus/internal/globaltime"
	"horse.fit/argus/internal/llm"
	"horse.fit/argus/internal/metrics"
	"horse.fit/argus/internal/schema"
)

// DecisionLLM is the subset of the LLM Client (§4.J) the Decision Worker
// needs: plain-text topic/promotional relevance checks and a structured
// threat-location request for the life-safety path.
type DecisionLLM interface {
	GenerateText(ctx context.Context, prompt string, params llm.TextParams) (string, error)
	GenerateJSONWithParams(ctx context.Context, prompt string, schemaID schema.ID, params llm.JSONParams) (json.RawMessage, error)
}

// DecisionConfig carries §4.H's tunables.
type DecisionConfig struct {
	Model         string
	Topics        []string
	MaxArticleAge time.Duration
	LeaseDuration time.Duration
	MaxAttempts   int
}

// DecisionWorker drains the RSS queue (§4.H): rejects stale or
// inaccessible articles, classifies life-safety and per-topic relevance,
// and routes survivors onto the SAFETY or TOPIC analysis queues.
type DecisionWorker struct {
	pool   *db.Pool
	llmc   DecisionLLM
	cfg    DecisionConfig
	logger zerolog.Logger
}

func NewDecisionWorker(pool *db.Pool, llmc DecisionLLM, cfg DecisionConfig, logger zerolog.Logger) *DecisionWorker {
	return &DecisionWorker{
		pool:   pool,
		llmc:   llmc,
		cfg:    cfg,
		logger: logger.With().Str("worker", "decision").Logger(),
	}
}

// Run drains the RSS queue until it reports empty or ctx is cancelled.
func (w *DecisionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		processed, err := w.ClaimAndProcessOne(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}

// ClaimAndProcessOne claims the next RSS queue item, if any, and runs it
// through §4.H's classification pipeline. Reports false when the queue
// held nothing claimable.
func (w *DecisionWorker) ClaimAndProcessOne(ctx context.Context) (bool, error) {
	item, ok, err := w.claim(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if procErr := w.process(ctx, item); procErr != nil {
		w.logger.Error().Err(procErr).Int64("article_id", item.ArticleID).Str("kind", errkind.Of(procErr).String()).Msg("decision processing failed")
		if errkind.Of(procErr) == errkind.Fatal {
			return true, procErr
		}
		if relErr := w.releaseForRetry(ctx, item, errkind.Of(procErr)); relErr != nil {
			return true, relErr
		}
	}
	return true, nil
}

func (w *DecisionWorker) claim(ctx context.Context) (db.ClaimedQueueItem, bool, error) {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, fmt.Errorf("begin decision claim tx: %w", err))
	}
	item, ok, err := db.ClaimNextQueueItem(ctx, tx, db.QueueKindRSS, w.cfg.LeaseDuration, globaltime.UTC())
	if err != nil {
		_ = tx.Rollback(ctx)
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, err)
	}
	if !ok {
		_ = tx.Rollback(ctx)
		return db.ClaimedQueueItem{}, false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, fmt.Errorf("commit decision claim: %w", err))
	}
	metrics.QueueClaimsTotal.WithLabelValues(db.QueueKindRSS, "decision").Inc()
	return item, true, nil
}

func (w *DecisionWorker) process(ctx context.Context, item db.ClaimedQueueItem) error {
	article, err := w.pool.GetArticle(ctx, item.ArticleID)
	if err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("load article %d: %w", item.ArticleID, err))
	}

	now := globaltime.UTC()
	if article.PubDate != nil && now.Sub(*article.PubDate) > w.cfg.MaxArticleAge {
		return w.finish(ctx, item, func(tx db.Tx) error {
			return w.pool.SetArticleRejected(ctx, tx, article.ID, db.RejectReasonAge, nil, now)
		})
	}
	if strings.TrimSpace(article.Body) == "" {
		return w.finish(ctx, item, func(tx db.Tx) error {
			return w.pool.SetArticleRejected(ctx, tx, article.ID, db.FailureAccessError, nil, now)
		})
	}

	text := article.Title + "\n\n" + article.Body

	promotional, err := w.classifyPromotional(ctx, text)
	if err != nil {
		return err
	}
	if promotional {
		return w.finish(ctx, item, func(tx db.Tx) error {
			return w.pool.SetArticleRejected(ctx, tx, article.ID, db.RejectReasonPromotional, nil, now)
		})
	}

	lifeSafety, regions, err := w.classifyLifeSafety(ctx, text)
	if err != nil {
		return err
	}
	if lifeSafety {
		qualityScores, _ := json.Marshal(map[string]any{"life_safety": true, "impacted_regions": regions})
		return w.finish(ctx, item, func(tx db.Tx) error {
			return w.pool.SetArticleQueuedForAnalysis(ctx, tx, article.ID, db.ArticleStatusQueuedSafety, qualityScores, 1.0, db.QueueKindSafety, now)
		})
	}

	topic, quality, err := w.classifyTopic(ctx, text)
	if err != nil {
		return err
	}
	if topic == "" {
		return w.finish(ctx, item, func(tx db.Tx) error {
			return w.pool.SetArticleRejected(ctx, tx, article.ID, db.RejectReasonNonRelevant, nil, now)
		})
	}

	qualityScores, _ := json.Marshal(map[string]any{"topic": topic})
	return w.finish(ctx, item, func(tx db.Tx) error {
		return w.pool.SetArticleQueuedForAnalysis(ctx, tx, article.ID, db.ArticleStatusQueuedTopic, qualityScores, quality, db.QueueKindTopic, now)
	})
}

// finish runs mutate and the queue-item completion in one transaction, so
// an article's routing decision and the consumption of its claim are
// atomic (spec §5 ordering guarantee).
func (w *DecisionWorker) finish(ctx context.Context, item db.ClaimedQueueItem, mutate func(db.Tx) error) error {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := mutate(tx); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := db.ReleaseQueueItemDone(ctx, tx, item.ID); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("commit decision outcome for article %d: %w", item.ArticleID, err))
	}
	return nil
}

func (w *DecisionWorker) releaseForRetry(ctx context.Context, item db.ClaimedQueueItem, kind errkind.Kind) error {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := db.ReleaseQueueItemRetry(ctx, tx, item.ID, item.Attempts, w.cfg.MaxAttempts); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}
	if item.Attempts >= w.cfg.MaxAttempts {
		metrics.QueueDeadLetteredTotal.WithLabelValues(db.QueueKindRSS).Inc()
	} else {
		metrics.QueueRetriesTotal.WithLabelValues(db.QueueKindRSS, kind.String()).Inc()
	}
	return nil
}

func (w *DecisionWorker) classifyPromotional(ctx context.Context, text string) (bool, error) {
	prompt := fmt.Sprintf("Respond with exactly YES or NO: is the following article promotional or advertising content?\n\n%s", text)
	resp, err := w.llmc.GenerateText(ctx, prompt, llm.TextParams{Model: w.cfg.Model, Temperature: 0})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "YES"), nil
}

func (w *DecisionWorker) classifyLifeSafety(ctx context.Context, text string) (bool, []schema.ImpactedRegion, error) {
	prompt := fmt.Sprintf("Respond with exactly YES or NO on the first line: does the following article describe an active life-safety threat?\n\n%s", text)
	resp, err := w.llmc.GenerateText(ctx, prompt, llm.TextParams{Model: w.cfg.Model, Temperature: 0})
	if err != nil {
		return false, nil, err
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(resp), "\n")
	if !strings.HasPrefix(strings.ToUpper(firstLine), "YES") {
		return false, nil, nil
	}

	raw, err := w.llmc.GenerateJSONWithParams(ctx, text, schema.ThreatLocation, llm.JSONParams{Model: w.cfg.Model})
	if err != nil {
		if errkind.Of(err) == errkind.Validation {
			// §7: VALIDATION degrades to an empty result; the article is
			// still life-safety, just without structured regions.
			return true, nil, nil
		}
		return true, nil, err
	}
	payload, err := schema.ValidateThreatLocation(raw)
	if err != nil {
		return true, nil, nil
	}
	return true, payload.ImpactedRegions, nil
}

// classifyTopic asks per-topic relevance in random order (§4.H), stopping
// at the first match.
func (w *DecisionWorker) classifyTopic(ctx context.Context, text string) (string, float64, error) {
	order := rand.Perm(len(w.cfg.Topics))
	for _, idx := range order {
		topic := w.cfg.Topics[idx]
		prompt := fmt.Sprintf("Respond with exactly YES or NO: is the following article relevant to the topic %q?\n\n%s", topic, text)
		resp, err := w.llmc.GenerateText(ctx, prompt, llm.TextParams{Model: w.cfg.Model, Temperature: 0})
		if err != nil {
			return "", 0, err
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "YES") {
			return topic, 1.0, nil
		}
	}
	return "", 0, nil
}
