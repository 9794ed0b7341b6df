package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/argus/internal/clustering"
	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/entity"
	"horse.fit/argus/internal/errkind"
	"horse.fit/argus/internal/globaltime"
	"horse.fit/argus/internal/llm"
	"horse.fit/argus/internal/metrics"
	"horse.fit/argus/internal/schema"
	"horse.fit/argus/internal/similarity"
	"horse.fit/argus/internal/vectorstore"
)

// AnalysisLLM is the subset of the LLM Client (§4.J) the Analysis
// Worker's own step needs: a structured analysis payload (summary,
// tiny_summary, tiny_title, quality, ELI5) requested under the Generic
// schema, since no dedicated schema id covers this shape (§6.3).
type AnalysisLLM interface {
	GenerateJSONWithParams(ctx context.Context, prompt string, schemaID schema.ID, params llm.JSONParams) (json.RawMessage, error)
	GenerateText(ctx context.Context, prompt string, params llm.TextParams) (string, error)
}

// AnalysisConfig carries §4.I's tunables and the idle/fallback
// role-switching thresholds of §5.
type AnalysisConfig struct {
	Model            string
	LeaseDuration    time.Duration
	MaxAttempts      int
	IdleThreshold    time.Duration
	FallbackDuration time.Duration
}

type analysisPayload struct {
	Summary       string          `json:"summary"`
	TinySummary   string          `json:"tiny_summary"`
	TinyTitle     string          `json:"tiny_title"`
	ELI5          string          `json:"eli5"`
	Quality       float64         `json:"quality"`
	QualityScores json.RawMessage `json:"quality_scores"`
	EventDate     *string         `json:"event_date,omitempty"`
}

// AnalysisWorker drains the SAFETY/TOPIC analysis queues (§4.I): LLM
// analysis, entity extraction, embedding, similarity, and clustering, run
// in that order per article because the Similarity and Clustering
// Engines both require the embedding already stored (§5).
type AnalysisWorker struct {
	pool      *db.Pool
	llmc      AnalysisLLM
	extractor *entity.Extractor
	embedder  *vectorstore.EmbeddingClient
	store     *vectorstore.Store
	gatherer  *similarity.Gatherer
	engine    *clustering.Engine

	cfg    AnalysisConfig
	logger zerolog.Logger

	lastClaimAt time.Time
}

func NewAnalysisWorker(
	pool *db.Pool,
	llmc AnalysisLLM,
	extractor *entity.Extractor,
	embedder *vectorstore.EmbeddingClient,
	store *vectorstore.Store,
	gatherer *similarity.Gatherer,
	engine *clustering.Engine,
	cfg AnalysisConfig,
	logger zerolog.Logger,
) *AnalysisWorker {
	return &AnalysisWorker{
		pool:        pool,
		llmc:        llmc,
		extractor:   extractor,
		embedder:    embedder,
		store:       store,
		gatherer:    gatherer,
		engine:      engine,
		cfg:         cfg,
		logger:      logger.With().Str("worker", "analysis").Logger(),
		lastClaimAt: globaltime.UTC(),
	}
}

// Run drains the SAFETY/TOPIC queues until both report empty or ctx is
// cancelled.
func (w *AnalysisWorker) Run(ctx context.Context) error {
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

// IdleFor reports how long it has been since the last successful claim,
// the signal §4.I's fallback role-switching measures idleness against.
func (w *AnalysisWorker) IdleFor(now time.Time) time.Duration {
	return now.Sub(w.lastClaimAt)
}

// RunWithFallback implements §4.I's role-switching loop: drain analysis
// queues; when idle past IdleThreshold, run fallback (the Decision
// Worker) for up to FallbackDuration, then resume.
func (w *AnalysisWorker) RunWithFallback(ctx context.Context, fallback *DecisionWorker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.Run(ctx); err != nil {
			return err
		}

		if w.IdleFor(globaltime.UTC()) < w.cfg.IdleThreshold {
			return nil
		}

		metrics.AnalysisFallbackActive.Set(1)
		fallbackCtx, cancel := context.WithTimeout(ctx, w.cfg.FallbackDuration)
		err := fallback.Run(fallbackCtx)
		cancel()
		metrics.AnalysisFallbackActive.Set(0)
		if err != nil && err != context.DeadlineExceeded {
			return err
		}
		return nil
	}
}

// ClaimAndProcessOne claims the next analysis item, preferring SAFETY
// over TOPIC (§4.I), and runs it through the full analysis pipeline.
// Reports false when both queues held nothing claimable.
func (w *AnalysisWorker) ClaimAndProcessOne(ctx context.Context) (bool, error) {
	queueKind := db.QueueKindSafety
	item, ok, err := w.claim(ctx, queueKind)
	if err != nil {
		return false, err
	}
	if !ok {
		queueKind = db.QueueKindTopic
		item, ok, err = w.claim(ctx, queueKind)
		if err != nil {
			return false, err
		}
	}
	if !ok {
		return false, nil
	}
	w.lastClaimAt = globaltime.UTC()
	metrics.QueueClaimsTotal.WithLabelValues(queueKind, "analysis").Inc()

	if procErr := w.process(ctx, item); procErr != nil {
		w.logger.Error().Err(procErr).Int64("article_id", item.ArticleID).Str("kind", errkind.Of(procErr).String()).Msg("analysis processing failed")
		if errkind.Of(procErr) == errkind.Fatal {
			return true, procErr
		}
		if relErr := w.releaseForRetry(ctx, item, queueKind, errkind.Of(procErr)); relErr != nil {
			return true, relErr
		}
	}
	return true, nil
}

func (w *AnalysisWorker) claim(ctx context.Context, queueKind string) (db.ClaimedQueueItem, bool, error) {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, fmt.Errorf("begin analysis claim tx: %w", err))
	}
	item, ok, err := db.ClaimNextQueueItem(ctx, tx, queueKind, w.cfg.LeaseDuration, globaltime.UTC())
	if err != nil {
		_ = tx.Rollback(ctx)
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, err)
	}
	if !ok {
		_ = tx.Rollback(ctx)
		return db.ClaimedQueueItem{}, false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return db.ClaimedQueueItem{}, false, errkind.Wrap(errkind.Transient, fmt.Errorf("commit analysis claim: %w", err))
	}
	return item, true, nil
}

// process runs §4.I's six ordered steps for one claimed article.
func (w *AnalysisWorker) process(ctx context.Context, item db.ClaimedQueueItem) error {
	article, err := w.pool.GetArticle(ctx, item.ArticleID)
	if err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("load article %d: %w", item.ArticleID, err))
	}
	now := globaltime.UTC()

	payload, err := w.runLLMAnalysis(ctx, article)
	if err != nil {
		return err
	}

	extraction, err := w.extractor.Extract(ctx, article.ID, article.Title+"\n\n"+article.Body)
	if err != nil {
		if errkind.Of(err) != errkind.Validation {
			return err
		}
		extraction = entity.ExtractionResult{}
	}

	embedding, err := w.embedder.Embed(ctx, []string{article.Title + "\n\n" + article.Body})
	if err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("embed article %d: %w", article.ID, err))
	}
	if len(embedding) != 1 {
		return errkind.WrapReason(errkind.Data, "embedding batch size mismatch", fmt.Errorf("expected 1 embedding, got %d", len(embedding)))
	}

	entityIDs := make([]int64, 0, len(extraction.Entities))
	refs := make([]similarity.EntityRef, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		entityIDs = append(entityIDs, e.EntityID)
		refs = append(refs, similarity.EntityRef{EntityID: e.EntityID, Type: e.Type, Importance: e.Importance})
	}

	eventDate := extraction.EventDate
	if eventDate == nil {
		eventDate = payload.EventDate
	}

	if err := w.store.Upsert(ctx, article.ID, embedding[0], vectorstore.Payload{
		EntityIDs: entityIDs,
		PubDate:   article.PubDate,
		EventDate: eventDate,
	}, now); err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("store embedding for article %d: %w", article.ID, err))
	}

	facts := similarity.ArticleFacts{
		ArticleID: article.ID,
		Embedding: embedding[0],
		Entities:  refs,
		Date:      coalesceArticleDate(article.PubDate, eventDate),
	}

	// §4.F's candidate gather feeds the diagnostics/logging surface the
	// spec calls "similar articles" — the Persistent Store carries no
	// dedicated similar-articles table, so the ranked list itself isn't
	// persisted; the Clustering Engine recomputes its own pairwise scores
	// against cluster members independently.
	if candidates, err := w.gatherer.Candidates(ctx, facts); err == nil && len(candidates) > 0 {
		top := candidates[0]
		w.logger.Debug().Int64("article_id", article.ID).Int64("nearest", top.Report.ArticleB).Float64("score", top.Report.Combined).Msg("nearest candidate")
		for _, c := range candidates {
			metrics.SimilarityScoresObserved.WithLabelValues("analysis").Observe(c.Report.Combined)
		}
	}

	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}

	decision, err := w.engine.Assign(ctx, tx, facts, now)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	outcome := "joined_existing"
	if decision.Created {
		outcome = "created"
	}
	metrics.ClusterAssignmentsTotal.WithLabelValues(outcome).Inc()

	if err := w.pool.SetArticleAnalyzed(ctx, tx, article.ID, payload.asAnalysisJSON(), payload.Summary, payload.TinySummary, payload.TinyTitle, eventDate, decision.ClusterID, now); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := db.ReleaseQueueItemDone(ctx, tx, item.ID); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("commit analysis outcome for article %d: %w", article.ID, err))
	}
	return nil
}

func (p analysisPayload) asAnalysisJSON() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func (w *AnalysisWorker) runLLMAnalysis(ctx context.Context, article db.Article) (analysisPayload, error) {
	prompt := fmt.Sprintf("Analyze the following article and respond with JSON containing summary, tiny_summary, tiny_title, eli5, quality, quality_scores, event_date.\n\nTitle: %s\n\n%s", article.Title, article.Body)
	raw, err := w.llmc.GenerateJSONWithParams(ctx, prompt, schema.Generic, llm.JSONParams{Model: w.cfg.Model})
	if err != nil {
		if errkind.Of(err) == errkind.Validation {
			// §7: degrade to a partial result rather than aborting the
			// whole pipeline over an LLM formatting slip.
			return analysisPayload{Summary: article.Title}, nil
		}
		return analysisPayload{}, err
	}
	var payload analysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return analysisPayload{Summary: article.Title}, nil
	}
	return payload, nil
}

func (w *AnalysisWorker) releaseForRetry(ctx context.Context, item db.ClaimedQueueItem, queueKind string, kind errkind.Kind) error {
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
		metrics.QueueDeadLetteredTotal.WithLabelValues(queueKind).Inc()
	} else {
		metrics.QueueRetriesTotal.WithLabelValues(queueKind, kind.String()).Inc()
	}
	return nil
}

func coalesceArticleDate(pubDate *time.Time, eventDate *string) *time.Time {
	if eventDate != nil {
		if t, err := time.Parse("2006-01-02", *eventDate); err == nil {
			return &t
		}
	}
	return pubDate
}
