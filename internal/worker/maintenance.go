package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/argus/internal/clustering"
	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/errkind"
	"horse.fit/argus/internal/llm"
	"horse.fit/argus/internal/metrics"
)

// summaryBatchLimit bounds how many dirty clusters one Maintainer pass
// refreshes, so a backlog can't starve the analysis loop it runs
// alongside.
const summaryBatchLimit = 20

// Maintainer runs the Clustering Engine's periodic work that doesn't
// belong to any single article's claim: summary regeneration (§4.G's
// power-of-two/24h trigger) and the merge scan. Grounded on the same
// claim-adjacent-maintenance idiom the teacher's pipeline.go applies to
// its dedup pass, adapted to clusters instead of documents.
type Maintainer struct {
	pool         *db.Pool
	llmc         AnalysisLLM
	engine       *clustering.Engine
	mergeScanner *clustering.MergeScanner
	model        string
	logger       zerolog.Logger
}

func NewMaintainer(pool *db.Pool, llmc AnalysisLLM, engine *clustering.Engine, mergeScanner *clustering.MergeScanner, model string, logger zerolog.Logger) *Maintainer {
	return &Maintainer{
		pool:         pool,
		llmc:         llmc,
		engine:       engine,
		mergeScanner: mergeScanner,
		model:        model,
		logger:       logger.With().Str("worker", "maintenance").Logger(),
	}
}

// RefreshSummaries regenerates the summary of every cluster flagged
// needs_summary_update, synthesizing new text from its member articles.
func (m *Maintainer) RefreshSummaries(ctx context.Context, now time.Time) (int, error) {
	dirty, err := m.pool.GetClustersNeedingSummaryUpdates(ctx, summaryBatchLimit)
	if err != nil {
		return 0, errkind.Wrap(errkind.Transient, err)
	}

	var refreshed int
	for _, c := range dirty {
		if err := m.refreshOne(ctx, c, now); err != nil {
			m.logger.Error().Err(err).Int64("cluster_id", c.ID).Msg("summary refresh failed")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (m *Maintainer) refreshOne(ctx context.Context, c db.ClusterNeedingSummary, now time.Time) error {
	articles, err := m.pool.GetClusterArticles(ctx, c.ID)
	if err != nil {
		return errkind.Wrap(errkind.Transient, fmt.Errorf("load articles for cluster %d: %w", c.ID, err))
	}
	if len(articles) == 0 {
		return nil
	}

	summary, err := m.synthesizeSummary(ctx, articles)
	if err != nil {
		return err
	}

	var totalQuality float64
	var qualityCount int
	var mostRecent time.Time
	for _, a := range articles {
		if a.Quality != nil {
			totalQuality += *a.Quality
			qualityCount++
		}
		if a.PubDate != nil && a.PubDate.After(mostRecent) {
			mostRecent = *a.PubDate
		}
	}
	avgQuality := 0.0
	if qualityCount > 0 {
		avgQuality = totalQuality / float64(qualityCount)
	}
	age := now.Sub(mostRecent)
	if mostRecent.IsZero() {
		age = 0
	}
	importance := m.engine.Importance(len(articles), avgQuality, age)

	tx, err := m.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := m.pool.UpdateClusterSummary(ctx, tx, c.ID, summary, json.RawMessage("null"), false, importance, now); err != nil {
		_ = tx.Rollback(ctx)
		return errkind.Wrap(errkind.Transient, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, err)
	}
	return nil
}

func (m *Maintainer) synthesizeSummary(ctx context.Context, articles []db.Article) (string, error) {
	var b strings.Builder
	for _, a := range articles {
		if a.Summary != nil {
			fmt.Fprintf(&b, "- %s: %s\n", a.Title, *a.Summary)
		} else {
			fmt.Fprintf(&b, "- %s\n", a.Title)
		}
	}
	prompt := fmt.Sprintf("Synthesize one running summary for the following related articles:\n\n%s", b.String())
	text, err := m.llmc.GenerateText(ctx, prompt, llm.TextParams{Model: m.model, Temperature: 0.2})
	if err != nil {
		if errkind.Of(err) == errkind.Validation {
			return articles[len(articles)-1].Title, nil
		}
		return "", err
	}
	return text, nil
}

// RunMergeScan runs the Clustering Engine's merge scan (§4.G).
func (m *Maintainer) RunMergeScan(ctx context.Context, now time.Time) ([]clustering.MergeCandidate, error) {
	merged, err := m.mergeScanner.Scan(ctx, now)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, err)
	}
	for _, c := range merged {
		m.logger.Info().Int64("original_cluster_id", c.OriginalClusterID).Int64("merged_into_cluster_id", c.MergedIntoClusterID).Float64("jaccard", c.Jaccard).Float64("summary_cosine", c.SummaryCosine).Msg("clusters merged")
		metrics.ClusterMergesTotal.Inc()
	}
	return merged, nil
}
