package clustering

import (
	"context"
	"fmt"
	"time"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/vectorstore"
)

// SummaryEmbedder is the subset of the Vector Store Adapter's embedding
// client the merge scan needs: cluster summaries, not articles.
type SummaryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// MergeCandidate is a pair the merge scan found clearing both gates.
type MergeCandidate struct {
	OriginalClusterID     int64
	MergedIntoClusterID   int64
	Jaccard               float64
	SummaryCosine         float64
}

// MergeScanner runs §4.G's merge scan: for every pair of active clusters,
// merge the smaller (by last_updated, older absorbed into newer, matching
// the S6 scenario's C2-into-C1 direction) when entity-Jaccard and
// summary-cosine both clear their thresholds.
type MergeScanner struct {
	pool     *db.Pool
	embedder SummaryEmbedder
	engine   *Engine
}

func NewMergeScanner(pool *db.Pool, embedder SummaryEmbedder, engine *Engine) *MergeScanner {
	return &MergeScanner{pool: pool, embedder: embedder, engine: engine}
}

// Scan inspects all active clusters updated since the lookback window and
// merges qualifying pairs one at a time, re-resolving each pair's targets
// through the merge chain first so a cluster merged earlier in the same
// scan is never addressed by a stale id (§8 acyclicity property).
func (s *MergeScanner) Scan(ctx context.Context, now time.Time) ([]MergeCandidate, error) {
	clusters, err := s.pool.GetActiveClusters(ctx, now.Add(-ClusterCandidateLookback))
	if err != nil {
		return nil, fmt.Errorf("shortlist clusters for merge scan: %w", err)
	}

	var merged []MergeCandidate
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]

			resolvedA, err := s.pool.ResolveClusterMergeTarget(ctx, a.ID)
			if err != nil {
				return merged, err
			}
			resolvedB, err := s.pool.ResolveClusterMergeTarget(ctx, b.ID)
			if err != nil {
				return merged, err
			}
			if resolvedA == resolvedB {
				continue
			}

			jaccard := entityJaccard(a.PrimaryEntityIDs, b.PrimaryEntityIDs)
			if jaccard < s.engine.mergeThresholds.Jaccard {
				continue
			}

			cosine, err := s.summaryCosine(ctx, resolvedA, resolvedB)
			if err != nil {
				return merged, err
			}
			if cosine < s.engine.mergeThresholds.SummaryCosine {
				continue
			}

			original, target := resolvedA, resolvedB
			if a.LastUpdated.After(b.LastUpdated) {
				original, target = resolvedB, resolvedA
			}

			originalIDs, targetIDs := a.PrimaryEntityIDs, b.PrimaryEntityIDs
			if a.ID != original {
				originalIDs, targetIDs = targetIDs, originalIDs
			}
			cappedPrimary := cappedByFrequency(append(append([]int64{}, targetIDs...), originalIDs...))

			tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
			if err != nil {
				return merged, fmt.Errorf("begin merge tx for clusters %d/%d: %w", original, target, err)
			}
			reason := fmt.Sprintf("jaccard=%.3f cosine=%.3f", jaccard, cosine)
			if err := s.pool.MergeCluster(ctx, tx, original, target, reason, now); err != nil {
				_ = tx.Rollback(ctx)
				return merged, err
			}
			if err := s.pool.ExpandClusterPrimaryEntities(ctx, tx, target, cappedPrimary); err != nil {
				_ = tx.Rollback(ctx)
				return merged, err
			}
			if err := tx.Commit(ctx); err != nil {
				return merged, fmt.Errorf("commit merge of cluster %d into %d: %w", original, target, err)
			}

			merged = append(merged, MergeCandidate{
				OriginalClusterID:   original,
				MergedIntoClusterID: target,
				Jaccard:             jaccard,
				SummaryCosine:       cosine,
			})
		}
	}
	return merged, nil
}

func (s *MergeScanner) summaryCosine(ctx context.Context, clusterA, clusterB int64) (float64, error) {
	summaryA, err := s.clusterSummaryText(ctx, clusterA)
	if err != nil {
		return 0, err
	}
	summaryB, err := s.clusterSummaryText(ctx, clusterB)
	if err != nil {
		return 0, err
	}
	if summaryA == "" || summaryB == "" {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{summaryA, summaryB})
	if err != nil {
		return 0, fmt.Errorf("embed summaries for clusters %d/%d: %w", clusterA, clusterB, err)
	}
	cos, err := vectorstore.Cosine(vectors[0], vectors[1])
	if err != nil {
		return 0, nil
	}
	return cos, nil
}

func (s *MergeScanner) clusterSummaryText(ctx context.Context, clusterID int64) (string, error) {
	// GetActiveClusters does not project summary text; fetch it directly.
	const q = `SELECT summary FROM article_clusters WHERE id = $1`
	var summary *string
	if err := s.pool.QueryRow(ctx, q, clusterID).Scan(&summary); err != nil {
		return "", fmt.Errorf("fetch summary for cluster %d: %w", clusterID, err)
	}
	if summary == nil {
		return "", nil
	}
	return *summary, nil
}

// entityJaccard computes the unweighted Jaccard similarity of two
// clusters' primary_entity_ids shortlists (§4.G merge gate — unlike
// §4.F's s_ent, the merge gate uses an unweighted set comparison since it
// operates on the capped shortlist, not the full per-article entity set).
func entityJaccard(a, b []int64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[int64]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	setB := make(map[int64]bool, len(b))
	for _, id := range b {
		setB[id] = true
	}

	var intersection int
	for id := range setA {
		if setB[id] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// cappedByFrequency caps a merged primary-entity list at primaryEntityCap,
// keeping the most frequent ids — used after a merge combines two
// clusters' shortlists (§4.G).
func cappedByFrequency(ids []int64) []int64 {
	freq := make(map[int64]int, len(ids))
	order := make([]int64, 0, len(ids))
	for _, id := range ids {
		if freq[id] == 0 {
			order = append(order, id)
		}
		freq[id]++
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if freq[order[j]] > freq[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	if len(order) > primaryEntityCap {
		order = order[:primaryEntityCap]
	}
	return order
}
