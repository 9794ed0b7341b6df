// Package clustering implements the Clustering Engine (§4.G): article
// assignment to clusters, importance scoring, summary-regeneration
// triggers, and the merge scan. Grounded on original_source/src/db/cluster.rs
// for the data-shape and lifecycle, wired to the already-adapted query
// helpers in internal/db/cluster_queries.go.
package clustering

import (
	"context"
	"fmt"
	"math"
	"time"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/similarity"
)

// AssignmentThreshold is the mean-pairwise-similarity gate an article must
// clear against a cluster's member articles to be assigned (§4.G).
const AssignmentThreshold = 0.70

// ClusterCandidateLookback bounds how far back GetActiveClusters looks for
// a shortlist before the Engine falls back to creating a new cluster.
const ClusterCandidateLookback = 30 * 24 * time.Hour

// ImportanceWeights are the §4.G defaults for the cluster importance score
// I = w1·ln(count+1) + w2·avg_quality + w3·recency_decay.
type ImportanceWeights struct {
	Count    float64
	Quality  float64
	Recency  float64
}

func DefaultImportanceWeights() ImportanceWeights {
	return ImportanceWeights{Count: 0.5, Quality: 0.3, Recency: 0.2}
}

// MergeThresholds are the §4.G merge-scan gates: both must hold.
type MergeThresholds struct {
	Jaccard       float64
	SummaryCosine float64
}

func DefaultMergeThresholds() MergeThresholds {
	return MergeThresholds{Jaccard: 0.6, SummaryCosine: 0.7}
}

// primaryEntityCap bounds how many entity ids a cluster's shortlist keeps,
// by frequency, after a merge (§4.G).
const primaryEntityCap = 16

// Engine ties the Similarity Engine's scores to cluster assignment,
// summary-refresh scheduling, and the merge scan.
type Engine struct {
	pool              *db.Pool
	similarityEngine  *similarity.Engine
	importanceWeights ImportanceWeights
	mergeThresholds   MergeThresholds
}

func NewEngine(pool *db.Pool, similarityEngine *similarity.Engine, importanceWeights ImportanceWeights, mergeThresholds MergeThresholds) *Engine {
	return &Engine{
		pool:              pool,
		similarityEngine:  similarityEngine,
		importanceWeights: importanceWeights,
		mergeThresholds:   mergeThresholds,
	}
}

// AssignmentDecision reports the outcome of Assign, including which
// existing cluster (if any) the article joined and the mean score that
// justified it, so callers can log it alongside θ (§4.G).
type AssignmentDecision struct {
	ClusterID int64
	Created   bool
	MeanScore float64
}

// Assign runs §4.G: shortlist the active clusters whose primary entity ids
// intersect the article's entity ids, for each compute the mean pairwise
// similarity between the article and the cluster's member articles, and
// assign to the best cluster clearing AssignmentThreshold.
// With no qualifying cluster, a new one is created seeded from the
// article's primary entities.
func (e *Engine) Assign(ctx context.Context, tx db.Tx, facts similarity.ArticleFacts, now time.Time) (AssignmentDecision, error) {
	clusters, err := e.pool.GetActiveClusters(ctx, now.Add(-ClusterCandidateLookback))
	if err != nil {
		return AssignmentDecision{}, fmt.Errorf("shortlist clusters for article %d: %w", facts.ArticleID, err)
	}

	var bestCluster int64
	var bestScore float64
	for _, c := range clusters {
		articles, err := e.pool.GetClusterArticles(ctx, c.ID)
		if err != nil {
			return AssignmentDecision{}, fmt.Errorf("load articles for cluster %d: %w", c.ID, err)
		}
		// Re-running Assign on an article already mapped to one of its own
		// shortlisted clusters must be a no-op (§8 Property 1): detect that
		// before meanPairwiseSimilarity, which excludes self-membership from
		// the scoring pool and so can't distinguish "already assigned here"
		// from "no other members yet".
		if isClusterMember(articles, facts.ArticleID) {
			return AssignmentDecision{ClusterID: c.ID, MeanScore: 1.0}, nil
		}
		shared := false
		for _, id := range c.PrimaryEntityIDs {
			for _, ref := range facts.Entities {
				if ref.EntityID == id {
					shared = true
				}
			}
		}
		if !shared {
			continue
		}
		mean, err := e.meanPairwiseSimilarity(ctx, facts, articles)
		if err != nil {
			return AssignmentDecision{}, err
		}
		if mean > bestScore {
			bestScore = mean
			bestCluster = c.ID
		}
	}

	if bestCluster != 0 && bestScore >= AssignmentThreshold {
		if err := e.pool.AssignArticleToCluster(ctx, tx, facts.ArticleID, bestCluster, bestScore, now); err != nil {
			return AssignmentDecision{}, err
		}
		if err := e.expandPrimaryEntities(ctx, tx, bestCluster, facts.Entities); err != nil {
			return AssignmentDecision{}, err
		}
		return AssignmentDecision{ClusterID: bestCluster, MeanScore: bestScore}, nil
	}

	primaryIDs := primaryEntityIDs(facts.Entities)
	clusterID, err := e.pool.CreateCluster(ctx, tx, primaryIDs, now)
	if err != nil {
		return AssignmentDecision{}, fmt.Errorf("create cluster for article %d: %w", facts.ArticleID, err)
	}
	if err := e.pool.AssignArticleToCluster(ctx, tx, facts.ArticleID, clusterID, 1.0, now); err != nil {
		return AssignmentDecision{}, err
	}
	return AssignmentDecision{ClusterID: clusterID, Created: true, MeanScore: 1.0}, nil
}

func isClusterMember(members []db.Article, articleID int64) bool {
	for _, m := range members {
		if m.ID == articleID {
			return true
		}
	}
	return false
}

func (e *Engine) meanPairwiseSimilarity(ctx context.Context, facts similarity.ArticleFacts, members []db.Article) (float64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	var total float64
	var counted int
	for _, m := range members {
		if m.ID == facts.ArticleID {
			continue
		}
		memberFacts, err := e.loadMemberFacts(ctx, m)
		if err != nil {
			return 0, err
		}
		report := e.similarityEngine.Score(facts, memberFacts)
		total += report.Combined
		counted++
	}
	if counted == 0 {
		return 0, nil
	}
	return total / float64(counted), nil
}

func (e *Engine) loadMemberFacts(ctx context.Context, a db.Article) (similarity.ArticleFacts, error) {
	rows, err := e.pool.GetArticleEntities(ctx, a.ID)
	if err != nil {
		return similarity.ArticleFacts{}, fmt.Errorf("load entities for cluster member %d: %w", a.ID, err)
	}
	refs := make([]similarity.EntityRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, similarity.EntityRef{EntityID: r.EntityID, Type: r.Type, Importance: r.Importance})
	}
	return similarity.ArticleFacts{
		ArticleID: a.ID,
		Entities:  refs,
		Date:      coalesceDate(a),
	}, nil
}

func coalesceDate(a db.Article) *time.Time {
	if a.EventDate != nil {
		if t, err := time.Parse("2006-01-02", *a.EventDate); err == nil {
			return &t
		}
	}
	return a.PubDate
}

func primaryEntityIDs(refs []similarity.EntityRef) []int64 {
	var out []int64
	for _, r := range refs {
		if r.Importance == db.ImportancePrimary {
			out = append(out, r.EntityID)
		}
	}
	return out
}

func (e *Engine) expandPrimaryEntities(ctx context.Context, tx db.Tx, clusterID int64, refs []similarity.EntityRef) error {
	newPrimary := primaryEntityIDs(refs)
	if len(newPrimary) == 0 {
		return nil
	}
	// ExpandClusterPrimaryEntities overwrites the shortlist wholesale;
	// re-reading the cluster's current set first keeps earlier entities.
	clusters, err := e.pool.GetActiveClusters(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("reload cluster %d primary entities: %w", clusterID, err)
	}
	merged := newPrimary
	for _, c := range clusters {
		if c.ID == clusterID {
			merged = mergeEntityIDs(c.PrimaryEntityIDs, newPrimary)
			break
		}
	}
	return e.pool.ExpandClusterPrimaryEntities(ctx, tx, clusterID, merged)
}

func mergeEntityIDs(existing, additional []int64) []int64 {
	seen := make(map[int64]bool, len(existing)+len(additional))
	out := make([]int64, 0, len(existing)+len(additional))
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range additional {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// NeedsSummaryRefresh implements §4.G's regeneration trigger: a power-of-
// two article_count boundary, or 24h elapsed since the last summary.
func NeedsSummaryRefresh(articleCount int, lastUpdated, now time.Time) bool {
	if isPowerOfTwo(articleCount) {
		return true
	}
	return now.Sub(lastUpdated) >= 24*time.Hour
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Importance computes §4.G's I = w1·ln(count+1) + w2·avg_quality +
// w3·recency_decay(mostRecentArticleAge), with recency_decay(t) =
// 2^(-age_hours/24).
func (e *Engine) Importance(articleCount int, avgQuality float64, mostRecentArticleAge time.Duration) float64 {
	ageHours := mostRecentArticleAge.Hours()
	recencyDecay := math.Pow(2, -ageHours/24)
	return e.importanceWeights.Count*math.Log(float64(articleCount)+1) +
		e.importanceWeights.Quality*avgQuality +
		e.importanceWeights.Recency*recencyDecay
}
