package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ClusterCandidate is the shortlist shape returned by GetActiveClusters,
// grounded on ClusterInfo/get_all_clusters in original_source/src/db/cluster.rs.
type ClusterCandidate struct {
	ID               int64
	PrimaryEntityIDs []int64
	LastUpdated      time.Time
}

// GetActiveClusters lists active clusters updated within the lookback
// window for the candidate-shortlist step of the Clustering Engine
// (spec §4.G), grounded on get_all_clusters in original_source/src/db/cluster.rs.
func (p *Pool) GetActiveClusters(ctx context.Context, since time.Time) ([]ClusterCandidate, error) {
	const q = `
SELECT id, primary_entity_ids, last_updated
FROM article_clusters
WHERE status = $1 AND last_updated >= $2
ORDER BY last_updated DESC
`
	rows, err := p.Query(ctx, q, ClusterStatusActive, since)
	if err != nil {
		return nil, fmt.Errorf("list active clusters: %w", err)
	}
	defer rows.Close()

	var out []ClusterCandidate
	for rows.Next() {
		var c ClusterCandidate
		var raw json.RawMessage
		if err := rows.Scan(&c.ID, &raw, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan cluster candidate row: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &c.PrimaryEntityIDs); err != nil {
				return nil, fmt.Errorf("decode primary_entity_ids for cluster %d: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active clusters: %w", err)
	}
	return out, nil
}

// CreateCluster opens a new cluster seeded from the first article's primary
// entities, grounded on create_cluster_for_article in
// original_source/src/db/cluster.rs.
func (p *Pool) CreateCluster(ctx context.Context, tx Tx, primaryEntityIDs []int64, now time.Time) (int64, error) {
	raw, err := json.Marshal(primaryEntityIDs)
	if err != nil {
		return 0, fmt.Errorf("encode primary entity ids: %w", err)
	}
	const q = `
INSERT INTO article_clusters (
	creation_date, last_updated, primary_entity_ids, summary_version, article_count,
	importance_score, has_timeline, needs_summary_update, status
)
VALUES ($1, $1, $2, 0, 0, 0, false, true, $3)
RETURNING id
`
	var id int64
	if err := tx.QueryRow(ctx, q, now, raw, ClusterStatusActive).Scan(&id); err != nil {
		return 0, fmt.Errorf("create cluster: %w", err)
	}
	return id, nil
}

// AssignArticleToCluster records membership, bumps article_count, flags
// the cluster for a summary refresh, and stamps last_updated, grounded on
// assign_to_cluster in original_source/src/db/cluster.rs.
func (p *Pool) AssignArticleToCluster(ctx context.Context, tx Tx, articleID, clusterID int64, similarityScore float64, now time.Time) error {
	const insertMapping = `
INSERT INTO article_cluster_mappings (article_id, cluster_id, added_date, similarity_score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (article_id, cluster_id) DO UPDATE SET similarity_score = EXCLUDED.similarity_score
`
	if _, err := tx.Exec(ctx, insertMapping, articleID, clusterID, now, similarityScore); err != nil {
		return fmt.Errorf("insert cluster mapping article %d -> cluster %d: %w", articleID, clusterID, err)
	}

	const updateCluster = `
UPDATE article_clusters
SET last_updated = $1, article_count = article_count + 1, needs_summary_update = true
WHERE id = $2
`
	if _, err := tx.Exec(ctx, updateCluster, now, clusterID); err != nil {
		return fmt.Errorf("update cluster %d after assignment: %w", clusterID, err)
	}
	return nil
}

// ExpandClusterPrimaryEntities overwrites a cluster's primary entity id set
// with merged as given; merging and capping are the caller's job (spec §4.G).
func (p *Pool) ExpandClusterPrimaryEntities(ctx context.Context, tx Tx, clusterID int64, merged []int64) error {
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode merged primary entity ids: %w", err)
	}
	const q = `UPDATE article_clusters SET primary_entity_ids = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, q, raw, clusterID); err != nil {
		return fmt.Errorf("expand primary entities of cluster %d: %w", clusterID, err)
	}
	return nil
}

// ClusterNeedingSummary is the shape returned by GetClustersNeedingSummaryUpdates.
type ClusterNeedingSummary struct {
	ID           int64
	ArticleCount int
	LastUpdated  time.Time
}

// GetClustersNeedingSummaryUpdates lists dirty clusters oldest-updated
// last, grounded on get_clusters_needing_summary_updates in
// original_source/src/db/cluster.rs.
func (p *Pool) GetClustersNeedingSummaryUpdates(ctx context.Context, limit int) ([]ClusterNeedingSummary, error) {
	const q = `
SELECT id, article_count, last_updated
FROM article_clusters
WHERE needs_summary_update = true AND status = $1
ORDER BY last_updated DESC
LIMIT $2
`
	rows, err := p.Query(ctx, q, ClusterStatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list clusters needing summary updates: %w", err)
	}
	defer rows.Close()

	var out []ClusterNeedingSummary
	for rows.Next() {
		var c ClusterNeedingSummary
		if err := rows.Scan(&c.ID, &c.ArticleCount, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan cluster-needing-summary row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters needing summary updates: %w", err)
	}
	return out, nil
}

// GetClusterArticles lists the articles mapped to a cluster, grounded on
// get_cluster_articles in original_source/src/db/cluster.rs.
func (p *Pool) GetClusterArticles(ctx context.Context, clusterID int64) ([]Article, error) {
	const q = `
SELECT a.id, a.url, a.url_hash, a.pub_date, a.event_date, a.title, a.body, a.analysis, a.summary,
       a.tiny_summary, a.tiny_title, a.quality_scores, a.quality, a.status, a.cluster_id, a.created_at, a.updated_at
FROM articles a
JOIN article_cluster_mappings m ON m.article_id = a.id
WHERE m.cluster_id = $1
ORDER BY a.pub_date
`
	rows, err := p.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list articles for cluster %d: %w", clusterID, err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(
			&a.ID, &a.URL, &a.URLHash, &a.PubDate, &a.EventDate, &a.Title, &a.Body, &a.Analysis, &a.Summary,
			&a.TinySummary, &a.TinyTitle, &a.QualityScores, &a.Quality, &a.Status, &a.ClusterID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster article row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster articles: %w", err)
	}
	return out, nil
}

// UpdateClusterSummary writes a freshly generated summary and clears the
// dirty flag, grounded on update_cluster_summary in
// original_source/src/db/cluster.rs.
func (p *Pool) UpdateClusterSummary(ctx context.Context, tx Tx, clusterID int64, summary string, timelineEvents json.RawMessage, hasTimeline bool, importanceScore float64, now time.Time) error {
	const q = `
UPDATE article_clusters
SET summary = $1, summary_version = summary_version + 1, timeline_events = $2,
    has_timeline = $3, importance_score = $4, needs_summary_update = false, last_updated = $5
WHERE id = $6
`
	if _, err := tx.Exec(ctx, q, summary, timelineEvents, hasTimeline, importanceScore, now, clusterID); err != nil {
		return fmt.Errorf("update summary for cluster %d: %w", clusterID, err)
	}
	return nil
}

// MergeCluster folds one cluster into another: repoints every article
// mapping and the article rows' cluster_id, records the merge history
// entry, and marks the absorbed cluster merged. Grounded on the merge
// semantics implied by cluster_merge_history in original_source/src/db/cluster.rs
// (the Rust source tracks the table but the merge scan itself is a
// SPEC_FULL addition — see DESIGN.md).
func (p *Pool) MergeCluster(ctx context.Context, tx Tx, originalClusterID, mergedIntoClusterID int64, reason string, now time.Time) error {
	const repointMappings = `
UPDATE article_cluster_mappings
SET cluster_id = $1
WHERE cluster_id = $2
  AND article_id NOT IN (
	SELECT article_id FROM article_cluster_mappings WHERE cluster_id = $1
  )
`
	if _, err := tx.Exec(ctx, repointMappings, mergedIntoClusterID, originalClusterID); err != nil {
		return fmt.Errorf("repoint mappings from cluster %d to %d: %w", originalClusterID, mergedIntoClusterID, err)
	}

	const deleteStaleMappings = `DELETE FROM article_cluster_mappings WHERE cluster_id = $1`
	if _, err := tx.Exec(ctx, deleteStaleMappings, originalClusterID); err != nil {
		return fmt.Errorf("clear residual mappings for cluster %d: %w", originalClusterID, err)
	}

	const repointArticles = `UPDATE articles SET cluster_id = $1 WHERE cluster_id = $2`
	if _, err := tx.Exec(ctx, repointArticles, mergedIntoClusterID, originalClusterID); err != nil {
		return fmt.Errorf("repoint articles from cluster %d to %d: %w", originalClusterID, mergedIntoClusterID, err)
	}

	const bumpCount = `
UPDATE article_clusters
SET article_count = (SELECT count(*) FROM article_cluster_mappings WHERE cluster_id = $1),
    needs_summary_update = true, last_updated = $2
WHERE id = $1
`
	if _, err := tx.Exec(ctx, bumpCount, mergedIntoClusterID, now); err != nil {
		return fmt.Errorf("recompute article count for cluster %d: %w", mergedIntoClusterID, err)
	}

	const markMerged = `UPDATE article_clusters SET status = $1, last_updated = $2 WHERE id = $3`
	if _, err := tx.Exec(ctx, markMerged, ClusterStatusMerged, now, originalClusterID); err != nil {
		return fmt.Errorf("mark cluster %d merged: %w", originalClusterID, err)
	}

	const insertHistory = `
INSERT INTO cluster_merge_history (original_cluster_id, merged_into_cluster_id, merge_date, merge_reason)
VALUES ($1, $2, $3, $4)
ON CONFLICT (original_cluster_id) DO UPDATE
SET merged_into_cluster_id = EXCLUDED.merged_into_cluster_id, merge_date = EXCLUDED.merge_date, merge_reason = EXCLUDED.merge_reason
`
	if _, err := tx.Exec(ctx, insertHistory, originalClusterID, mergedIntoClusterID, now, reason); err != nil {
		return fmt.Errorf("record merge history %d -> %d: %w", originalClusterID, mergedIntoClusterID, err)
	}
	return nil
}

// ResolveClusterMergeTarget follows cluster_merge_history to the final,
// non-merged cluster id, used to prevent acyclic merge chains from being
// addressed through a stale id (spec §8 merge-acyclicity property).
func (p *Pool) ResolveClusterMergeTarget(ctx context.Context, clusterID int64) (int64, error) {
	current := clusterID
	for range 64 {
		const q = `SELECT merged_into_cluster_id FROM cluster_merge_history WHERE original_cluster_id = $1`
		var next int64
		err := p.QueryRow(ctx, q, current).Scan(&next)
		if err != nil {
			if IsNoRows(err) {
				return current, nil
			}
			return 0, fmt.Errorf("resolve merge target for cluster %d: %w", clusterID, err)
		}
		if next == current {
			return current, nil
		}
		current = next
	}
	return 0, fmt.Errorf("merge chain for cluster %d did not terminate within bound", clusterID)
}
