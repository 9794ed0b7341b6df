package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// InsertArticle inserts a fetched RSS item and returns its id. A duplicate
// url_hash surfaces as the wrapped unique_violation error from the url_hash
// unique constraint: callers should treat it as "already ingested" (spec §3
// url_hash invariant), not as a hard failure.
func (p *Pool) InsertArticle(ctx context.Context, a ArticleInsert) (int64, error) {
	const q = `
INSERT INTO articles (url, url_hash, pub_date, title, body, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING id
`
	var id int64
	err := p.QueryRow(ctx, q, a.URL, a.URLHash, a.PubDate, a.Title, a.Body, ArticleStatusNew, a.Now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// ArticleInsert carries the fields known at RSS ingest time.
type ArticleInsert struct {
	URL     string
	URLHash []byte
	PubDate *time.Time
	Title   string
	Body    string
	Now     time.Time
}

// GetArticleByURLHash is used to deduplicate RSS items before insert.
func (p *Pool) GetArticleByURLHash(ctx context.Context, urlHash []byte) (Article, bool, error) {
	const q = `
SELECT id, url, url_hash, pub_date, event_date, title, body, analysis, summary,
       tiny_summary, tiny_title, quality_scores, quality, status, cluster_id, created_at, updated_at
FROM articles
WHERE url_hash = $1
`
	var a Article
	err := p.QueryRow(ctx, q, urlHash).Scan(
		&a.ID, &a.URL, &a.URLHash, &a.PubDate, &a.EventDate, &a.Title, &a.Body, &a.Analysis, &a.Summary,
		&a.TinySummary, &a.TinyTitle, &a.QualityScores, &a.Quality, &a.Status, &a.ClusterID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return Article{}, false, nil
		}
		return Article{}, false, fmt.Errorf("get article by url_hash: %w", err)
	}
	return a, true, nil
}

// GetArticle fetches a single article by id, used by both workers once
// they hold a claim.
func (p *Pool) GetArticle(ctx context.Context, id int64) (Article, error) {
	const q = `
SELECT id, url, url_hash, pub_date, event_date, title, body, analysis, summary,
       tiny_summary, tiny_title, quality_scores, quality, status, cluster_id, created_at, updated_at
FROM articles
WHERE id = $1
`
	var a Article
	err := p.QueryRow(ctx, q, id).Scan(
		&a.ID, &a.URL, &a.URLHash, &a.PubDate, &a.EventDate, &a.Title, &a.Body, &a.Analysis, &a.Summary,
		&a.TinySummary, &a.TinyTitle, &a.QualityScores, &a.Quality, &a.Status, &a.ClusterID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Article{}, fmt.Errorf("get article %d: %w", id, err)
	}
	return a, nil
}

// SetArticleRejected records a Decision Worker rejection (spec §4.H/§7).
func (p *Pool) SetArticleRejected(ctx context.Context, tx Tx, articleID int64, reason string, qualityScores json.RawMessage, now time.Time) error {
	const q = `UPDATE articles SET status = $1, quality_scores = $2, updated_at = $3 WHERE id = $4`
	exec := execerOf(p, tx)
	if _, err := exec.Exec(ctx, q, reason, qualityScores, now, articleID); err != nil {
		return fmt.Errorf("reject article %d: %w", articleID, err)
	}
	return nil
}

// SetArticleQueuedForAnalysis records the Decision Worker's TOPIC/SAFETY
// routing outcome and moves the article into the Analysis queue in one
// transaction (spec §4.H).
func (p *Pool) SetArticleQueuedForAnalysis(ctx context.Context, tx Tx, articleID int64, status string, qualityScores json.RawMessage, quality float64, queueKind string, now time.Time) error {
	const q = `UPDATE articles SET status = $1, quality_scores = $2, quality = $3, updated_at = $4 WHERE id = $5`
	if _, err := tx.Exec(ctx, q, status, qualityScores, quality, now, articleID); err != nil {
		return fmt.Errorf("queue article %d for analysis: %w", articleID, err)
	}
	return EnqueueArticle(ctx, tx, queueKind, articleID, now)
}

// SetArticleAnalyzed records the Analysis Worker's output and stamps the
// cluster assignment (spec §4.I/§4.G run in the same transaction as the
// caller's cluster-mutating calls).
func (p *Pool) SetArticleAnalyzed(ctx context.Context, tx Tx, articleID int64, analysis, summary, tinySummary, tinyTitle string, eventDate *string, clusterID int64, now time.Time) error {
	const q = `
UPDATE articles
SET status = $1, analysis = $2, summary = $3, tiny_summary = $4, tiny_title = $5,
    event_date = $6, cluster_id = $7, updated_at = $8
WHERE id = $9
`
	if _, err := tx.Exec(ctx, q, ArticleStatusAnalyzed, analysis, summary, tinySummary, tinyTitle, eventDate, clusterID, now, articleID); err != nil {
		return fmt.Errorf("mark article %d analyzed: %w", articleID, err)
	}
	return nil
}

// execer lets a handful of single-statement writers run either inside an
// existing transaction or directly against the pool.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
}

func execerOf(p *Pool, tx Tx) execer {
	if tx != nil {
		return tx
	}
	return p
}

