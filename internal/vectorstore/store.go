package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"horse.fit/argus/internal/db"
)

// Payload is the per-article metadata stored alongside the embedding
// (§4.I step 3, §6.2).
type Payload struct {
	EntityIDs []int64 `json:"entity_ids"`
	PubDate   *time.Time
	EventDate *string
}

// Store is the pgvector-backed Vector Store Adapter (§4.B/§6.2),
// implemented against the Persistent Store's own article_embeddings table
// — see DESIGN.md for why Argus does not stand up a separate ANN service.
type Store struct {
	pool      *db.Pool
	modelName string
}

func NewStore(pool *db.Pool, modelName string) *Store {
	return &Store{pool: pool, modelName: modelName}
}

// Upsert stores or replaces the embedding and payload for an article.
func (s *Store) Upsert(ctx context.Context, articleID int64, embedding []float64, payload Payload, now time.Time) error {
	literal, err := VectorLiteral(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding for article %d: %w", articleID, err)
	}
	entityIDs, err := json.Marshal(payload.EntityIDs)
	if err != nil {
		return fmt.Errorf("encode entity ids for article %d: %w", articleID, err)
	}

	const q = `
INSERT INTO article_embeddings (article_id, embedding, entity_ids, pub_date, event_date, model_name, embedded_at)
VALUES ($1, $2::vector, $3, $4, $5, $6, $7)
ON CONFLICT (article_id) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	entity_ids = EXCLUDED.entity_ids,
	pub_date = EXCLUDED.pub_date,
	event_date = EXCLUDED.event_date,
	model_name = EXCLUDED.model_name,
	embedded_at = EXCLUDED.embedded_at
`
	if _, err := s.pool.Exec(ctx, q, articleID, literal, entityIDs, payload.PubDate, payload.EventDate, s.modelName, now); err != nil {
		return fmt.Errorf("upsert embedding for article %d: %w", articleID, err)
	}
	return nil
}

// FetchVector retrieves the stored embedding for an article.
func (s *Store) FetchVector(ctx context.Context, articleID int64) ([]float64, bool, error) {
	const q = `SELECT embedding::text FROM article_embeddings WHERE article_id = $1`
	var literal string
	err := s.pool.QueryRow(ctx, q, articleID).Scan(&literal)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch embedding for article %d: %w", articleID, err)
	}
	vec, err := ParseVectorLiteral(literal)
	if err != nil {
		return nil, false, fmt.Errorf("parse stored embedding for article %d: %w", articleID, err)
	}
	return vec, true, nil
}

// TopKResult is one hit returned by TopK, ranked by cosine similarity.
type TopKResult struct {
	ArticleID int64
	Cosine    float64
}

// TopK runs an ANN query against the HNSW index, returning the k nearest
// neighbors by cosine distance (§6.2). excludeArticleID, when non-zero, is
// left out of the result — callers that want the §4.F self-comparison
// convention (cosine=1.0) apply it themselves rather than asking the
// store to special-case it.
func (s *Store) TopK(ctx context.Context, queryEmbedding []float64, k int, excludeArticleID int64, since *time.Time) ([]TopKResult, error) {
	literal, err := VectorLiteral(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("encode query embedding: %w", err)
	}

	q := `
SELECT article_id, 1 - (embedding <=> $1::vector) AS cosine
FROM article_embeddings
WHERE article_id != $2
`
	args := []any{literal, excludeArticleID}
	if since != nil {
		q += " AND pub_date >= $3"
		args = append(args, *since)
	}
	q += " ORDER BY embedding <=> $1::vector LIMIT " + fmt.Sprintf("%d", k)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("top_k query: %w", err)
	}
	defer rows.Close()

	out := make([]TopKResult, 0, k)
	for rows.Next() {
		var r TopKResult
		if err := rows.Scan(&r.ArticleID, &r.Cosine); err != nil {
			return nil, fmt.Errorf("scan top_k row: %w", err)
		}
		if r.Cosine < 0 {
			r.Cosine = 0
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top_k rows: %w", err)
	}
	return out, nil
}

// Cosine computes the cosine similarity of two equal-length vectors,
// clamped to [0,1] per §4.F's s_vec definition. It returns an error when
// the product of the two magnitudes is below 1e-3; the Similarity Engine
// treats that error as s_vec = 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	magnitude := math.Sqrt(magA) * math.Sqrt(magB)
	if magnitude < 1e-3 {
		return 0, fmt.Errorf("vector magnitude below 1e-3 threshold")
	}
	cos := dot / magnitude
	if cos < 0 {
		return 0, nil
	}
	if cos > 1 {
		return 1, nil
	}
	return cos, nil
}
