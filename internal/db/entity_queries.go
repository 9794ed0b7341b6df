package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertEntity finds or creates an entity by (type, normalized_form),
// grounded on store_entity in original_source/src/entity/repository.rs.
func (p *Pool) UpsertEntity(ctx context.Context, tx Tx, canonicalName, normalizedForm, entityType string, now time.Time) (int64, error) {
	const selectQ = `SELECT id FROM entities WHERE type = $1 AND normalized_form = $2`
	var id int64
	err := tx.QueryRow(ctx, selectQ, entityType, normalizedForm).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("lookup entity %s/%s: %w", entityType, normalizedForm, err)
	}

	const insertQ = `
INSERT INTO entities (canonical_name, normalized_form, type, first_seen)
VALUES ($1, $2, $3, $4)
RETURNING id
`
	if err := tx.QueryRow(ctx, insertQ, canonicalName, normalizedForm, entityType, now).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert entity %s/%s: %w", entityType, normalizedForm, err)
	}
	return id, nil
}

// LinkArticleEntity records (or upgrades) an article/entity relationship,
// grounded on store_entities in original_source/src/entity/repository.rs.
// When an article already links an entity with a stronger importance,
// the stronger importance wins instead of being overwritten by a weaker
// one seen later in the same extraction payload.
func (p *Pool) LinkArticleEntity(ctx context.Context, tx Tx, articleID, entityID int64, importance string) error {
	const q = `
INSERT INTO article_entities (article_id, entity_id, importance)
VALUES ($1, $2, $3)
ON CONFLICT (article_id, entity_id) DO UPDATE
SET importance = CASE
	WHEN article_entities.importance = 'PRIMARY' THEN article_entities.importance
	WHEN EXCLUDED.importance = 'PRIMARY' THEN EXCLUDED.importance
	WHEN article_entities.importance = 'SECONDARY' THEN article_entities.importance
	ELSE EXCLUDED.importance
END
`
	if _, err := tx.Exec(ctx, q, articleID, entityID, importance); err != nil {
		return fmt.Errorf("link article %d to entity %d: %w", articleID, entityID, err)
	}
	return nil
}

// ArticleEntityRow is a reconstructed entity attached to an article,
// grounded on get_article_entities in original_source/src/entity/repository.rs.
type ArticleEntityRow struct {
	EntityID       int64
	CanonicalName  string
	NormalizedForm string
	Type           string
	Importance     string
}

// GetArticleEntities reconstructs the entity set extracted for an article,
// consumed by the Similarity Engine (§4.F) and the Clustering Engine (§4.G).
func (p *Pool) GetArticleEntities(ctx context.Context, articleID int64) ([]ArticleEntityRow, error) {
	const q = `
SELECT e.id, e.canonical_name, e.normalized_form, e.type, ae.importance
FROM article_entities ae
JOIN entities e ON e.id = ae.entity_id
WHERE ae.article_id = $1
`
	rows, err := p.Query(ctx, q, articleID)
	if err != nil {
		return nil, fmt.Errorf("get entities for article %d: %w", articleID, err)
	}
	defer rows.Close()

	var out []ArticleEntityRow
	for rows.Next() {
		var row ArticleEntityRow
		if err := rows.Scan(&row.EntityID, &row.CanonicalName, &row.NormalizedForm, &row.Type, &row.Importance); err != nil {
			return nil, fmt.Errorf("scan article entity row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article entities: %w", err)
	}
	return out, nil
}

// UpdateArticleEventDate records the extracted event date string, grounded
// on update_article_event_date in original_source/src/entity/repository.rs.
func (p *Pool) UpdateArticleEventDate(ctx context.Context, tx Tx, articleID int64, eventDate string) error {
	const q = `UPDATE articles SET event_date = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, q, eventDate, articleID); err != nil {
		return fmt.Errorf("update event date for article %d: %w", articleID, err)
	}
	return nil
}

// GetEntityByID is used when resolving primary_entity_ids on clusters
// back into display names.
func (p *Pool) GetEntityByID(ctx context.Context, id int64) (Entity, error) {
	const q = `SELECT id, canonical_name, normalized_form, type, first_seen, parent_id FROM entities WHERE id = $1`
	var e Entity
	if err := p.QueryRow(ctx, q, id).Scan(&e.ID, &e.CanonicalName, &e.NormalizedForm, &e.Type, &e.FirstSeen, &e.ParentID); err != nil {
		return Entity{}, fmt.Errorf("get entity %d: %w", id, err)
	}
	return e, nil
}

// EntityOverlapCandidate is an article sharing at least one entity with the
// query article, within the temporal window the Similarity Engine
// considers (§4.F). Grounded on the lexical candidate-gathering shape of
// findSemanticCandidatesTx in janitrai-scoop/scoop/internal/pipeline/service.go,
// adapted to an entity join instead of a pgvector ANN query.
type EntityOverlapCandidate struct {
	ArticleID   int64
	SharedCount int
}

// FindEntityOverlapCandidates returns articles that share at least one
// entity with articleID whose COALESCE(event_date, pub_date) falls in
// [pub_date-14d, pub_date+1d] (§4.F's dual-query candidate window), using a
// date-prefix comparison since event_date is stored as free text rather
// than a typed date column.
func (p *Pool) FindEntityOverlapCandidates(ctx context.Context, articleID int64, windowStart, windowEnd time.Time) ([]EntityOverlapCandidate, error) {
	const q = `
SELECT ae2.article_id, COUNT(DISTINCT ae2.entity_id) AS shared_count
FROM article_entities ae1
JOIN article_entities ae2 ON ae2.entity_id = ae1.entity_id AND ae2.article_id != ae1.article_id
JOIN articles a2 ON a2.id = ae2.article_id
WHERE ae1.article_id = $1
  AND LEFT(COALESCE(a2.event_date, to_char(a2.pub_date, 'YYYY-MM-DD')), 10) >= $2
  AND LEFT(COALESCE(a2.event_date, to_char(a2.pub_date, 'YYYY-MM-DD')), 10) <= $3
GROUP BY ae2.article_id
ORDER BY shared_count DESC
`
	rows, err := p.Query(ctx, q, articleID, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("find entity overlap candidates for article %d: %w", articleID, err)
	}
	defer rows.Close()

	var out []EntityOverlapCandidate
	for rows.Next() {
		var c EntityOverlapCandidate
		if err := rows.Scan(&c.ArticleID, &c.SharedCount); err != nil {
			return nil, fmt.Errorf("scan entity overlap candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity overlap candidates: %w", err)
	}
	return out, nil
}

// SetEntityParent resolves an entity to a canonical parent after an alias
// is approved (spec §4.D).
func (p *Pool) SetEntityParent(ctx context.Context, tx Tx, entityID, parentID int64) error {
	const q = `UPDATE entities SET parent_id = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, q, parentID, entityID); err != nil {
		return fmt.Errorf("set parent of entity %d to %d: %w", entityID, parentID, err)
	}
	return nil
}
