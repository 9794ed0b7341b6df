package db

import (
	"context"
	"fmt"
	"time"
)

// InsertAlias records a candidate alias (spec §4.D), grounded on the
// alias-repository idiom of original_source/src/entity/aliases.rs.
func (p *Pool) InsertAlias(ctx context.Context, canonical, alias, entityType, source string, confidence float64, patternID *string, now time.Time) (int64, error) {
	const q = `
INSERT INTO entity_aliases (canonical, alias, type, source, confidence, status, pattern_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`
	var id int64
	err := p.QueryRow(ctx, q, canonical, alias, entityType, source, confidence, AliasStatusPending, patternID, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert alias %s->%s: %w", alias, canonical, err)
	}
	return id, nil
}

// GetApprovedAliases loads the full approved-alias table for the in-memory
// cache layer (spec §4.D), keyed by (type, normalized alias) at the
// caller's normalizer.
func (p *Pool) GetApprovedAliases(ctx context.Context) ([]Alias, error) {
	const q = `
SELECT id, canonical, alias, type, source, confidence, status, pattern_id, created_at, approved_at, approved_by
FROM entity_aliases
WHERE status = $1
`
	rows, err := p.Query(ctx, q, AliasStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list approved aliases: %w", err)
	}
	defer rows.Close()

	var out []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.ID, &a.CanonicalName, &a.AliasName, &a.EntityType, &a.Source, &a.Confidence, &a.Status, &a.PatternID, &a.CreatedAt, &a.ApprovedAt, &a.ApprovedBy); err != nil {
			return nil, fmt.Errorf("scan alias row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approved aliases: %w", err)
	}
	return out, nil
}

// GetPendingAliasesForReview returns a batch of pending aliases ordered by
// confidence descending for the alias-admin review workflow (spec §6.4).
func (p *Pool) GetPendingAliasesForReview(ctx context.Context, limit int) ([]Alias, error) {
	const q = `
SELECT id, canonical, alias, type, source, confidence, status, pattern_id, created_at, approved_at, approved_by
FROM entity_aliases
WHERE status = $1
ORDER BY confidence DESC, id
LIMIT $2
`
	rows, err := p.Query(ctx, q, AliasStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending aliases: %w", err)
	}
	defer rows.Close()

	var out []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.ID, &a.CanonicalName, &a.AliasName, &a.EntityType, &a.Source, &a.Confidence, &a.Status, &a.PatternID, &a.CreatedAt, &a.ApprovedAt, &a.ApprovedBy); err != nil {
			return nil, fmt.Errorf("scan alias row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending aliases: %w", err)
	}
	return out, nil
}

// SetAliasStatus approves or rejects an alias, stamping the reviewer and
// time. It does not touch the pattern tally; see BumpPatternStat.
func (p *Pool) SetAliasStatus(ctx context.Context, tx Tx, aliasID int64, status, approvedBy string, now time.Time) error {
	const q = `UPDATE entity_aliases SET status = $1, approved_at = $2, approved_by = $3 WHERE id = $4`
	if _, err := tx.Exec(ctx, q, status, now, approvedBy, aliasID); err != nil {
		return fmt.Errorf("set alias %d status to %s: %w", aliasID, status, err)
	}
	return nil
}

// BumpPatternStat increments a pattern's approved or rejected counter,
// creating the row on first use (spec §4.D, §8 pattern-stats property).
func (p *Pool) BumpPatternStat(ctx context.Context, tx Tx, patternID string, approved bool) error {
	column := "rejected"
	approvedInit, rejectedInit := 0, 1
	if approved {
		column = "approved"
		approvedInit, rejectedInit = 1, 0
	}
	q := fmt.Sprintf(`
INSERT INTO alias_pattern_stats (pattern_id, approved, rejected, enabled)
VALUES ($1, $2, $3, true)
ON CONFLICT (pattern_id) DO UPDATE SET %s = alias_pattern_stats.%s + 1
`, column, column)
	if _, err := tx.Exec(ctx, q, patternID, approvedInit, rejectedInit); err != nil {
		return fmt.Errorf("bump pattern stat %s: %w", patternID, err)
	}
	return nil
}

// GetPatternStats lists every tracked pattern's tally, used by the
// alias-admin "stats" command (spec §6.4) to decide which patterns to
// disable.
func (p *Pool) GetPatternStats(ctx context.Context) ([]PatternStat, error) {
	const q = `SELECT pattern_id, approved, rejected, enabled FROM alias_pattern_stats ORDER BY pattern_id`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list pattern stats: %w", err)
	}
	defer rows.Close()

	var out []PatternStat
	for rows.Next() {
		var s PatternStat
		if err := rows.Scan(&s.PatternID, &s.Approved, &s.Rejected, &s.Enabled); err != nil {
			return nil, fmt.Errorf("scan pattern stat row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern stats: %w", err)
	}
	return out, nil
}

// IsNegativeMatch reports whether two names are a recorded negative match
// for the given entity type (spec §4.D negative-match precedence, §8
// negative-precedence property). Names are looked up in alphabetical
// order to match the storage convention.
func (p *Pool) IsNegativeMatch(ctx context.Context, nameA, nameB, entityType string) (bool, error) {
	a, b := nameA, nameB
	if b < a {
		a, b = b, a
	}
	const q = `SELECT 1 FROM entity_negative_matches WHERE name_a = $1 AND name_b = $2 AND type = $3`
	var one int
	err := p.QueryRow(ctx, q, a, b, entityType).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check negative match %s/%s: %w", a, b, err)
	}
	return true, nil
}

// InsertNegativeMatch records that two names must never be treated as
// aliases of each other.
func (p *Pool) InsertNegativeMatch(ctx context.Context, nameA, nameB, entityType, reason string, now time.Time) error {
	a, b := nameA, nameB
	if b < a {
		a, b = b, a
	}
	const q = `
INSERT INTO entity_negative_matches (name_a, name_b, type, reason, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name_a, name_b, type) DO NOTHING
`
	if _, err := p.Exec(ctx, q, a, b, entityType, reason, now); err != nil {
		return fmt.Errorf("insert negative match %s/%s: %w", a, b, err)
	}
	return nil
}
