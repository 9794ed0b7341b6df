package entity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/globaltime"
)

// aliasPattern is one entry of the §4.D pattern catalog used by
// DiscoverFromText, carried from ALIAS_PATTERNS in
// original_source/src/entity/aliases.rs.
type aliasPattern struct {
	id  string
	re  *regexp.Regexp
	// confidence is the starting confidence assigned to candidates this
	// pattern yields, before any review adjusts it.
	confidence float64
}

var aliasPatterns = []aliasPattern{
	{
		id:         "known_as",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?),?\s+(?:also\s+)?(?:known|called)\s+as\s+["']?(?P<alias>.+?)["']?[,.)]`),
		confidence: 0.7,
	},
	{
		id:         "aka_formerly",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?)\s+\((?:a\.?k\.?a\.?|formerly)\s+["']?(?P<alias>.+?)["']?\)`),
		confidence: 0.75,
	},
	{
		id:         "now_known_as",
		re:         regexp.MustCompile(`(?i)["']?(?P<alias>.+?)["']?,?\s+now\s+(?:known\s+as\s+)?["']?(?P<canonical>.+?)["']?[,.)]`),
		confidence: 0.65,
	},
	{
		id:         "rebranded_as",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?),?\s+which\s+(?:rebranded|renamed)\s+(?:itself\s+)?(?:as|to)\s+["']?(?P<alias>.+?)["']?[,.)]`),
		confidence: 0.6,
	},
	{
		id:         "full_name",
		re:         regexp.MustCompile(`(?i)(?P<alias>.+?)\s+\((?:full\s+name|real\s+name|birth\s+name)\s+["']?(?P<canonical>.+?)["']?\)`),
		confidence: 0.8,
	},
	{
		id:         "acquisition",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?),?\s+(?:which|that)\s+(?:acquired|bought|purchased)\s+["']?(?P<alias>.+?)["']?[,.)]`),
		confidence: 0.5,
	},
	{
		id:         "title_of",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?),?\s+(?:(?:the|a)\s+)?(?:CEO|founder|president|director|chairman|head|leader)\s+of\s+["']?(?P<alias>.+?)["']?[,.)]`),
		confidence: 0.4,
	},
	{
		id:         "parent_company",
		re:         regexp.MustCompile(`(?i)(?P<canonical>.+?),?\s+(?:which|that)\s+is\s+(?:the\s+)?(?:parent|holding)\s+company\s+of\s+["']?(?P<alias>.+?)["']?[,.)]`),
		confidence: 0.55,
	},
	{
		id:         "founded_by",
		re:         regexp.MustCompile(`(?i)(?P<alias>.+?),?\s+(?:which|that)\s+was\s+(?:founded|created|started)\s+by\s+["']?(?P<canonical>.+?)["']?[,.)]`),
		confidence: 0.45,
	},
}

// AliasCandidate is a single discovered candidate from DiscoverFromText.
type AliasCandidate struct {
	Canonical  string
	Alias      string
	PatternID  string
	Confidence float64
}

// sentenceConnectives guard against a pattern spuriously spanning two
// sentences (§4.D candidate validity: "not containing common sentence
// connectives").
var sentenceConnectives = []string{" however ", " meanwhile ", " therefore ", " furthermore ", " additionally "}

// AliasRepository implements §4.D: DB-backed equivalence/negative-match
// store, pattern-based discovery, and a cached lookup layer. Grounded on
// the cache usage in tphakala-birdnet-go/internal/ebird/client.go and the
// alias semantics of original_source/src/entity/aliases.rs.
type AliasRepository struct {
	pool       *db.Pool
	cache      *cache.Cache
	maxEntries int
	thresholds ThresholdSet
}

// NewAliasRepository builds the repository with the §4.D cache policy:
// 10-minute TTL, eviction once maxEntries is exceeded. go-cache has no
// built-in size cap or LRU ordering, so setCache enforces the cap by
// flushing the whole cache on overflow — a coarser eviction than true
// LRU, but the §4.D invariant that validates against the store within TTL
// means a flush only costs a round of cache misses, never staleness.
// thresholds backs AreEquivalent's tier (iv) fuzzy fallback.
func NewAliasRepository(pool *db.Pool, ttl time.Duration, maxEntries int, thresholds ThresholdSet) *AliasRepository {
	return &AliasRepository{
		pool:       pool,
		cache:      cache.New(ttl, ttl*2),
		maxEntries: maxEntries,
		thresholds: thresholds,
	}
}

func (r *AliasRepository) setCache(key string, value bool) {
	if r.maxEntries > 0 && r.cache.ItemCount() >= r.maxEntries {
		r.cache.Flush()
	}
	r.cache.SetDefault(key, value)
}

func aliasCacheKey(entityType, normA, normB string) string {
	a, b := normA, normB
	if b < a {
		a, b = b, a
	}
	return entityType + "|" + a + "|" + b
}

// AreEquivalent implements §4.D's full are_equivalent(a, b, type) tier
// order: (i) cache, (ii) APPROVED alias row, (iii) NegativeMatch, (iv)
// fuzzy match (§4.C) as the final fallback before returning false. normA
// and normB must already be normalized; the fuzzy tier therefore runs
// smetrics directly against them rather than re-deriving raw-text signals
// (acronym/brand substring) that only apply to un-normalized names.
func (r *AliasRepository) AreEquivalent(ctx context.Context, normA, normB, entityType string) (bool, error) {
	key := aliasCacheKey(entityType, normA, normB)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(bool), nil
	}

	approved, err := r.IsApprovedAlias(ctx, normA, normB, entityType)
	if err != nil {
		return false, err
	}
	if approved {
		r.setCache(key, true)
		return true, nil
	}

	negative, err := r.IsNegativeMatch(ctx, normA, normB, entityType)
	if err != nil {
		return false, err
	}
	if negative {
		r.setCache(key, false)
		return false, nil
	}

	fuzzy := fuzzyMatch(normA, normB, normA, normB, entityType, r.thresholds)
	r.setCache(key, fuzzy)
	return fuzzy, nil
}

// IsApprovedAlias reports whether (normA, normB) is linked by an APPROVED
// alias row in either direction.
func (r *AliasRepository) IsApprovedAlias(ctx context.Context, normA, normB, entityType string) (bool, error) {
	const q = `
SELECT 1 FROM entity_aliases
WHERE status = $1 AND type = $2
  AND ((canonical = $3 AND alias = $4) OR (canonical = $4 AND alias = $3))
LIMIT 1
`
	var one int
	err := r.pool.QueryRow(ctx, q, db.AliasStatusApproved, entityType, normA, normB).Scan(&one)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("check approved alias %s/%s: %w", normA, normB, err)
	}
	return true, nil
}

// IsNegativeMatch delegates to the pool's negative-match lookup.
func (r *AliasRepository) IsNegativeMatch(ctx context.Context, normA, normB, entityType string) (bool, error) {
	return r.pool.IsNegativeMatch(ctx, normA, normB, entityType)
}

// GetCanonical resolves name to its APPROVED canonical form, following up
// to 3 hops with cycle detection (§4.D).
func (r *AliasRepository) GetCanonical(ctx context.Context, name, entityType string) (string, error) {
	current := name
	seen := map[string]bool{current: true}
	for hop := 0; hop < 3; hop++ {
		const q = `SELECT canonical FROM entity_aliases WHERE status = $1 AND type = $2 AND alias = $3 LIMIT 1`
		var canonical string
		err := r.pool.QueryRow(ctx, q, db.AliasStatusApproved, entityType, current).Scan(&canonical)
		if err != nil {
			if db.IsNoRows(err) {
				return current, nil
			}
			return "", fmt.Errorf("resolve canonical for %q: %w", name, err)
		}
		if seen[canonical] {
			return current, nil
		}
		seen[canonical] = true
		current = canonical
	}
	return current, nil
}

// ProposeAlias inserts a PENDING alias candidate (§4.D), idempotent on the
// (normalize(canonical), normalize(alias), type) unique key: a duplicate
// insert attempt is treated as already-proposed, not an error.
func (r *AliasRepository) ProposeAlias(ctx context.Context, canonical, alias, entityType, source string, patternID *string, confidence float64) (int64, error) {
	id, err := r.pool.InsertAlias(ctx, canonical, alias, entityType, source, confidence, patternID, globaltime.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("propose alias %s->%s: %w", alias, canonical, err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate key")
}

// Approve transitions a PENDING alias to APPROVED and bumps the owning
// pattern's approved tally (§4.D, §8 pattern-stats property).
func (r *AliasRepository) Approve(ctx context.Context, aliasID int64, reviewer string, patternID *string) error {
	tx, err := r.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin approve alias %d: %w", aliasID, err)
	}
	now := globaltime.UTC()
	if err := r.pool.SetAliasStatus(ctx, tx, aliasID, db.AliasStatusApproved, reviewer, now); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if patternID != nil {
		if err := r.pool.BumpPatternStat(ctx, tx, *patternID, true); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

// Reject transitions a PENDING alias to REJECTED, bumps the owning
// pattern's rejected tally, and records a NegativeMatch for the pair
// (§4.D).
func (r *AliasRepository) Reject(ctx context.Context, aliasID int64, reviewer, canonical, alias, entityType, reason string, patternID *string) error {
	tx, err := r.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reject alias %d: %w", aliasID, err)
	}
	now := globaltime.UTC()
	if err := r.pool.SetAliasStatus(ctx, tx, aliasID, db.AliasStatusRejected, reviewer, now); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if patternID != nil {
		if err := r.pool.BumpPatternStat(ctx, tx, *patternID, false); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return r.pool.InsertNegativeMatch(ctx, canonical, alias, entityType, reason, now)
}

// DiscoverFromText runs the §4.D pattern catalog over text and returns the
// candidates that pass the validity gate (length ≤ 100, ≤ 10 words, no
// sentence-terminating period followed by a capital letter, no common
// sentence connectives). Invalid candidates are discarded silently.
func (r *AliasRepository) DiscoverFromText(text string) []AliasCandidate {
	var out []AliasCandidate
	for _, p := range aliasPatterns {
		matches := p.re.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			canonical := submatchByName(p.re, m, "canonical")
			alias := submatchByName(p.re, m, "alias")
			if !isValidCandidateSide(canonical) || !isValidCandidateSide(alias) {
				continue
			}
			out = append(out, AliasCandidate{
				Canonical:  strings.TrimSpace(canonical),
				Alias:      strings.TrimSpace(alias),
				PatternID:  p.id,
				Confidence: p.confidence,
			})
		}
	}
	return out
}

func submatchByName(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(match) {
			return match[i]
		}
	}
	return ""
}

func isValidCandidateSide(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || len(trimmed) > 100 {
		return false
	}
	if len(strings.Fields(trimmed)) > 10 {
		return false
	}
	if sentenceTerminatesThenCapital(trimmed) {
		return false
	}
	lower := " " + strings.ToLower(trimmed) + " "
	for _, connective := range sentenceConnectives {
		if strings.Contains(lower, connective) {
			return false
		}
	}
	return true
}

func sentenceTerminatesThenCapital(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == ' ' && i+2 < len(s) && s[i+2] >= 'A' && s[i+2] <= 'Z' {
			// a title abbreviation ("Dr. Smith") does not end a sentence
			switch strings.ToLower(s[strings.LastIndex(s[:i], " ")+1 : i]) {
			case "dr", "mr", "mrs", "ms", "prof", "st", "jr", "sr":
				continue
			}
			return true
		}
	}
	return false
}
