package entity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"horse.fit/argus/internal/db"
)

func newTestAliasRepository() *AliasRepository {
	thresholds := NewThresholdSet(
		0.9, 2, // person
		0.85, 3, // org
		0.9, 2, // location
		0.85, 3, // product
	)
	return NewAliasRepository(nil, time.Minute, 0, thresholds)
}

func TestAliasCacheKey_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := aliasCacheKey("PERSON", "jane doe", "jane d doe")
	b := aliasCacheKey("PERSON", "jane d doe", "jane doe")
	if a != b {
		t.Fatalf("expected cache key to be order-independent, got %q vs %q", a, b)
	}
}

func TestAliasCacheKey_DistinctByType(t *testing.T) {
	t.Parallel()

	a := aliasCacheKey("PERSON", "x", "y")
	b := aliasCacheKey("ORGANIZATION", "x", "y")
	if a == b {
		t.Fatal("expected distinct entity types to produce distinct cache keys")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if !isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "entity_aliases_key"`)) {
		t.Fatal("expected duplicate key error to be recognized")
	}
	if !isUniqueViolation(errors.New("unique violation on entity_aliases")) {
		t.Fatal("expected unique-violation error to be recognized")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Fatal("expected unrelated error not to be classified as a unique violation")
	}
}

func TestSentenceTerminatesThenCapital(t *testing.T) {
	t.Parallel()

	if !sentenceTerminatesThenCapital("Hello. World") {
		t.Fatal("expected a sentence boundary followed by a capital to be detected")
	}
	if sentenceTerminatesThenCapital("Dr. Smith") {
		t.Fatal("expected a mid-sentence abbreviation period not to be flagged")
	}
	if sentenceTerminatesThenCapital("no periods here") {
		t.Fatal("expected no false positive without a period")
	}
}

func TestIsValidCandidateSide(t *testing.T) {
	t.Parallel()

	if isValidCandidateSide("  ") {
		t.Fatal("expected blank candidate to be invalid")
	}
	if isValidCandidateSide(strings.Repeat("a", 101)) {
		t.Fatal("expected candidate over 100 chars to be invalid")
	}
	if isValidCandidateSide("one two three four five six seven eight nine ten eleven") {
		t.Fatal("expected candidate over 10 words to be invalid")
	}
	if isValidCandidateSide("Acme Corp. Announced a merger") {
		t.Fatal("expected a candidate spanning a sentence boundary to be invalid")
	}
	if isValidCandidateSide("Acme Corp however it changed") {
		t.Fatal("expected a candidate containing a sentence connective to be invalid")
	}
	if !isValidCandidateSide("Acme Corporation") {
		t.Fatal("expected a short clean candidate to be valid")
	}
}

func TestDiscoverFromText_KnownAsPattern(t *testing.T) {
	t.Parallel()

	repo := &AliasRepository{}
	candidates := repo.DiscoverFromText("Tesla, also known as TSLA, reported earnings Tuesday.")

	var found *AliasCandidate
	for i := range candidates {
		if candidates[i].PatternID == "known_as" {
			found = &candidates[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a known_as candidate, got %+v", candidates)
	}
	if found.Canonical != "Tesla" || found.Alias != "TSLA" {
		t.Fatalf("unexpected candidate: %+v", found)
	}
	if found.Confidence != 0.7 {
		t.Fatalf("unexpected confidence: %f", found.Confidence)
	}
}

func TestDiscoverFromText_AkaFormerlyPattern(t *testing.T) {
	t.Parallel()

	repo := &AliasRepository{}
	candidates := repo.DiscoverFromText("Meta Platforms (formerly Facebook) changed its name in 2021.")

	var found *AliasCandidate
	for i := range candidates {
		if candidates[i].PatternID == "aka_formerly" {
			found = &candidates[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected an aka_formerly candidate, got %+v", candidates)
	}
	if found.Canonical != "Meta Platforms" || found.Alias != "Facebook" {
		t.Fatalf("unexpected candidate: %+v", found)
	}
}

func TestDiscoverFromText_NoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()

	repo := &AliasRepository{}
	candidates := repo.DiscoverFromText("Nothing interesting happened today.")
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestAreEquivalent_FallsThroughToFuzzyMatch(t *testing.T) {
	t.Parallel()

	repo := newTestAliasRepository()
	// No cached entry, no APPROVED row, no NegativeMatch row (pool is nil,
	// so both DB tiers report "no rows" and fall through) — tier (iv)
	// fuzzy match must still fire for a close PERSON name pair.
	equivalent, err := repo.AreEquivalent(context.Background(), "jon smith", "john smith", db.EntityTypePerson)
	if err != nil {
		t.Fatalf("are equivalent: %v", err)
	}
	if !equivalent {
		t.Fatal("expected the fuzzy tier to report equivalence for a close name pair")
	}
}

func TestAreEquivalent_FuzzyTierRejectsUnrelatedNames(t *testing.T) {
	t.Parallel()

	repo := newTestAliasRepository()
	equivalent, err := repo.AreEquivalent(context.Background(), "paris", "tokyo", db.EntityTypeLocation)
	if err != nil {
		t.Fatalf("are equivalent: %v", err)
	}
	if equivalent {
		t.Fatal("expected unrelated names not to be reported equivalent")
	}
}

func TestAreEquivalent_CachesFuzzyOutcome(t *testing.T) {
	t.Parallel()

	repo := newTestAliasRepository()
	ctx := context.Background()

	first, err := repo.AreEquivalent(ctx, "jon smith", "john smith", db.EntityTypePerson)
	if err != nil {
		t.Fatalf("are equivalent: %v", err)
	}

	key := aliasCacheKey(db.EntityTypePerson, "jon smith", "john smith")
	cached, ok := repo.cache.Get(key)
	if !ok {
		t.Fatal("expected the fuzzy outcome to be cached")
	}
	if cached.(bool) != first {
		t.Fatalf("expected cached value %v to match returned value %v", cached, first)
	}
}
