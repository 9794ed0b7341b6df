package entity

import (
	"context"
	"testing"

	"horse.fit/argus/internal/db"
)

func defaultThresholds() ThresholdSet {
	return NewThresholdSet(
		0.9, 2, // person
		0.85, 3, // org
		0.9, 2, // location
		0.85, 3, // product
	)
}

func TestNormalize_CasefoldsAndStripsPunctuation(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	got := n.Normalize("O'Brien's  Café!", db.EntityTypePerson)
	if got != "o'brien café" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestNormalize_StripsPluralSuffixForOrganization(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	got := n.Normalize("Agencies", db.EntityTypeOrganization)
	if got != "agency" {
		t.Fatalf("expected plural -ies suffix stripped, got %q", got)
	}
}

func TestNormalize_AppliesSpellingVariant(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	got := n.Normalize("Defense Center", db.EntityTypeOrganization)
	if got != "defense centre" {
		t.Fatalf("expected spelling variants applied, got %q", got)
	}
}

func TestNormalize_DoesNotStripSuffixesForPerson(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	got := n.Normalize("James", db.EntityTypePerson)
	if got != "james" {
		t.Fatalf("expected person names untouched by suffix stripping, got %q", got)
	}
}

func TestMatch_NormalizedEqualShortCircuits(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "Jane Doe", "jane doe", db.EntityTypePerson)
	if !decision.Match || decision.Reason != "normalized-equal" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestMatch_FuzzyPersonWithinThreshold(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "Jon Smith", "John Smith", db.EntityTypePerson)
	if !decision.Match || decision.Reason != "fuzzy" {
		t.Fatalf("expected a fuzzy match, got %+v", decision)
	}
}

func TestMatch_RejectsUnboundedPrefix(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "App", "Apple", db.EntityTypeOrganization)
	if decision.Match {
		t.Fatalf("expected a bare prefix relationship to be rejected, got %+v", decision)
	}
}

func TestMatch_OrganizationAcronym(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "CIA", "Central Intelligence Agency", db.EntityTypeOrganization)
	if !decision.Match {
		t.Fatalf("expected acronym match, got %+v", decision)
	}
}

func TestMatch_OrganizationAcronymRejectsBareWordPrefix(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "SPACE", "SpaceX", db.EntityTypeOrganization)
	if decision.Match {
		t.Fatalf("expected bare word prefix to be rejected as an acronym, got %+v", decision)
	}
}

func TestMatch_ProductBrandPrefixedSubstring(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "iPhone", "Apple iPhone 15", db.EntityTypeProduct)
	if !decision.Match {
		t.Fatalf("expected brand-prefixed substring match, got %+v", decision)
	}
}

func TestMatch_NoMatchForUnrelatedNames(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil, defaultThresholds())
	decision := n.Match(context.Background(), "Paris", "Tokyo", db.EntityTypeLocation)
	if decision.Match {
		t.Fatalf("expected unrelated locations not to match, got %+v", decision)
	}
}

func TestHasUnboundedPrefixRelationship(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want bool
	}{
		{"app", "apple", true},
		{"new york", "new york city", false},
		{"same", "same", false},
		{"", "anything", false},
	}
	for _, c := range cases {
		if got := hasUnboundedPrefixRelationship(c.a, c.b); got != c.want {
			t.Errorf("hasUnboundedPrefixRelationship(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestAcronymMatch_InitialsSpellOutSkippingStopwords(t *testing.T) {
	t.Parallel()

	if !acronymMatch("FBI", "Federal Bureau of Investigation") {
		t.Fatal("expected word-initials acronym match to skip the stopword \"of\"")
	}
}

func TestAcronymMatch_RejectsNonAcronymShortForm(t *testing.T) {
	t.Parallel()

	if acronymMatch("fbi", "Federal Bureau of Investigation") {
		t.Fatal("expected lowercase short form not to be treated as an acronym")
	}
}

func TestBrandPrefixedSubstring_RejectsBarePrefix(t *testing.T) {
	t.Parallel()

	if brandPrefixedSubstring("iphone", "iphoneography") {
		t.Fatal("expected a bare prefix without a word boundary to be rejected")
	}
}

func TestBrandPrefixedSubstring_RejectsIdentical(t *testing.T) {
	t.Parallel()

	if brandPrefixedSubstring("iphone", "iphone") {
		t.Fatal("expected identical strings to be rejected (handled upstream by normalized-equal)")
	}
}
