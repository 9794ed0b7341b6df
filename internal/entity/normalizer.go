// Package entity implements the Entity Normalizer (§4.C) and the Entity
// Extractor (§4.E). Fuzzy matching shape is grounded on
// original_source/src/entity/normalizer.rs; the library used for it
// (github.com/xrash/smetrics) is named, not grounded — no example repo
// performs fuzzy string matching (see DESIGN.md).
package entity

import (
	"context"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
	"golang.org/x/text/unicode/norm"

	"horse.fit/argus/internal/db"
)

// Thresholds groups the type-specific fuzzy-match contract values of
// §4.C. The zero value is invalid; use NewThresholdSet.
type Thresholds struct {
	JaroWinkler float64
	Levenshtein int
}

// ThresholdSet carries the per-type thresholds, overridable from config
// per the Open Questions of §9.
type ThresholdSet struct {
	Person   Thresholds
	Org      Thresholds
	Location Thresholds
	Product  Thresholds
}

// NewThresholdSet builds a ThresholdSet from the contract values carried
// in config (§4.C, overridable per §9's Open Questions).
func NewThresholdSet(personJW float64, personLev int, orgJW float64, orgLev int, locJW float64, locLev int, productJW float64, productLev int) ThresholdSet {
	return ThresholdSet{
		Person:   Thresholds{JaroWinkler: personJW, Levenshtein: personLev},
		Org:      Thresholds{JaroWinkler: orgJW, Levenshtein: orgLev},
		Location: Thresholds{JaroWinkler: locJW, Levenshtein: locLev},
		Product:  Thresholds{JaroWinkler: productJW, Levenshtein: productLev},
	}
}

// commonVariations are the cross-language and spelling variants applied
// during normalization for ORGANIZATION/PRODUCT entities (§4.C), carried
// from original_source/src/entity/aliases.rs's COMMON_VARIATIONS table.
var commonVariations = [][2]string{
	{"center", "centre"},
	{"defense", "defence"},
	{"program", "programme"},
	{"color", "colour"},
	{"theater", "theatre"},
	{"organization", "organisation"},
	{"analyzer", "analyser"},
	{"project", "projekt"},
}

// Normalizer implements the §4.C normalization pipeline and match
// decision, consulting NegativeMatch and the Alias Repository before
// falling back to type-specific fuzzy tests.
type Normalizer struct {
	thresholds ThresholdSet
	aliases    *AliasRepository
	pool       *db.Pool
}

func NewNormalizer(pool *db.Pool, aliases *AliasRepository, thresholds ThresholdSet) *Normalizer {
	return &Normalizer{pool: pool, aliases: aliases, thresholds: thresholds}
}

// Normalize runs the §4.C pipeline: Unicode NFC, casefold, strip
// punctuation except inter-word apostrophes, collapse whitespace, strip
// common plural/possessive suffixes for ORGANIZATION/PRODUCT, then apply
// spelling-variant substitution.
func (n *Normalizer) Normalize(name string, entityType string) string {
	normalized := basicNormalize(name)

	if entityType == db.EntityTypeOrganization || entityType == db.EntityTypeProduct {
		normalized = stripCommonSuffixes(normalized)
		for _, variant := range commonVariations {
			if strings.Contains(normalized, variant[0]) {
				normalized = strings.ReplaceAll(normalized, variant[0], variant[1])
				break
			}
		}
	}

	return normalized
}

func basicNormalize(name string) string {
	s := name
	s = strings.ReplaceAll(s, "'s ", " ")
	s = strings.ReplaceAll(s, "'s", "")
	s = strings.ReplaceAll(s, "s' ", "s ")
	s = strings.ReplaceAll(s, "' ", " ")

	s = string(norm.NFC.Bytes([]byte(s)))
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i, r := range runes {
		interWordApostrophe := r == '\'' && i > 0 && i+1 < len(runes) &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || interWordApostrophe {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripCommonSuffixes handles plural variants (possessives are already
// removed by basicNormalize) without
// pulling in a full stemmer — the teacher's dependency pack carries no
// stemming library, so this mirrors only the narrow plural-suffix case
// original_source's rust-stemmers call ends up covering for ORGANIZATION
// and PRODUCT names in practice (see DESIGN.md).
func stripCommonSuffixes(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if len(tok) > 3 && strings.HasSuffix(tok, "ies") {
			tokens[i] = tok[:len(tok)-3] + "y"
		} else if len(tok) > 3 && strings.HasSuffix(tok, "es") && !strings.HasSuffix(tok, "ses") {
			tokens[i] = tok[:len(tok)-1]
		} else if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
			tokens[i] = tok[:len(tok)-1]
		}
	}
	return strings.Join(tokens, " ")
}

// MatchDecision is the outcome of Normalizer.Match, reported so workers
// can log θ and the decision path per §4.C.
type MatchDecision struct {
	Match  bool
	Reason string
}

// Match runs the §4.C decision tree for two raw names of the same type.
func (n *Normalizer) Match(ctx context.Context, a, b, entityType string) MatchDecision {
	normA := n.Normalize(a, entityType)
	normB := n.Normalize(b, entityType)

	if normA == normB {
		return MatchDecision{Match: true, Reason: "normalized-equal"}
	}

	if n.aliases != nil {
		if isNegative, err := n.aliases.IsNegativeMatch(ctx, normA, normB, entityType); err == nil && isNegative {
			return MatchDecision{Match: false, Reason: "negative-match"}
		}
		if approved, err := n.aliases.IsApprovedAlias(ctx, normA, normB, entityType); err == nil && approved {
			return MatchDecision{Match: true, Reason: "approved-alias"}
		}
	}

	if fuzzyMatch(normA, normB, a, b, entityType, n.thresholds) {
		return MatchDecision{Match: true, Reason: "fuzzy"}
	}

	return MatchDecision{Match: false, Reason: "no-match"}
}

func fuzzyMatch(normA, normB, rawA, rawB, entityType string, thresholds ThresholdSet) bool {
	if hasUnboundedPrefixRelationship(normA, normB) {
		return false
	}

	t := thresholdsFor(entityType, thresholds)
	jw := smetrics.JaroWinkler(normA, normB, 0.7, 4)
	lev := smetrics.WagnerFischer(normA, normB, 1, 1, 1)

	switch entityType {
	case "PERSON":
		if jw >= t.JaroWinkler && lev <= t.Levenshtein {
			return !isStrictPlural(normA, normB)
		}
		return false
	case "ORGANIZATION":
		if jw >= t.JaroWinkler && lev <= t.Levenshtein {
			return true
		}
		return acronymMatch(rawA, rawB)
	case "LOCATION":
		return jw >= t.JaroWinkler && lev <= t.Levenshtein
	case "PRODUCT":
		if jw >= t.JaroWinkler && lev <= t.Levenshtein {
			return true
		}
		return brandPrefixedSubstring(normA, normB)
	default:
		return jw >= t.JaroWinkler && lev <= t.Levenshtein
	}
}

func thresholdsFor(entityType string, set ThresholdSet) Thresholds {
	switch entityType {
	case "PERSON":
		return set.Person
	case "ORGANIZATION":
		return set.Org
	case "LOCATION":
		return set.Location
	case "PRODUCT":
		return set.Product
	default:
		return set.Org
	}
}

// hasUnboundedPrefixRelationship guards the "App"/"Apple" class: a fuzzy
// match may never fire when one side is a strict prefix of the other
// without a word boundary separating them (§4.C token-based verification).
func hasUnboundedPrefixRelationship(a, b string) bool {
	shorter, longer := a, b
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	if shorter == "" || !strings.HasPrefix(longer, shorter) {
		return false
	}
	if len(longer) == len(shorter) {
		return false
	}
	boundary := longer[len(shorter)]
	return boundary != ' '
}

func isStrictPlural(a, b string) bool {
	return a+"s" == b || b+"s" == a
}

// acronymMatch implements §4.C's organization acronym path: an all-caps
// acronym of length ≥ 2 matches a name beginning with that acronym, or
// whose word initials spell it out, while still rejecting a bare word
// prefix ("Space" vs "SpaceX").
func acronymMatch(rawA, rawB string) bool {
	shorter, longer := rawA, rawB
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	shorterCompact := strings.ReplaceAll(shorter, " ", "")
	if len(shorterCompact) < 2 || shorterCompact != strings.ToUpper(shorterCompact) {
		// not written as an all-caps acronym in the source text
		return false
	}

	longerCompact := strings.ToUpper(strings.ReplaceAll(longer, " ", ""))
	if strings.HasPrefix(longerCompact, strings.ToUpper(shorterCompact)) && len(longerCompact) > len(shorterCompact) {
		// a short form equal to the longer name's whole first word is not
		// an acronym match ("Space" vs "SpaceX" is already rejected by
		// hasUnboundedPrefixRelationship in fuzzyMatch).
		firstWord := strings.ToUpper(strings.Fields(longer)[0])
		if firstWord == strings.ToUpper(shorterCompact) {
			return false
		}
		return true
	}

	initials := wordInitials(longer)
	return strings.EqualFold(initials, shorterCompact)
}

// acronymStopwords are skipped when spelling out word initials: real
// acronyms are formed from a name's significant words only ("Federal
// Bureau of Investigation" -> FBI, not FBOI).
var acronymStopwords = map[string]bool{
	"of": true, "the": true, "and": true, "for": true, "a": true, "an": true,
	"to": true, "in": true, "on": true, "at": true, "by": true, "with": true,
}

func wordInitials(s string) string {
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		if len(w) == 0 || acronymStopwords[strings.ToLower(w)] {
			continue
		}
		b.WriteRune(unicode.ToUpper(rune(w[0])))
	}
	return b.String()
}

// brandPrefixedSubstring implements §4.C's product substring-containment
// path: the shorter name must be a brand-sharing substring of the longer
// one ("iPhone" ⊂ "Apple iPhone 15"), not a bare prefix.
func brandPrefixedSubstring(normA, normB string) bool {
	shorter, longer := normA, normB
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	if shorter == "" || shorter == longer {
		return false
	}
	idx := strings.Index(longer, shorter)
	if idx < 0 {
		return false
	}
	if idx == 0 {
		return false
	}
	return longer[idx-1] == ' '
}
