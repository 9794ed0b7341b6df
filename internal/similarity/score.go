// Package similarity implements the Similarity Engine (§4.F): a weighted
// multi-factor score between two articles, and the dual-query candidate
// gathering step that feeds the Clustering Engine. The combined-score
// clamp shape is grounded on semanticCompositeScore in
// janitrai-scoop/scoop/internal/pipeline/service.go; the per-type
// weighted-overlap shape is grounded on calculate_type_similarity in
// original_source/src/entity/matching.rs (contract weights below are
// §4.F's, which supersede that file's own constants).
package similarity

import (
	"math"
	"time"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/vectorstore"
)

// Weights carries the §4.F contract weights, overridable per §9's Open
// Questions but versioned when changed.
type Weights struct {
	Vector   float64
	Entity   float64
	Temporal float64
}

// DefaultWeights returns the canonical contract values Wv=0.60, We=0.30,
// Wt=0.10.
func DefaultWeights() Weights {
	return Weights{Vector: 0.60, Entity: 0.30, Temporal: 0.10}
}

// TypeWeights are the per-entity-type weights s_ent combines (§4.F).
type TypeWeights struct {
	Person float64
	Org    float64
	Loc    float64
	Event  float64
}

func DefaultTypeWeights() TypeWeights {
	return TypeWeights{Person: 0.35, Org: 0.30, Loc: 0.20, Event: 0.15}
}

// importanceWeight maps ArticleEntity.importance to the §4.F contribution
// value used in the weighted-Jaccard overlap.
func importanceWeight(importance string) float64 {
	switch importance {
	case db.ImportancePrimary:
		return 1.0
	case db.ImportanceSecondary:
		return 0.5
	default:
		return 0.25
	}
}

// ArticleFacts is the subset of an article's derived state the Similarity
// Engine needs: its embedding, its typed entity set, and its best-available
// date.
type ArticleFacts struct {
	ArticleID int64
	Embedding []float64
	Entities  []EntityRef
	Date      *time.Time // COALESCE(event_date, pub_date)
}

// EntityRef is one entity attached to an article, keyed by its resolved
// canonical entity id (after alias resolution, §4.D).
type EntityRef struct {
	EntityID   int64
	Type       string
	Importance string
}

// Report is the outcome of Score, carrying the per-factor breakdown so
// workers can log θ alongside the decision (§4.F).
type Report struct {
	ArticleA, ArticleB int64
	SVec, SEnt, STmp   float64
	Combined           float64
	VectorMagnitudeErr bool
	DateMissing        bool
}

// Engine scores article pairs per §4.F's combined formula.
type Engine struct {
	weights     Weights
	typeWeights TypeWeights
}

func NewEngine(weights Weights, typeWeights TypeWeights) *Engine {
	return &Engine{weights: weights, typeWeights: typeWeights}
}

// Score computes S = Wv·s_vec + We·s_ent + Wt·s_tmp for articles A and B.
// Self-comparison (same article_id) yields s_vec = 1.0 by definition.
func (e *Engine) Score(a, b ArticleFacts) Report {
	report := Report{ArticleA: a.ArticleID, ArticleB: b.ArticleID}

	report.SVec = e.vectorSimilarity(a, b, &report)
	report.SEnt = e.entityOverlap(a.Entities, b.Entities)
	report.STmp = e.temporalProximity(a.Date, b.Date, &report)

	combined := e.weights.Vector*report.SVec + e.weights.Entity*report.SEnt + e.weights.Temporal*report.STmp

	// §4.F: if A and B share no entities of any type, S must never reach
	// θ on vector alone — clamp so the final score cannot exceed Wv·1.0.
	if report.SEnt == 0 && combined > e.weights.Vector {
		combined = e.weights.Vector
	}

	report.Combined = clamp01(combined)
	return report
}

func (e *Engine) vectorSimilarity(a, b ArticleFacts, report *Report) float64 {
	if a.ArticleID == b.ArticleID {
		return 1.0
	}
	cos, err := vectorstore.Cosine(a.Embedding, b.Embedding)
	if err != nil {
		report.VectorMagnitudeErr = true
		return 0
	}
	return clamp01(cos)
}

// entityOverlap computes s_ent: a weighted combination of per-type
// overlaps, each a weighted Jaccard over entity ids considered equivalent
// by §4.D (entities are pre-resolved to canonical ids by the caller, so
// equality of EntityID here already encodes the alias decision).
func (e *Engine) entityOverlap(a, b []EntityRef) float64 {
	types := []string{db.EntityTypePerson, db.EntityTypeOrganization, db.EntityTypeLocation, db.EntityTypeEvent}
	weights := map[string]float64{
		db.EntityTypePerson:       e.typeWeights.Person,
		db.EntityTypeOrganization: e.typeWeights.Org,
		db.EntityTypeLocation:     e.typeWeights.Loc,
		db.EntityTypeEvent:        e.typeWeights.Event,
	}

	var total float64
	for _, t := range types {
		total += weights[t] * weightedJaccard(entitiesOfType(a, t), entitiesOfType(b, t))
	}
	return clamp01(total)
}

func entitiesOfType(refs []EntityRef, entityType string) []EntityRef {
	var out []EntityRef
	for _, r := range refs {
		if r.Type == entityType {
			out = append(out, r)
		}
	}
	return out
}

// weightedJaccard sums importance-weight contributions separately for
// intersection and union, per §4.F's PRIMARY=1.0/SECONDARY=0.5/
// MENTIONED=0.25 scheme.
func weightedJaccard(a, b []EntityRef) float64 {
	weightOf := make(map[int64]float64, len(a)+len(b))
	inA := make(map[int64]bool, len(a))
	inB := make(map[int64]bool, len(b))

	for _, r := range a {
		inA[r.EntityID] = true
		if w := importanceWeight(r.Importance); w > weightOf[r.EntityID] {
			weightOf[r.EntityID] = w
		}
	}
	for _, r := range b {
		inB[r.EntityID] = true
		if w := importanceWeight(r.Importance); w > weightOf[r.EntityID] {
			weightOf[r.EntityID] = w
		}
	}

	var intersection, union float64
	for id, w := range weightOf {
		union += w
		if inA[id] && inB[id] {
			intersection += w
		}
	}
	if union == 0 {
		return 0
	}
	return intersection / union
}

// temporalProximity computes s_tmp: piecewise linear on Δ in days, 1.0 at
// Δ=0, 0.5 at Δ=7, 0.0 at Δ≥30. Missing dates report s_tmp=0.5 and set
// DateMissing so callers can log the fact (§4.F).
func (e *Engine) temporalProximity(a, b *time.Time, report *Report) float64 {
	if a == nil || b == nil {
		report.DateMissing = true
		return 0.5
	}
	delta := math.Abs(a.Sub(*b).Hours() / 24)
	switch {
	case delta <= 0:
		return 1.0
	case delta <= 7:
		return 1.0 - 0.5*(delta/7)
	case delta < 30:
		return 0.5 * (30 - delta) / 23
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
