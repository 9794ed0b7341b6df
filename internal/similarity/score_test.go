package similarity

import (
	"math"
	"testing"
	"time"

	"horse.fit/argus/internal/db"
)

func TestScore_SelfComparisonYieldsFullVectorSimilarity(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	facts := ArticleFacts{ArticleID: 1, Embedding: []float64{1, 0, 0}}

	report := e.Score(facts, facts)
	if report.SVec != 1.0 {
		t.Fatalf("expected self-comparison SVec=1.0, got %f", report.SVec)
	}
}

func TestScore_NoSharedEntitiesClampsToVectorWeight(t *testing.T) {
	t.Parallel()

	weights := DefaultWeights()
	e := NewEngine(weights, DefaultTypeWeights())

	a := ArticleFacts{ArticleID: 1, Embedding: []float64{1, 0}, Date: ptrTime(day(0))}
	b := ArticleFacts{ArticleID: 2, Embedding: []float64{1, 0}, Date: ptrTime(day(0))}

	report := e.Score(a, b)
	if report.SEnt != 0 {
		t.Fatalf("expected zero entity overlap, got %f", report.SEnt)
	}
	if report.Combined > weights.Vector+1e-9 {
		t.Fatalf("expected combined score clamped to vector weight %f, got %f", weights.Vector, report.Combined)
	}
}

func TestScore_SharedPrimaryEntityRaisesEntityFactor(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())

	shared := EntityRef{EntityID: 42, Type: db.EntityTypePerson, Importance: db.ImportancePrimary}
	a := ArticleFacts{ArticleID: 1, Embedding: []float64{1, 0}, Entities: []EntityRef{shared}, Date: ptrTime(day(0))}
	b := ArticleFacts{ArticleID: 2, Embedding: []float64{0, 1}, Entities: []EntityRef{shared}, Date: ptrTime(day(0))}

	report := e.Score(a, b)
	if report.SEnt != DefaultTypeWeights().Person {
		t.Fatalf("expected SEnt to equal the person type weight for a full overlap, got %f", report.SEnt)
	}
}

func TestScore_MissingDatesReportsNeutralTemporal(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	a := ArticleFacts{ArticleID: 1, Embedding: []float64{1, 0}}
	b := ArticleFacts{ArticleID: 2, Embedding: []float64{1, 0}}

	report := e.Score(a, b)
	if !report.DateMissing {
		t.Fatal("expected DateMissing to be set when both dates are nil")
	}
	if report.STmp != 0.5 {
		t.Fatalf("expected neutral temporal proximity 0.5, got %f", report.STmp)
	}
}

func TestScore_VectorMagnitudeErrorDoesNotPanic(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	a := ArticleFacts{ArticleID: 1, Embedding: []float64{0, 0}}
	b := ArticleFacts{ArticleID: 2, Embedding: []float64{1, 1}}

	report := e.Score(a, b)
	if !report.VectorMagnitudeErr {
		t.Fatal("expected a near-zero magnitude embedding to set VectorMagnitudeErr")
	}
	if report.SVec != 0 {
		t.Fatalf("expected SVec=0 on a magnitude error, got %f", report.SVec)
	}
}

func TestWeightedJaccard_FullOverlapIsOne(t *testing.T) {
	t.Parallel()

	refs := []EntityRef{{EntityID: 1, Importance: db.ImportancePrimary}}
	got := weightedJaccard(refs, refs)
	if got != 1.0 {
		t.Fatalf("expected full overlap to score 1.0, got %f", got)
	}
}

func TestWeightedJaccard_EmptyBothSidesIsZero(t *testing.T) {
	t.Parallel()

	if got := weightedJaccard(nil, nil); got != 0 {
		t.Fatalf("expected empty/empty overlap to score 0, got %f", got)
	}
}

func TestWeightedJaccard_PartialOverlapWeightedByImportance(t *testing.T) {
	t.Parallel()

	a := []EntityRef{
		{EntityID: 1, Importance: db.ImportancePrimary},
		{EntityID: 2, Importance: db.ImportanceSecondary},
	}
	b := []EntityRef{
		{EntityID: 1, Importance: db.ImportancePrimary},
	}
	got := weightedJaccard(a, b)
	// intersection = 1.0 (entity 1), union = 1.0 (entity 1) + 0.5 (entity 2) = 1.5
	want := 1.0 / 1.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestTemporalProximity_ExactMatchIsOne(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	var report Report
	got := e.temporalProximity(ptrTime(day(0)), ptrTime(day(0)), &report)
	if got != 1.0 {
		t.Fatalf("expected s_tmp=1.0 at delta=0, got %f", got)
	}
}

func TestTemporalProximity_SevenDaysIsHalf(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	var report Report
	got := e.temporalProximity(ptrTime(day(0)), ptrTime(day(7)), &report)
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected s_tmp=0.5 at delta=7, got %f", got)
	}
}

func TestTemporalProximity_ThirtyDaysOrMoreIsZero(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultWeights(), DefaultTypeWeights())
	var report Report
	got := e.temporalProximity(ptrTime(day(0)), ptrTime(day(30)), &report)
	if got != 0 {
		t.Fatalf("expected s_tmp=0 at delta>=30, got %f", got)
	}
}

func TestClamp01(t *testing.T) {
	t.Parallel()

	if clamp01(-0.5) != 0 {
		t.Fatal("expected negative values clamped to 0")
	}
	if clamp01(1.5) != 1 {
		t.Fatal("expected values above 1 clamped to 1")
	}
	if clamp01(0.42) != 0.42 {
		t.Fatal("expected in-range values passed through unchanged")
	}
}

func day(offset int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
