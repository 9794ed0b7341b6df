package clustering

import (
	"math"
	"testing"
	"time"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/similarity"
)

func TestNeedsSummaryRefresh_PowerOfTwoBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lastUpdated := now.Add(-time.Minute)

	for _, count := range []int{1, 2, 4, 8, 16} {
		if !NeedsSummaryRefresh(count, lastUpdated, now) {
			t.Errorf("expected a refresh at power-of-two count %d", count)
		}
	}
	if NeedsSummaryRefresh(3, lastUpdated, now) {
		t.Error("expected no refresh at a non-power-of-two count with a recent update")
	}
}

func TestNeedsSummaryRefresh_StaleAfter24Hours(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lastUpdated := now.Add(-25 * time.Hour)

	if !NeedsSummaryRefresh(3, lastUpdated, now) {
		t.Fatal("expected a refresh when 24h have elapsed regardless of count")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	t.Parallel()

	cases := map[int]bool{0: false, 1: true, 2: true, 3: false, 4: true, 5: false, 1024: true}
	for n, want := range cases {
		if got := isPowerOfTwo(n); got != want {
			t.Errorf("isPowerOfTwo(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestEngine_Importance(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, nil, ImportanceWeights{Count: 0.5, Quality: 0.3, Recency: 0.2}, DefaultMergeThresholds())

	got := e.Importance(7, 0.8, 0)
	want := 0.5*math.Log(8) + 0.3*0.8 + 0.2*1.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestEngine_ImportanceDecaysWithAge(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, nil, DefaultImportanceWeights(), DefaultMergeThresholds())

	fresh := e.Importance(5, 0.5, 0)
	stale := e.Importance(5, 0.5, 48*time.Hour)
	if stale >= fresh {
		t.Fatalf("expected importance to decay with article age: fresh=%f stale=%f", fresh, stale)
	}
}

func TestDefaultImportanceWeights_SumToOne(t *testing.T) {
	t.Parallel()

	w := DefaultImportanceWeights()
	total := w.Count + w.Quality + w.Recency
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("expected default weights to sum to 1.0, got %f", total)
	}
}

func TestPrimaryEntityIDs_FiltersByImportance(t *testing.T) {
	t.Parallel()

	refs := []similarity.EntityRef{
		{EntityID: 1, Importance: db.ImportancePrimary},
		{EntityID: 2, Importance: db.ImportanceSecondary},
		{EntityID: 3, Importance: db.ImportanceMentioned},
		{EntityID: 4, Importance: db.ImportancePrimary},
	}
	got := primaryEntityIDs(refs)
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("expected only PRIMARY entities, got %+v", got)
	}
}

func TestMergeEntityIDs_DedupesPreservingOrder(t *testing.T) {
	t.Parallel()

	got := mergeEntityIDs([]int64{1, 2, 3}, []int64{3, 4, 1})
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: got %+v, want %+v", got, want)
		}
	}
}

func TestMergeEntityIDs_EmptyAdditional(t *testing.T) {
	t.Parallel()

	got := mergeEntityIDs([]int64{5, 6}, nil)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestIsClusterMember_DetectsExistingAssignment(t *testing.T) {
	t.Parallel()

	members := []db.Article{{ID: 10}, {ID: 42}}
	if !isClusterMember(members, 42) {
		t.Fatal("expected article 42 to be detected as an existing cluster member")
	}
	if isClusterMember(members, 99) {
		t.Fatal("expected article 99 not to be a member")
	}
}

func TestIsClusterMember_EmptyMembers(t *testing.T) {
	t.Parallel()

	if isClusterMember(nil, 1) {
		t.Fatal("expected no members to match")
	}
}
