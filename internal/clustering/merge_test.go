package clustering

import (
	"math"
	"testing"
)

func TestEntityJaccard_FullOverlap(t *testing.T) {
	t.Parallel()

	got := entityJaccard([]int64{1, 2, 3}, []int64{1, 2, 3})
	if got != 1.0 {
		t.Fatalf("expected full overlap to score 1.0, got %f", got)
	}
}

func TestEntityJaccard_NoOverlap(t *testing.T) {
	t.Parallel()

	got := entityJaccard([]int64{1, 2}, []int64{3, 4})
	if got != 0 {
		t.Fatalf("expected no overlap to score 0, got %f", got)
	}
}

func TestEntityJaccard_PartialOverlap(t *testing.T) {
	t.Parallel()

	got := entityJaccard([]int64{1, 2, 3}, []int64{2, 3, 4})
	want := 2.0 / 4.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestEntityJaccard_BothEmpty(t *testing.T) {
	t.Parallel()

	if got := entityJaccard(nil, nil); got != 0 {
		t.Fatalf("expected empty/empty to score 0, got %f", got)
	}
}

func TestCappedByFrequency_OrdersByFrequencyDescending(t *testing.T) {
	t.Parallel()

	ids := []int64{1, 2, 2, 3, 3, 3}
	got := cappedByFrequency(ids)
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("expected ids ordered by frequency descending, got %+v", got)
	}
}

func TestCappedByFrequency_CapsAtPrimaryEntityCap(t *testing.T) {
	t.Parallel()

	ids := make([]int64, 0, primaryEntityCap+5)
	for i := int64(0); i < int64(primaryEntityCap+5); i++ {
		ids = append(ids, i)
	}
	got := cappedByFrequency(ids)
	if len(got) != primaryEntityCap {
		t.Fatalf("expected result capped at %d, got %d", primaryEntityCap, len(got))
	}
}
