package vectorstore

import (
	"math"
	"testing"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	t.Parallel()

	got, err := Cosine([]float64{1, 2, 3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected cosine 1 for identical vectors, got %f", got)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	t.Parallel()

	got, err := Cosine([]float64{1, 0}, []float64{0, 1})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Fatalf("expected cosine 0 for orthogonal vectors, got %f", got)
	}
}

func TestCosine_LengthMismatch(t *testing.T) {
	t.Parallel()

	if _, err := Cosine([]float64{1, 2}, []float64{1, 2, 3}); err == nil {
		t.Fatal("expected error for mismatched vector lengths")
	}
}

func TestCosine_ZeroMagnitudeIsAnError(t *testing.T) {
	t.Parallel()

	if _, err := Cosine([]float64{0, 0}, []float64{1, 1}); err == nil {
		t.Fatal("expected error for near-zero magnitude vector")
	}
}

func TestCosine_NegativeClampedToZero(t *testing.T) {
	t.Parallel()

	got, err := Cosine([]float64{1, 0}, []float64{-1, 0})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected negative cosine clamped to 0, got %f", got)
	}
}
