package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeEmbeddingEndpoint_AppendsEmbedPath(t *testing.T) {
	t.Parallel()

	got := normalizeEmbeddingEndpoint("http://127.0.0.1:8844")
	if got != "http://127.0.0.1:8844/embed" {
		t.Fatalf("unexpected endpoint: %q", got)
	}
}

func TestNormalizeEmbeddingEndpoint_KeepsExplicitPath(t *testing.T) {
	t.Parallel()

	got := normalizeEmbeddingEndpoint("http://127.0.0.1:8844/v1/embeddings")
	if got != "http://127.0.0.1:8844/v1/embeddings" {
		t.Fatalf("unexpected endpoint: %q", got)
	}
}

func TestEmbed_TextsShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Texts) != 2 {
			t.Fatalf("expected texts shape, got %+v", req)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1, 0}, {0, 1}}})
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL, 2, 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 {
		t.Fatalf("unexpected vectors: %+v", vectors)
	}
}

func TestEmbed_OpenAIShapeAndOrdering(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Fatalf("expected openai input shape, got %+v", req)
		}
		resp := embedResponse{Data: []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}{
			{Index: 1, Embedding: []float64{0, 1}},
			{Index: 0, Embedding: []float64{1, 0}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL+"/v1/embeddings", 2, 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("expected data reordered by index, got %+v", vectors)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1, 0, 0}}})
	}))
	defer server.Close()

	client := NewEmbeddingClient(server.URL, 2, 5*time.Second)
	if _, err := client.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbed_EmptyInputShortCircuits(t *testing.T) {
	t.Parallel()

	client := NewEmbeddingClient("http://unused.invalid", 4, time.Second)
	vectors, err := client.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("expected nil, nil for empty input, got %+v, %v", vectors, err)
	}
}

func TestVectorLiteral_RoundTrip(t *testing.T) {
	t.Parallel()

	literal, err := VectorLiteral([]float64{1.5, -2, 0})
	if err != nil {
		t.Fatalf("vector literal: %v", err)
	}
	if literal != "[1.5,-2,0]" {
		t.Fatalf("unexpected literal: %q", literal)
	}

	parsed, err := ParseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("parse literal: %v", err)
	}
	if len(parsed) != 3 || parsed[0] != 1.5 {
		t.Fatalf("unexpected parsed vector: %+v", parsed)
	}
}

func TestVectorLiteral_RejectsNonFinite(t *testing.T) {
	t.Parallel()

	if _, err := VectorLiteral([]float64{1, 0, math.NaN()}); err == nil {
		t.Fatal("expected error for NaN value")
	}
}

func TestVectorLiteral_RejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := VectorLiteral(nil); err == nil {
		t.Fatal("expected error for empty vector")
	}
}

func TestParseVectorLiteral_Empty(t *testing.T) {
	t.Parallel()

	parsed, err := ParseVectorLiteral("[]")
	if err != nil || parsed != nil {
		t.Fatalf("expected nil, nil for empty literal, got %+v, %v", parsed, err)
	}
}
