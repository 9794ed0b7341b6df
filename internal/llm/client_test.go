package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"horse.fit/argus/internal/errkind"
)

func TestApplyThinkingDirective_QwenNoReasoningAppendsDirective(t *testing.T) {
	t.Parallel()

	got := applyThinkingDirective("summarize this", "qwen2.5:32b", &ThinkingConfig{Enabled: false})
	if !strings.HasSuffix(got, "/no_think") {
		t.Fatalf("expected the no-reasoning directive appended, got %q", got)
	}
}

func TestApplyThinkingDirective_QwenReasoningEnabledLeavesPromptAlone(t *testing.T) {
	t.Parallel()

	got := applyThinkingDirective("summarize this", "qwen2.5:32b", &ThinkingConfig{Enabled: true})
	if got != "summarize this" {
		t.Fatalf("expected prompt unchanged when reasoning is enabled, got %q", got)
	}
}

func TestApplyThinkingDirective_NonQwenModelUnaffected(t *testing.T) {
	t.Parallel()

	got := applyThinkingDirective("summarize this", "llama3:70b", &ThinkingConfig{Enabled: false})
	if got != "summarize this" {
		t.Fatalf("expected non-qwen models to be left untouched, got %q", got)
	}
}

func TestApplyThinkingDirective_NilConfigLeavesPromptAlone(t *testing.T) {
	t.Parallel()

	got := applyThinkingDirective("summarize this", "qwen2.5:32b", nil)
	if got != "summarize this" {
		t.Fatalf("expected nil ThinkingConfig to disable the directive, got %q", got)
	}
}

func TestApplyThinkingDirective_CaseInsensitiveModelMatch(t *testing.T) {
	t.Parallel()

	got := applyThinkingDirective("x", "QWEN2.5:32B", &ThinkingConfig{Enabled: false})
	if !strings.HasSuffix(got, "/no_think") {
		t.Fatalf("expected a case-insensitive qwen prefix match, got %q", got)
	}
}

func TestStripThink_RemovesThinkSpan(t *testing.T) {
	t.Parallel()

	got := stripThink("<think>reasoning about it</think>final answer")
	if got != "final answer" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestStripThink_RemovesMultilineSpan(t *testing.T) {
	t.Parallel()

	got := stripThink("<think>\nline one\nline two\n</think>\nfinal answer")
	if got != "final answer" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestStripThink_EmptySpan(t *testing.T) {
	t.Parallel()

	got := stripThink("<think></think>final answer")
	if got != "final answer" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestStripThink_NoSpanLeavesResponseUnchanged(t *testing.T) {
	t.Parallel()

	got := stripThink("  final answer  ")
	if got != "final answer" {
		t.Fatalf("expected trimming only, got %q", got)
	}
}

func TestEndpointPool_RoundRobins(t *testing.T) {
	t.Parallel()

	p := newEndpointPool([]string{"a", "b", "c"})
	var seen []string
	for i := 0; i < 6; i++ {
		ep, err := p.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		seen = append(seen, ep)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected rotation: %+v", seen)
		}
	}
}

func TestEndpointPool_EmptyReturnsError(t *testing.T) {
	t.Parallel()

	p := newEndpointPool(nil)
	if _, err := p.next(); err == nil {
		t.Fatal("expected an error for an empty endpoint pool")
	}
}

func newTestClient(endpointURL string, maxRetries int) *Client {
	return New([]string{endpointURL}, 2*time.Second, maxRetries, JSONParams{Model: "qwen2.5:32b"})
}

func TestGenerateText_HappyPath(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "<think>hmm</think>the answer"}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	got, err := client.GenerateText(context.Background(), "what is it", TextParams{Model: "qwen2.5:32b"})
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if got != "the answer" {
		t.Fatalf("expected think span stripped, got %q", got)
	}
}

func TestGenerateText_RetriesOn5xxThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)

	start := time.Now()
	got, err := client.GenerateText(context.Background(), "retry me", TextParams{Model: "qwen2.5:32b"})
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected result: %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls.Load())
	}
	if time.Since(start) < time.Second {
		t.Fatal("expected the retry to wait for the backoff interval")
	}
}

func TestGenerateText_ValidationErrorDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	_, err := client.GenerateText(context.Background(), "x", TextParams{Model: "qwen2.5:32b"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errkind.Of(err) != errkind.Validation {
		t.Fatalf("expected a Validation classification, got %s", errkind.Of(err))
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry on a non-transient error, got %d calls", calls.Load())
	}
}

func TestGenerateText_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	_, err := client.GenerateText(context.Background(), "x", TextParams{Model: "qwen2.5:32b"})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly maxAttempts=2 calls, got %d", calls.Load())
	}
}

func TestGenerateJSONWithParams_RejectsSchemaViolation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"entities": "not an array"}`}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	_, err := client.GenerateJSON(context.Background(), "extract entities", "EntityExtraction")
	if err == nil {
		t.Fatal("expected a schema validation error")
	}
	if errkind.Of(err) != errkind.Validation {
		t.Fatalf("expected a Validation classification, got %s", errkind.Of(err))
	}
}
