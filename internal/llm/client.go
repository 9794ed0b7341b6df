// Package llm implements the LLM Client (§4.J): two distinct call shapes
// over a pool of OpenAI-compatible chat-completion endpoints, qwen
// reasoning-directive injection, <think> stripping, and a retry loop.
// Grounded on the retry shape of generate_llm_response in
// original_source/src/llm.rs; the distilled contract's max-3-attempts-
// plus-jitter requirement supersedes that file's 5-retries/no-jitter
// shape (see DESIGN.md).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"horse.fit/argus/internal/errkind"
	"horse.fit/argus/internal/metrics"
	"horse.fit/argus/internal/schema"
)

// maxAttempts is the §4.J retry ceiling. Config.LLMMaxRetries may lower
// it further but never raise it past the contract value.
const maxAttempts = 3

// ThinkingConfig gates the qwen-prefix directive and <think> stripping
// behavior of §4.J. A nil ThinkingConfig on a params value disables both.
type ThinkingConfig struct {
	// Enabled requests reasoning. When false, a qwen-identified model gets
	// the no-reasoning directive appended to its prompt.
	Enabled bool
}

// TextParams and JSONParams are deliberately distinct types (§4.J: "two
// distinct call shapes that must not share mutable request state") even
// though their fields overlap today — a caller building a JSONParams
// cannot accidentally hand it to GenerateText and leak JSON-mode state
// onto a plain-text request.
type TextParams struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	ThinkingConfig *ThinkingConfig
}

type JSONParams struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	ThinkingConfig *ThinkingConfig
}

// endpointPool round-robins across a role's configured endpoints
// (decision or analysis), rotating on every attempt so a single
// unreachable endpoint doesn't monopolize retries.
type endpointPool struct {
	endpoints []string
	cursor    atomic.Uint64
}

func newEndpointPool(endpoints []string) *endpointPool {
	return &endpointPool{endpoints: endpoints}
}

func (p *endpointPool) next() (string, error) {
	if len(p.endpoints) == 0 {
		return "", fmt.Errorf("no LLM endpoints configured")
	}
	i := p.cursor.Add(1) - 1
	return p.endpoints[i%uint64(len(p.endpoints))], nil
}

// Client is the LLM Client for one worker role (decision or analysis),
// bound to that role's endpoint pool and default JSON params.
type Client struct {
	pool              *endpointPool
	httpClient        *http.Client
	requestTimeout    time.Duration
	maxAttempts       int
	defaultJSONParams JSONParams
}

// New builds a role-scoped Client. defaultJSONParams is used by
// GenerateJSON, whose signature is fixed by the entity.JSONGenerator
// seam and so cannot take a params argument per call.
func New(endpoints []string, requestTimeout time.Duration, configuredMaxRetries int, defaultJSONParams JSONParams) *Client {
	attempts := maxAttempts
	if configuredMaxRetries > 0 && configuredMaxRetries < attempts {
		attempts = configuredMaxRetries
	}
	return &Client{
		pool:              newEndpointPool(endpoints),
		httpClient:        &http.Client{},
		requestTimeout:    requestTimeout,
		maxAttempts:       attempts,
		defaultJSONParams: defaultJSONParams,
	}
}

// GenerateJSON satisfies entity.JSONGenerator, using the Client's default
// JSON params. It validates the response against schemaID before
// returning it.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schemaID schema.ID) (json.RawMessage, error) {
	return c.GenerateJSONWithParams(ctx, prompt, schemaID, c.defaultJSONParams)
}

// GenerateJSONWithParams is the full §4.J generate_json shape, for
// callers (the Decision Worker's threat-location request) that need
// params the fixed JSONGenerator signature can't carry.
func (c *Client) GenerateJSONWithParams(ctx context.Context, prompt string, schemaID schema.ID, params JSONParams) (json.RawMessage, error) {
	directed := applyThinkingDirective(prompt, params.Model, params.ThinkingConfig)

	raw, err := c.requestWithRetry(ctx, chatRequest{
		Model:          params.Model,
		Temperature:    params.Temperature,
		MaxTokens:      params.MaxTokens,
		Prompt:         directed,
		ResponseFormat: jsonResponseFormat,
	})
	if err != nil {
		return nil, err
	}

	stripped := stripThink(raw)
	switch schemaID {
	case schema.EntityExtraction:
		if _, err := schema.ValidateEntityExtraction(json.RawMessage(stripped)); err != nil {
			return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("validate EntityExtraction response: %w", err))
		}
	case schema.ThreatLocation:
		if _, err := schema.ValidateThreatLocation(json.RawMessage(stripped)); err != nil {
			return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("validate ThreatLocation response: %w", err))
		}
	case schema.Generic:
		if !json.Valid([]byte(stripped)) {
			return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("generic JSON response is not valid JSON"))
		}
	default:
		return nil, errkind.Wrap(errkind.Validation, fmt.Errorf("unknown schema id %q", schemaID))
	}
	return json.RawMessage(stripped), nil
}

// GenerateText is §4.J's generate_text shape: a plain response, never
// schema-validated, built from its own params type so no JSON-mode state
// from a prior generate_json call can leak onto it.
func (c *Client) GenerateText(ctx context.Context, prompt string, params TextParams) (string, error) {
	directed := applyThinkingDirective(prompt, params.Model, params.ThinkingConfig)

	raw, err := c.requestWithRetry(ctx, chatRequest{
		Model:       params.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Prompt:      directed,
	})
	if err != nil {
		return "", err
	}
	return stripThink(raw), nil
}

// applyThinkingDirective implements §4.J's qwen-prefix rule: a
// model-specific directive is appended only for models whose identifier
// begins with "qwen", only when a ThinkingConfig is present, and only to
// request the no-reasoning mode.
func applyThinkingDirective(prompt, model string, cfg *ThinkingConfig) string {
	if cfg == nil {
		return prompt
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "qwen") {
		return prompt
	}
	if cfg.Enabled {
		return prompt
	}
	return prompt + "\n/no_think"
}

var thinkSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThink removes every <think>...</think> span from a response,
// including the empty-span case, before it reaches a caller or schema
// validator (§4.J).
func stripThink(s string) string {
	return strings.TrimSpace(thinkSpan.ReplaceAllString(s, ""))
}

const jsonResponseFormat = "json_object"

type chatRequest struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	Prompt         string
	ResponseFormat string
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// requestWithRetry implements §4.J's retry policy: exponential backoff
// with jitter, capped at c.maxAttempts, each attempt bound by its own
// per-request timeout. A TRANSIENT classification is retried; anything
// else returns immediately.
func (c *Client) requestWithRetry(ctx context.Context, req chatRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		endpoint, err := c.pool.next()
		if err != nil {
			return "", errkind.Wrap(errkind.Fatal, err)
		}

		text, err := c.doRequest(ctx, endpoint, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errkind.Of(err) != errkind.Transient || attempt == c.maxAttempts {
			return "", err
		}
		if sleepErr := backoffSleep(ctx, attempt); sleepErr != nil {
			return "", sleepErr
		}
	}
	return "", lastErr
}

// backoffSleep waits 2^attempt seconds plus up to 500ms of jitter,
// honoring context cancellation (§4.J's exponential-backoff-with-jitter
// requirement; original_source/src/llm.rs uses the same doubling shape
// without jitter or a 3-attempt cap).
func backoffSleep(ctx context.Context, attempt int) error {
	base := time.Duration(1<<attempt) * time.Second
	jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint string, req chatRequest) (string, error) {
	shape := "text"
	if req.ResponseFormat != "" {
		shape = "json"
	}
	start := time.Now()
	defer func() {
		metrics.LLMRequestDuration.WithLabelValues(shape).Observe(time.Since(start).Seconds())
	}()

	body := chatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: req.ResponseFormat}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errkind.Wrap(errkind.Fatal, fmt.Errorf("marshal LLM request: %w", err))
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errkind.Wrap(errkind.Fatal, fmt.Errorf("build LLM request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errkind.Wrap(errkind.Transient, fmt.Errorf("LLM request to %s failed: %w", endpoint, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errkind.Wrap(errkind.Transient, fmt.Errorf("read LLM response from %s: %w", endpoint, err))
	}

	if resp.StatusCode >= 500 {
		return "", errkind.Wrap(errkind.Transient, fmt.Errorf("LLM endpoint %s returned %d: %s", endpoint, resp.StatusCode, truncate(respBody, 200)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errkind.Wrap(errkind.Validation, fmt.Errorf("LLM endpoint %s returned %d: %s", endpoint, resp.StatusCode, truncate(respBody, 200)))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errkind.Wrap(errkind.Validation, fmt.Errorf("decode LLM response from %s: %w", endpoint, err))
	}
	if len(parsed.Choices) == 0 {
		return "", errkind.Wrap(errkind.Validation, fmt.Errorf("LLM response from %s carried no choices", endpoint))
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
