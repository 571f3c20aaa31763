// Package llm provides a uniform chat-completion client over several
// backends (a hosted bearer-authenticated API, a local daemon, and a mock
// for tests), with retry, pacing and structured-output support per §4.3.
package llm

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/infrastructure/ratelimit"
	"github.com/foundersignal/pipeline/infrastructure/resilience"
)

// ResponseFormat is a structured-output hint passed to Complete.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json_object"
)

// CompletionRequest bundles Complete's parameters.
type CompletionRequest struct {
	Prompt         string
	SystemPrompt   string
	ResponseFormat ResponseFormat
	Temperature    float64
	MaxTokens      int
}

// backend is the minimal surface a concrete provider must implement; Client
// wraps it with retry, pacing, JSON-format augmentation and metrics.
type backend interface {
	name() string
	call(ctx context.Context, req CompletionRequest) (string, error)
}

// Client is the uniform LLM oracle exposed to the rest of the pipeline.
// One Client instance owns one pacing limiter, shared across all callers so
// concurrent adapter tasks cannot together exceed the configured rate even
// though each task serializes its own calls (§5).
type Client struct {
	backend    backend
	pacer      *ratelimit.RateLimiter
	retryCfg   resilience.RetryConfig
	cb          *resilience.CircuitBreaker
	metric      *metrics.Metrics
	serviceName string
}

// New builds a Client around backend b, pacing calls at most one per delay.
func New(b backend, delay time.Duration, metric *metrics.Metrics) *Client {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	perSecond := 1.0 / delay.Seconds()
	return &Client{
		backend: b,
		pacer:   ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: perSecond, Burst: 1}),
		retryCfg: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
		cb:          resilience.New(resilience.DefaultServiceCBConfig(nil)),
		metric:      metric,
		serviceName: "discovery-pipeline",
	}
}

// Complete sends one chat-completion request and returns the raw reply
// text, augmenting the system prompt when a JSON response is required and
// retrying any backend error (transport failure, non-2xx status, undecodable
// reply) with exponential backoff.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.ResponseFormat == ResponseFormatJSON {
		req.SystemPrompt = augmentForJSON(req.SystemPrompt)
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return "", errors.Timeout("llm_pacing")
	}

	start := time.Now()
	var out string
	err := c.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retryCfg, func() error {
			var callErr error
			out, callErr = c.backend.call(ctx, req)
			return callErr
		})
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metric != nil {
		c.metric.RecordLLMCall(c.serviceName, c.backend.name(), status, time.Since(start))
	}
	if err != nil {
		return "", errors.UpstreamError(c.backend.name(), err)
	}
	return out, nil
}

// augmentForJSON appends an explicit JSON instruction, matching providers
// that do not natively enforce a JSON response format.
func augmentForJSON(systemPrompt string) string {
	instruction := "Respond only with a single valid JSON object, no surrounding prose."
	if systemPrompt == "" {
		return instruction
	}
	return systemPrompt + "\n\n" + instruction
}

// ValidateJSON is a convenience check used by callers that want to fail
// fast before handing a reply to a downstream JSON parser.
func ValidateJSON(raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return errors.ParseFailed("llm_reply", err)
	}
	return nil
}
