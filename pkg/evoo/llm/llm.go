// Package llm implements the abstract LLM Client contract (§4.5): a
// function mapping a system prompt + user prompt to a string response,
// optionally constrained to JSON, with linear-backoff retry, a
// heartbeat hook for durable schedulers, and a circuit breaker so a
// persistently failing provider is bypassed quickly rather than paying
// the full retry ladder on every call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evoo/evoo/pkg/evoo/errs"
	"github.com/evoo/evoo/pkg/evoo/metrics"
)

// ErrCancelled is returned immediately on context cancellation, without
// retrying (§4.5).
var ErrCancelled = errs.ErrCancelled

// Request is one call to the abstract LLM contract.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

// Provider is a concrete backend satisfying the chat-completion shape.
// Shaped after langchaingo/llms.Model's GenerateContent call: a single
// role-tagged exchange in, a single text completion out.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// HeartbeatFunc reports liveness to a durable scheduler before each
// retry attempt; nil is a valid no-op heartbeat.
type HeartbeatFunc func(msg string)

// Client wraps a Provider with retry, heartbeat, and circuit-breaking.
type Client struct {
	provider     Provider
	providerName string
	maxRetries   int
	timeout      time.Duration
	heartbeat    HeartbeatFunc
	breaker      *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries overrides the default of 3 attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithTimeout bounds a single attempt (§5: LLM calls <= 120s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHeartbeat installs a liveness callback invoked before each attempt.
func WithHeartbeat(fn HeartbeatFunc) Option {
	return func(c *Client) { c.heartbeat = fn }
}

// WithProviderName labels this client's metrics, e.g. "openai" or
// "anthropic"; defaults to "unknown".
func WithProviderName(name string) Option {
	return func(c *Client) { c.providerName = name }
}

// New builds a Client around provider with a circuit breaker that trips
// after 5 consecutive failures and resets after 30s.
func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:     provider,
		providerName: "unknown",
		maxRetries:   3,
		timeout:      120 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm_client",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(c.providerName, int(to))
		},
	})
	return c
}

func (c *Client) beat(msg string) {
	if c.heartbeat != nil {
		c.heartbeat(msg)
	}
}

// Complete calls the underlying provider with linear backoff (2s, 4s,
// 6s, ...) up to maxRetries attempts. On context cancellation it
// returns ErrCancelled immediately without retrying. All failures are
// ultimately recoverable by the caller's deterministic fallback path
// (§7 "Transient LLM failure").
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	result, err := c.complete(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrCancelled) {
			outcome = "cancelled"
		}
	}
	metrics.RecordLLMCall(c.providerName, outcome, time.Since(start).Seconds())
	return result, err
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ErrCancelled
		default:
		}

		c.beat(fmt.Sprintf("LLM call attempt %d/%d", attempt+1, c.maxRetries))

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		result, err := c.breaker.Execute(func() (any, error) {
			return c.provider.Complete(attemptCtx, req)
		})
		cancel()

		if err == nil {
			c.beat("LLM call completed")
			return result.(string), nil
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrCancelled
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", fmt.Errorf("llm circuit breaker open: %w", err)
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			wait := time.Duration(attempt+1) * 2 * time.Second
			c.beat(fmt.Sprintf("retrying LLM in %s", wait))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ErrCancelled
			case <-timer.C:
			}
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxRetries, lastErr)
}
