package llm

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/forge/internal/backoff"
)

// RetryConfig controls transport-level retries around a Client.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Base is the exponential growth factor between retries.
	Base float64
}

// DefaultRetryConfig returns the standard retry policy: 3 attempts,
// 1s initial delay, doubling between attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Base:         2.0,
	}
}

// retryClient wraps a Client with retry-on-transient-error behavior.
// Rate-limit errors honor the provider's retry-after hint; other
// retryable errors use exponential backoff. Non-retryable errors are
// returned immediately.
type retryClient struct {
	inner Client
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry decorates a client with the retry policy.
func WithRetry(inner Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &retryClient{
		inner: inner,
		cfg:   cfg,
		sleep: backoff.SleepWithContext,
	}
}

func (c *retryClient) Model() string {
	return c.inner.Model()
}

func (c *retryClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return c.do(ctx, func() (*Response, error) {
		return c.inner.Generate(ctx, req)
	})
}

func (c *retryClient) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	return c.do(ctx, func() (*Response, error) {
		return c.inner.GenerateStream(ctx, req, onDelta)
	})
}

func (c *retryClient) do(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	policy := backoff.Policy{Initial: c.cfg.InitialDelay, Factor: c.cfg.Base}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(policy, attempt-1, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// retryDelay prefers the provider's retry-after hint over the
// computed backoff.
func retryDelay(policy backoff.Policy, attempt int, err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}
	return backoff.Delay(policy, attempt)
}
