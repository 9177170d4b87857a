package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind string

const (
	// ErrTimeout indicates the request timed out. Retryable.
	ErrTimeout ErrorKind = "timeout"

	// ErrRateLimit indicates the provider throttled the request.
	// Retryable, optionally carrying a retry-after hint.
	ErrRateLimit ErrorKind = "rate_limit"

	// ErrContextLength indicates the request exceeded the model's
	// context window. Not retryable.
	ErrContextLength ErrorKind = "context_length_exceeded"

	// ErrAuthentication indicates invalid or missing credentials.
	// Not retryable.
	ErrAuthentication ErrorKind = "authentication"

	// ErrInvalidRequest indicates a malformed request. Not retryable.
	ErrInvalidRequest ErrorKind = "invalid_request"

	// ErrModelNotFound indicates the requested model does not exist.
	// Not retryable.
	ErrModelNotFound ErrorKind = "model_not_found"

	// ErrAPI is the catch-all for other provider failures. Not retryable.
	ErrAPI ErrorKind = "api_error"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	// RetryAfter is the provider-suggested wait before retrying.
	// Zero means no hint was given.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is safe to retry.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ErrTimeout || e.Kind == ErrRateLimit
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

// newProviderError builds a ProviderError preserving the cause chain.
func newProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// classifyOpenAIError maps go-openai SDK errors to the taxonomy.
func classifyOpenAIError(provider string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := classifyStatusCode(provider, apiErr.HTTPStatusCode, err)
		// The SDK surfaces some failures as typed codes rather than
		// distinct status codes.
		switch code := apiErr.Code.(type) {
		case string:
			switch code {
			case "context_length_exceeded":
				pe.Kind = ErrContextLength
			case "model_not_found":
				pe.Kind = ErrModelNotFound
			}
		}
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatusCode(provider, reqErr.HTTPStatusCode, err)
	}

	return classifyGeneric(provider, err)
}

// classifyAnthropicError maps anthropic-sdk-go errors to the taxonomy,
// extracting the Retry-After response header when present.
func classifyAnthropicError(provider string, err error) *ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := classifyStatusCode(provider, apiErr.StatusCode, err)
		if pe.Kind == ErrRateLimit && apiErr.Response != nil {
			pe.RetryAfter = parseRetryAfter(apiErr.Response.Header)
		}
		return pe
	}
	return classifyGeneric(provider, err)
}

// classifyStatusCode maps an HTTP status to an error kind.
func classifyStatusCode(provider string, status int, err error) *ProviderError {
	pe := newProviderError(provider, ErrAPI, err)
	pe.StatusCode = status

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Kind = ErrAuthentication
	case status == http.StatusNotFound:
		pe.Kind = ErrModelNotFound
	case status == http.StatusTooManyRequests:
		pe.Kind = ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		pe.Kind = ErrTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		pe.Kind = ErrInvalidRequest
		if mentionsContextLength(err) {
			pe.Kind = ErrContextLength
		}
	case status >= 500:
		// Transient server trouble behaves like a timeout for retry purposes.
		pe.Kind = ErrTimeout
	default:
		if mentionsContextLength(err) {
			pe.Kind = ErrContextLength
		}
	}
	return pe
}

// classifyGeneric handles transport-level failures with no HTTP status.
func classifyGeneric(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newProviderError(provider, ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newProviderError(provider, ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return newProviderError(provider, ErrTimeout, err)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return newProviderError(provider, ErrRateLimit, err)
	case mentionsContextLength(err):
		return newProviderError(provider, ErrContextLength, err)
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		return newProviderError(provider, ErrAuthentication, err)
	case strings.Contains(msg, "model") && (strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")):
		return newProviderError(provider, ErrModelNotFound, err)
	default:
		return newProviderError(provider, ErrAPI, err)
	}
}

func mentionsContextLength(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context_length") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "prompt is too long")
}

// parseRetryAfter reads a Retry-After header, accepting both seconds
// and HTTP-date forms.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
