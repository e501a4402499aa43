package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// InitializationError reports missing or invalid credentials, endpoints or
// deployments detected during Initialize.
type InitializationError struct {
	Provider string
	Reason   string
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: initialization failed: %s", e.Provider, e.Reason)
}

// ValidationError reports an empty or malformed message list or tool
// definition. Validation errors are never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// RateLimitInfo carries rate-limit metadata parsed from a 429 response.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	RequestsRemaining int
	TokensRemaining   int
}

// ProviderAPIError is a non-2xx response from a provider.
type ProviderAPIError struct {
	Provider   string
	StatusCode int
	Message    string
	RateLimit  *RateLimitInfo
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the status is transient: 429 and 5xx retry,
// every other 4xx is terminal.
func (e *ProviderAPIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NetworkError is a transport failure or timeout before a response arrived.
type NetworkError struct {
	Provider string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// Retryable always holds for transport failures.
func (e *NetworkError) Retryable() bool { return true }

// ParseError is a response body that stayed unparsable after every JSON
// recovery attempt. Raw retains the original bytes for diagnostics.
type ParseError struct {
	Provider string
	Raw      string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unrecoverable response body: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// CircuitOpenError is returned when the provider's breaker is open and the
// call was short-circuited without a network attempt.
type CircuitOpenError struct {
	Provider string
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s: circuit breaker open", e.Provider)
	}
	return fmt.Sprintf("%s: circuit breaker open, retry after %s", e.Provider, e.RetryAt.Format(time.RFC3339))
}

// Retryable reports whether err is transient per the propagation policy.
func Retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
