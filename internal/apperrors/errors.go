// Package apperrors gives the error taxonomy a concrete Go shape: one type
// per category, each satisfying error and distinguishable with errors.As.
// Deep pipeline stages return these instead of raising and catching, and the
// HTTP boundary folds them into a status code and a generic user message.
package apperrors

import (
	"fmt"
	"time"
)

// ValidationError means the input failed a schema, length, or sanitize check.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// RateLimitExceededError carries the Retry-After the caller should surface.
type RateLimitExceededError struct {
	Identifier string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Identifier, e.RetryAfter)
}

// CircuitBreakerOpenError means an upstream dependency is marked unhealthy.
type CircuitBreakerOpenError struct {
	Dependency string
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Dependency)
}

// AIServiceError means an LLM provider misbehaved: empty, blocked, or malformed.
type AIServiceError struct {
	Provider string
	Reason   string
}

func (e *AIServiceError) Error() string {
	return fmt.Sprintf("ai service error from %s: %s", e.Provider, e.Reason)
}

// ExternalServiceError wraps e-commerce or embedding API failures.
type ExternalServiceError struct {
	Service     string
	StatusCode  int
	IsRetryable bool
	Err         error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service error from %s (status %d): %v", e.Service, e.StatusCode, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// InfrastructureError wraps Redis/DB failures.
type InfrastructureError struct {
	Component string
	Err       error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure error in %s: %v", e.Component, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// DuplicateEventError signals that an event the caller tried to record has
// already been seen. The Redis-backed dedup keys (webhook replay, task
// dedup) short-circuit before this ever gets constructed and return 200
// directly; this type is for the narrower case of a message insert losing a
// race against the unique external_message_id index, which the webhook
// handler maps to 409 rather than retrying the transaction.
type DuplicateEventError struct {
	Reason string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("duplicate event: %s", e.Reason)
}
