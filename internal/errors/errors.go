// Package errors provides the error taxonomy for the Messari collector.
// Every failure that can abort a run is reported as a ClassifiedError so the
// CLI can pick an exit code and the client can decide whether a retry policy
// applies to it.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/johnayoung/go-messari-collector/internal/config"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeRequest       ErrorType = "request"       // Network or non-2xx HTTP failure
	ErrorTypeParse         ErrorType = "parse"         // Malformed or schema-mismatched response
	ErrorTypeArgument      ErrorType = "argument"      // Invalid or missing caller input
	ErrorTypeConfiguration ErrorType = "configuration" // Invalid configuration
	ErrorTypeUnknown       ErrorType = "unknown"       // Unclassified errors
)

// ClassifiedError represents an error with metadata for handling decisions
type ClassifiedError struct {
	Err        error     `json:"error"`
	Type       ErrorType `json:"type"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"status_code,omitempty"`
	Component  string    `json:"component"`
	Operation  string    `json:"operation"`
	Timestamp  time.Time `json:"timestamp"`
	Attempts   int       `json:"attempts"`
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Component == "" {
		return fmt.Sprintf("%s error: %s: %v", ce.Type, ce.Operation, ce.Err)
	}
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is reports a match when target is a ClassifiedError of the same type.
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return false
}

// Sentinels usable with errors.Is.
var (
	ErrRequest       = &ClassifiedError{Type: ErrorTypeRequest}
	ErrParse         = &ClassifiedError{Type: ErrorTypeParse}
	ErrArgument      = &ClassifiedError{Type: ErrorTypeArgument}
	ErrConfiguration = &ClassifiedError{Type: ErrorTypeConfiguration}
)

// NewRequestError classifies a transport failure (statusCode 0) or a non-2xx
// response. Transport failures, 5xx and 429 are retryable unless the context
// was cancelled.
func NewRequestError(component, operation string, statusCode int, err error) *ClassifiedError {
	retryable := statusCode == 0 || statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		retryable = false
	}

	return &ClassifiedError{
		Err:        err,
		Type:       ErrorTypeRequest,
		Retryable:  retryable,
		StatusCode: statusCode,
		Component:  component,
		Operation:  operation,
		Timestamp:  time.Now(),
	}
}

// NewParseError classifies a response body that could not be decoded.
func NewParseError(component, operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeParse,
		Component: component,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// NewArgumentError reports invalid caller input for the named field.
func NewArgumentError(field, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Err:       fmt.Errorf(format, args...),
		Type:      ErrorTypeArgument,
		Operation: field,
		Timestamp: time.Now(),
	}
}

// NewConfigurationError reports an unusable configuration.
func NewConfigurationError(operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeConfiguration,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// Retry runs fn under policy. A policy with MaxAttempts <= 1 calls fn exactly
// once. Only retryable ClassifiedErrors are retried; everything else is
// returned after the first failure.
func Retry(ctx context.Context, policy config.RetryPolicyConfig, logger *slog.Logger, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		var ce *ClassifiedError
		if errors.As(err, &ce) {
			ce.Attempts = attempts
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if policy.MaxAttempts <= 1 {
		err := operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	strategy := backoff.WithContext(createBackoffStrategy(policy), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("request failed, retrying",
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"wait", wait,
			"error", err)
	}

	return backoff.RetryNotify(operation, strategy, notify)
}

// createBackoffStrategy creates a backoff strategy based on configuration
func createBackoffStrategy(policy config.RetryPolicyConfig) backoff.BackOff {
	initialDelay, _ := time.ParseDuration(policy.InitialDelay)
	maxDelay, _ := time.ParseDuration(policy.MaxDelay)

	var strategy backoff.BackOff

	switch policy.BackoffStrategy {
	case "fixed":
		strategy = backoff.NewConstantBackOff(initialDelay)
	case "linear":
		strategy = &LinearBackoff{
			interval: initialDelay,
			max:      maxDelay,
		}
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = initialDelay
		exponential.MaxInterval = maxDelay
		exponential.MaxElapsedTime = 0 // rely on context and attempt count
		if !policy.Jitter {
			exponential.RandomizationFactor = 0
		}
		strategy = exponential
	}

	return backoff.WithMaxRetries(strategy, uint64(policy.MaxAttempts-1))
}

// LinearBackoff implements a simple linear backoff strategy
type LinearBackoff struct {
	interval time.Duration
	max      time.Duration
	current  time.Duration
}

// NextBackOff returns the next backoff interval
func (lb *LinearBackoff) NextBackOff() time.Duration {
	lb.current += lb.interval
	if lb.max > 0 && lb.current > lb.max {
		lb.current = lb.max
	}
	return lb.current
}

// Reset resets the backoff to its initial state
func (lb *LinearBackoff) Reset() {
	lb.current = 0
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetErrorType extracts the error type from a classified error
func GetErrorType(err error) ErrorType {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeUnknown
}

// GetStatusCode returns the HTTP status carried by a request error, or 0.
func GetStatusCode(err error) int {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
