package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prilive-com/enflux/internal/validate"
)

// Sentinel errors - use with errors.Is()
var (
	// Per-source, non-fatal to the overall request
	ErrRateLimited = errors.New("enflux: rate limit exceeded")
	ErrCircuitOpen = errors.New("enflux: circuit breaker open")

	// Per-source failures that trigger the next candidate
	ErrSourceTimeout = errors.New("enflux: source timed out")
	ErrSourceFailure = errors.New("enflux: source error")

	// Terminal for the request
	ErrAllSourcesExhausted = errors.New("enflux: all sources exhausted")
	ErrTooManyRequests     = errors.New("enflux: concurrency limit reached")

	// Registration / request shape
	ErrInvalidConfig   = errors.New("enflux: invalid source configuration")
	ErrInvalidRequest  = errors.New("enflux: invalid request")
	ErrUnknownSource   = errors.New("enflux: unknown source")
	ErrSourceInactive  = errors.New("enflux: source deactivated")
	ErrManagerClosed   = errors.New("enflux: manager closed")
	ErrResponseTooLarge = errors.New("enflux: response too large")
)

// Reason explains why the failover walk moved past (or stopped at) a source.
type Reason string

const (
	ReasonRateLimited Reason = "rate-limited"
	ReasonCircuitOpen Reason = "circuit-open"
	ReasonTimeout     Reason = "timeout"
	ReasonError       Reason = "error"
	ReasonInactive    Reason = "inactive"
	ReasonSuccess     Reason = "success"
)

// SourceError represents a failed call against one upstream source.
// Use errors.As() to extract details, errors.Is() to match sentinels.
type SourceError struct {
	SourceID   string
	StatusCode int           // HTTP status when applicable, 0 otherwise
	Message    string
	RetryAfter time.Duration // upstream-advertised wait, 0 when unknown
	cause      error         // underlying sentinel for errors.Is()
}

func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("enflux: source %s failed: %s (status=%d)", e.SourceID, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("enflux: source %s failed: %s", e.SourceID, e.Message)
}

// Unwrap returns the underlying sentinel error for errors.Is() support.
func (e *SourceError) Unwrap() error { return e.cause }

// IsRetryable returns true if the failure is temporary and the same source
// may succeed on a bounded retry.
func (e *SourceError) IsRetryable() bool {
	if errors.Is(e.cause, ErrSourceTimeout) {
		return true
	}
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode <= 504)
}

// NewSourceError creates a SourceError with the ErrSourceFailure sentinel.
func NewSourceError(sourceID string, statusCode int, message string) *SourceError {
	return &SourceError{
		SourceID:   sourceID,
		StatusCode: statusCode,
		Message:    message,
		cause:      ErrSourceFailure,
	}
}

// NewTimeoutError creates a SourceError carrying the ErrSourceTimeout sentinel.
func NewTimeoutError(sourceID string, message string) *SourceError {
	return &SourceError{
		SourceID: sourceID,
		Message:  message,
		cause:    ErrSourceTimeout,
	}
}

// Attempt records the fate of one candidate during a failover walk.
type Attempt struct {
	SourceID string `json:"sourceId"`
	Reason   Reason `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// ExhaustedError is the terminal failure for a request: every candidate was
// skipped or failed. It carries one Attempt per candidate for diagnostics.
type ExhaustedError struct {
	RequestID string
	DataType  string
	Attempts  []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "enflux: all sources exhausted for %q (%d candidates)", e.DataType, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %s", a.SourceID, a.Reason)
	}
	return b.String()
}

// Unwrap supports errors.Is(err, ErrAllSourcesExhausted).
func (e *ExhaustedError) Unwrap() error { return ErrAllSourcesExhausted }

// ValidationError represents a malformed request field. The request fails
// fast; no source is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("enflux: validation: %s - %s", e.Field, e.Message)
}

// Unwrap supports errors.Is(err, ErrInvalidRequest).
func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorf creates a ValidationError with a formatted message.
func NewValidationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigError represents an invalid DataSourceConfig field at registration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("enflux: config: %s - %s", e.Field, e.Message)
}

// Unwrap supports errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func newConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func newConfigErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// asConfigError rehomes a field-validator error under the caller's field name.
func asConfigError(field string, err error) *ConfigError {
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		return newConfigError(field, vErr.Message)
	}
	return newConfigError(field, err.Error())
}

// asValidationError rehomes a field-validator error as a request
// ValidationError under the caller's field name.
func asValidationError(field string, err error) *ValidationError {
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		return NewValidationError(field, vErr.Message)
	}
	return NewValidationError(field, err.Error())
}
