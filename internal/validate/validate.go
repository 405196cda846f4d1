// Package validate provides small field validators used by the source
// configuration and request types.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Error represents a validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation: %s - %s", e.Field, e.Message)
}

// New creates a new validation error.
func New(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// Newf creates a new validation error with formatted message.
func Newf(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Source ids are lowercase slugs, optionally namespaced with '/':
// "world-bank", "esmap/mtf".
var sourceIDRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*(/[a-z0-9]+(-[a-z0-9]+)*)*$`)

// SourceID validates a source identifier.
func SourceID(id string) error {
	if id == "" {
		return New("source_id", "cannot be empty")
	}
	if len(id) > 128 {
		return New("source_id", "exceeds maximum length of 128")
	}
	if !sourceIDRegex.MatchString(id) {
		return Newf("source_id", "invalid format %q, expected lowercase slug like world-bank or esmap/mtf", id)
	}
	return nil
}

// Data types are lowercase tokens separated by '_' or '-':
// "solar_irradiance", "electricity-access".
var dataTypeRegex = regexp.MustCompile(`^[a-z0-9]+([_-][a-z0-9]+)*$`)

// DataType validates a data type name.
func DataType(dt string) error {
	if dt == "" {
		return New("data_type", "cannot be empty")
	}
	if !dataTypeRegex.MatchString(dt) {
		return Newf("data_type", "invalid format %q, expected a lowercase slug like solar_irradiance", dt)
	}
	return nil
}

// URL validates a URL string.
func URL(url string) error {
	if url == "" {
		return New("url", "cannot be empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return New("url", "must start with http:// or https://")
	}
	return nil
}

// Positive validates that a value is positive.
func Positive(field string, value int) error {
	if value <= 0 {
		return Newf(field, "must be positive, got %d", value)
	}
	return nil
}

// NonNegative validates that a value is non-negative.
func NonNegative(field string, value int) error {
	if value < 0 {
		return Newf(field, "cannot be negative, got %d", value)
	}
	return nil
}

// InRange validates that a value is within a range.
func InRange(field string, value, min, max int) error {
	if value < min || value > max {
		return Newf(field, "must be between %d and %d, got %d", min, max, value)
	}
	return nil
}

// UnitInterval validates that a value lies in [0,1].
func UnitInterval(field string, value float64) error {
	if value < 0 || value > 1 {
		return Newf(field, "must be in [0,1], got %g", value)
	}
	return nil
}

// Required validates that a string is not empty.
func Required(field, value string) error {
	if value == "" {
		return Newf(field, "is required")
	}
	return nil
}

// MaxLength validates string length.
func MaxLength(field, value string, max int) error {
	if len(value) > max {
		return Newf(field, "exceeds maximum length of %d", max)
	}
	return nil
}
