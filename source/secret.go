package source

import "log/slog"

// Credential wraps an upstream API key to prevent accidental logging.
// Implements fmt.Stringer, fmt.GoStringer, slog.LogValuer, and encoding.TextMarshaler.
type Credential string

// Value returns the actual credential value.
// Only use this when authenticating against the upstream source.
func (c Credential) Value() string { return string(c) }

// String returns a redacted placeholder (fmt.Stringer).
func (c Credential) String() string { return "[REDACTED]" }

// GoString returns redacted for %#v (fmt.GoStringer).
func (c Credential) GoString() string { return `source.Credential("[REDACTED]")` }

// LogValue returns a redacted value for slog (slog.LogValuer).
func (c Credential) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// MarshalText returns redacted bytes (encoding.TextMarshaler).
// Prevents accidental JSON/YAML serialization of the credential.
func (c Credential) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// UnmarshalText reads the raw credential from config files.
func (c *Credential) UnmarshalText(b []byte) error {
	*c = Credential(b)
	return nil
}

// IsEmpty returns true if the credential is empty.
func (c Credential) IsEmpty() bool {
	return c == ""
}
