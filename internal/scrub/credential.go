// Package scrub provides security helpers for removing sensitive data from errors.
package scrub

import (
	"strings"

	"github.com/prilive-com/enflux/source"
)

// CredentialFromError removes a source credential from error messages.
// Go's http.Client.Do() includes the request URL in error strings, and some
// upstream APIs carry the key in the query string. Preserves the error chain
// for errors.Is/As via Unwrap().
func CredentialFromError(err error, cred source.Credential) error {
	if err == nil {
		return nil
	}
	val := cred.Value()
	if val == "" {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, val) {
		return &scrubbedError{
			msg: strings.ReplaceAll(msg, val, "[REDACTED]"),
			err: err,
		}
	}
	return err
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
