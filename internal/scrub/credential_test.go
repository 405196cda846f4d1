package scrub_test

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/enflux/internal/scrub"
	"github.com/prilive-com/enflux/source"
)

func TestCredentialFromError_NilError(t *testing.T) {
	result := scrub.CredentialFromError(nil, source.Credential("abc123"))
	assert.Nil(t, result)
}

func TestCredentialFromError_EmptyCredential(t *testing.T) {
	original := errors.New("some error")
	result := scrub.CredentialFromError(original, source.Credential(""))
	assert.Equal(t, original, result)
}

func TestCredentialFromError_NoCredentialInMessage(t *testing.T) {
	original := errors.New("connection refused")
	result := scrub.CredentialFromError(original, source.Credential("abc123"))
	assert.Equal(t, original, result)
}

func TestCredentialFromError_ScrubsCredential(t *testing.T) {
	cred := source.Credential("sk-live-0123456789")
	original := fmt.Errorf("Get https://api.example.org/v2/data?api_key=sk-live-0123456789: dial tcp: no such host")
	result := scrub.CredentialFromError(original, cred)

	require.NotEqual(t, original, result)
	assert.Contains(t, result.Error(), "[REDACTED]")
	assert.NotContains(t, result.Error(), "sk-live-0123456789")
}

func TestCredentialFromError_PreservesErrorChain(t *testing.T) {
	cred := source.Credential("topsecret")
	netErr := &net.OpError{Op: "dial", Err: errors.New("refused")}
	wrapped := fmt.Errorf("call with key topsecret failed: %w", netErr)

	result := scrub.CredentialFromError(wrapped, cred)

	var opErr *net.OpError
	assert.True(t, errors.As(result, &opErr), "errors.As should reach the net.OpError")
	assert.NotContains(t, result.Error(), "topsecret")
}
