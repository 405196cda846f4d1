package testutil

import (
	"time"

	"github.com/prilive-com/enflux/source"
)

// Test constants for consistent test data.
const (
	// TestAPIKey is the credential used by source fixtures.
	TestAPIKey = "test-api-key-0123456789"

	// TestDataType is the data type fixture sources advertise.
	TestDataType = "solar_irradiance"
)

// TestSource returns an active API source config with sensible test defaults.
// The base URL points nowhere; override it with a MockUpstream BaseURL when
// the test actually calls out.
func TestSource(id string, priority int) source.Config {
	return source.Config{
		ID:         id,
		Name:       "Test source " + id,
		Type:       source.TypeAPI,
		Priority:   priority,
		BaseURL:    "http://127.0.0.1:0",
		Credential: source.Credential(TestAPIKey),
		RateBudget: source.RateBudget{PerSecond: 100, PerHour: 1000, PerDay: 10000},
		Timeout:    5 * time.Second,
		Retry: source.RetryPolicy{
			MaxAttempts:  1,
			Strategy:     source.BackoffFixed,
			InitialDelay: time.Millisecond,
		},
		Metadata: source.Metadata{
			DataTypes: []string{TestDataType},
			Quality:   source.QualityScore{Overall: 0.9},
		},
		Active: true,
	}
}

// TestRequest returns a minimal valid request for the given data type.
func TestRequest(dataType string) *source.Request {
	return &source.Request{
		ID:       "req-test-1",
		DataType: dataType,
		Strategy: source.StrategyFailover,
	}
}
