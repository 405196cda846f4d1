// Package testutil provides testing utilities for enflux.
//
// This package is intended for internal testing only and should not be imported
// by external packages.
//
// # Mock Upstream Server
//
// MockUpstream provides a mock data-source API for testing:
//
//	server := testutil.NewMockUpstream(t)
//	server.On("/v1/solar", func(w http.ResponseWriter, r *http.Request) {
//	    testutil.ReplyData(w, map[string]any{"irradiance": 5.2})
//	})
//	// Use server.BaseURL() as the source endpoint
//
// # Request Capture
//
// All requests are automatically captured and can be inspected:
//
//	cap := server.LastCapture()
//	cap.AssertMethod(t, "GET")
//	cap.AssertHeader(t, "Authorization", "Bearer test-key")
//
// # Fake Sleeper
//
// FakeSleeper records sleep calls without actually sleeping:
//
//	sleeper := &testutil.FakeSleeper{}
//	// Pass to the failover manager via WithSleeper
//	assert.Equal(t, 2*time.Second, sleeper.LastCall())
//
// # Fixtures
//
// Common test data is available:
//
//	testutil.TestAPIKey                       // Credential used by fixtures
//	testutil.TestSource("world-bank", 1)      // Active source config
//	testutil.TestRequest("solar_irradiance")  // Minimal valid request
package testutil
