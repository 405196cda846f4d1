package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/enflux"
	"github.com/prilive-com/enflux/api"
	"github.com/prilive-com/enflux/internal/testutil"
	"github.com/prilive-com/enflux/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// okFetcher answers every fetch with a small JSON payload.
func okFetcher() source.Fetcher {
	return source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return &source.Result{Data: json.RawMessage(`{"value":42}`), Format: "json"}, nil
	})
}

func failFetcher() source.Fetcher {
	return source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return nil, source.NewSourceError(cfg.ID, 400, "bad request")
	})
}

func newServer(t *testing.T, fetcher source.Fetcher, configs ...source.Config) (*httptest.Server, *enflux.Manager) {
	t.Helper()

	mgr, err := enflux.New(enflux.DefaultConfig(),
		enflux.WithLogger(discardLogger()),
		enflux.WithFetcher(fetcher),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	for _, cfg := range configs {
		require.NoError(t, mgr.RegisterSource(cfg))
	}

	handler := api.New(mgr, api.WithLogger(discardLogger()))
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return server, mgr
}

func getJSON(t *testing.T, url string, target any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, target any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newServer(t, okFetcher(), testutil.TestSource("world-bank", 1))

	var status enflux.Status
	code := getJSON(t, server.URL+"/resilience/status", &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, status.Sources)
	assert.Equal(t, 1, status.ActiveSources)
}

func TestRequestEndpoint_Success(t *testing.T) {
	server, _ := newServer(t, okFetcher(), testutil.TestSource("world-bank", 1))

	var result source.Result
	code := postJSON(t, server.URL+"/resilience/request", map[string]any{
		"dataType": testutil.TestDataType,
	}, &result)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "world-bank", result.SourceID)
	assert.JSONEq(t, `{"value":42}`, string(result.Data))
}

func TestRequestEndpoint_ExhaustedDiagnostics(t *testing.T) {
	server, _ := newServer(t, failFetcher(),
		testutil.TestSource("one", 1),
		testutil.TestSource("two", 2),
	)

	var body struct {
		Error    string           `json:"error"`
		Attempts []source.Attempt `json:"attempts"`
	}
	code := postJSON(t, server.URL+"/resilience/request", map[string]any{
		"dataType": testutil.TestDataType,
	}, &body)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "all sources exhausted", body.Error)
	require.Len(t, body.Attempts, 2, "one diagnostic reason per candidate")
	assert.Equal(t, "one", body.Attempts[0].SourceID)
	assert.Equal(t, "two", body.Attempts[1].SourceID)
}

func TestRequestEndpoint_ValidationFailure(t *testing.T) {
	server, _ := newServer(t, okFetcher(), testutil.TestSource("world-bank", 1))

	var body map[string]any
	code := postJSON(t, server.URL+"/resilience/request", map[string]any{
		"dataType": testutil.TestDataType,
		"strategy": "fanout",
	}, &body)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "strategy", body["field"])
}

func TestRequestEndpoint_MalformedBody(t *testing.T) {
	server, _ := newServer(t, okFetcher())

	resp, err := http.Post(server.URL+"/resilience/request", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	upstream := testutil.NewMockUpstream(t)
	upstream.On("/health", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyData(w, map[string]any{"status": "ok"})
	})

	cfg := testutil.TestSource("probed", 1)
	cfg.BaseURL = upstream.BaseURL()
	cfg.Health.Endpoint = upstream.BaseURL() + "/health"

	mgr, err := enflux.New(enflux.DefaultConfig(), enflux.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.RegisterSource(cfg))

	server := httptest.NewServer(api.New(mgr, api.WithLogger(discardLogger())).Router())
	t.Cleanup(server.Close)

	var health enflux.HealthStatus
	code := getJSON(t, server.URL+"/resilience/health", &health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, health.Probed)
	assert.Equal(t, 1, health.Healthy)

	// Break the upstream; the sweep must flip to 503.
	upstream.OnMethod("GET", "/health", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, http.StatusServiceUnavailable, "down")
	})

	code = getJSON(t, server.URL+"/resilience/health", &health)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCircuitBreakersEndpoint(t *testing.T) {
	server, mgr := newServer(t, failFetcher(), testutil.TestSource("unstable", 1))

	// Drive a few failures so the breaker has something to report.
	for range 3 {
		_, _ = mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	}

	var body struct {
		Summary  map[string]int   `json:"summary"`
		Breakers []map[string]any `json:"breakers"`
	}
	code := getJSON(t, server.URL+"/resilience/circuit-breakers", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Breakers, 1)
	assert.Equal(t, "unstable", body.Breakers[0]["sourceId"])
	assert.Equal(t, 1, body.Summary["total"])
}

func TestReliabilityEndpoint(t *testing.T) {
	server, mgr := newServer(t, okFetcher(), testutil.TestSource("steady", 1))

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.NoError(t, err)

	var report map[string]any
	code := getJSON(t, server.URL+"/resilience/reliability?sourceId=steady", &report)
	assert.Equal(t, http.StatusOK, code)
	sources, ok := report["sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)

	code = getJSON(t, server.URL+"/resilience/reliability", &report)
	assert.Equal(t, http.StatusOK, code)
}

func TestFailoverEndpoint(t *testing.T) {
	server, mgr := newServer(t, okFetcher(), testutil.TestSource("steady", 1))

	for range 2 {
		_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
		require.NoError(t, err)
	}

	var body struct {
		Stats  map[string]int   `json:"stats"`
		Events []map[string]any `json:"events"`
	}
	code := getJSON(t, server.URL+"/resilience/failover", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Stats["successes"])
	require.Len(t, body.Events, 2)
	assert.Equal(t, "steady", body.Events[0]["sourceId"])

	code = getJSON(t, server.URL+"/resilience/failover?limit=1", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Events, 1)

	// The cap itself is a valid limit value.
	code = getJSON(t, server.URL+"/resilience/failover?limit=50", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Events, 2)
}

func TestSourcesEndpoints(t *testing.T) {
	server, _ := newServer(t, okFetcher())

	cfg := testutil.TestSource("registered-via-api", 1)
	cfg.Timeout = 5 * time.Second

	var created map[string]any
	code := postJSON(t, server.URL+"/resilience/sources", cfg, &created)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "registered-via-api", created["id"])

	var listed []source.Config
	code = getJSON(t, server.URL+"/resilience/sources", &listed)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, listed, 1)
	assert.Equal(t, "registered-via-api", listed[0].ID)

	// Invalid config comes back as 400 with the offending field.
	bad := testutil.TestSource("bad", 1)
	bad.Metadata.DataTypes = nil
	var errBody map[string]any
	code = postJSON(t, server.URL+"/resilience/sources", bad, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "metadata.data_types", errBody["field"])
}

func TestMaintenanceEndpoint(t *testing.T) {
	server, _ := newServer(t, okFetcher(), testutil.TestSource("steady", 1))

	var report enflux.MaintenanceReport
	code := postJSON(t, server.URL+"/resilience/maintenance", map[string]any{}, &report)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, report.AuditedSources)
}
