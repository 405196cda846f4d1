package enflux_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/enflux"
	"github.com/prilive-com/enflux/httpsource"
	"github.com/prilive-com/enflux/internal/testutil"
	"github.com/prilive-com/enflux/reliability"
	"github.com/prilive-com/enflux/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, cfg enflux.Config, opts ...enflux.Option) *enflux.Manager {
	t.Helper()
	opts = append([]enflux.Option{enflux.WithLogger(discardLogger())}, opts...)
	mgr, err := enflux.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestRegisterSource_Validation(t *testing.T) {
	mgr := newManager(t, enflux.DefaultConfig())

	bad := testutil.TestSource("bad-url", 1)
	bad.BaseURL = ""
	err := mgr.RegisterSource(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrInvalidConfig)

	require.NoError(t, mgr.RegisterSource(testutil.TestSource("world-bank", 1)))
	assert.Len(t, mgr.Sources(), 1)
}

func TestRegisterSource_UndeclaredBudgetKeepsFamilyDefault(t *testing.T) {
	mgr := newManager(t, enflux.DefaultConfig())

	cfg := testutil.TestSource("world-bank", 1)
	cfg.RateBudget = source.RateBudget{}
	require.NoError(t, mgr.RegisterSource(cfg))

	// The built-in world-bank family budget allows 5/s; the conservative
	// fallback would report 1. A source that declared nothing must not
	// overwrite the richer default.
	remaining, err := mgr.RateRemaining(context.Background(), "world-bank")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestRegisterSource_WarnsWhenTimeoutReachesGlobal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := enflux.DefaultConfig()
	mgr := newManager(t, cfg, enflux.WithLogger(logger))

	slow := testutil.TestSource("slow", 1)
	slow.Timeout = cfg.GlobalTimeout + time.Second
	require.NoError(t, mgr.RegisterSource(slow))
	assert.Contains(t, buf.String(), "global timeout",
		"a source timeout at or above the global timeout deserves a warning")

	buf.Reset()
	require.NoError(t, mgr.RegisterSource(testutil.TestSource("fast", 2)))
	assert.NotContains(t, buf.String(), "global timeout")
}

func TestRegisterSource_IdempotentUpsertKeepsHistory(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})
	mgr := newManager(t, enflux.DefaultConfig(), enflux.WithFetcher(fetcher))

	require.NoError(t, mgr.RegisterSource(testutil.TestSource("world-bank", 1)))

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.NoError(t, err)
	require.Equal(t, 1, mgr.ReliabilityReport("world-bank").Sources[0].Metrics.Samples)

	// Re-register with a new priority; reliability history must survive.
	updated := testutil.TestSource("world-bank", 5)
	require.NoError(t, mgr.RegisterSource(updated))

	assert.Len(t, mgr.Sources(), 1)
	assert.Equal(t, 5, mgr.Sources()[0].Priority)
	assert.Equal(t, 1, mgr.ReliabilityReport("world-bank").Sources[0].Metrics.Samples,
		"re-registration must not reset tracked outcomes")
}

func TestExecuteRequest_AssignsRequestID(t *testing.T) {
	var seen string
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		seen = req.ID
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})
	mgr := newManager(t, enflux.DefaultConfig(), enflux.WithFetcher(fetcher))
	require.NoError(t, mgr.RegisterSource(testutil.TestSource("s", 1)))

	req := testutil.TestRequest(testutil.TestDataType)
	req.ID = ""
	_, err := mgr.ExecuteRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID, "request id assigned when absent")
	assert.Equal(t, req.ID, seen)
}

func TestExecuteRequest_RejectsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		started <- struct{}{}
		<-release
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})

	cfg := enflux.DefaultConfig()
	cfg.MaxConcurrentRequests = 1
	mgr := newManager(t, cfg, enflux.WithFetcher(fetcher))
	require.NoError(t, mgr.RegisterSource(testutil.TestSource("s", 1)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
		assert.NoError(t, err)
	}()

	<-started // first request holds the only slot

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrTooManyRequests)

	close(release)
	wg.Wait()
}

func TestExecuteRequest_GlobalTimeoutBoundsWalk(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := enflux.DefaultConfig()
	cfg.GlobalTimeout = 50 * time.Millisecond
	mgr := newManager(t, cfg, enflux.WithFetcher(fetcher))

	slow := testutil.TestSource("slow", 1)
	slow.Timeout = time.Second
	require.NoError(t, mgr.RegisterSource(slow))

	start := time.Now()
	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrAllSourcesExhausted)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestExecuteRequest_RequestBudgetTightensTimeout(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	mgr := newManager(t, enflux.DefaultConfig(), enflux.WithFetcher(fetcher))
	slow := testutil.TestSource("slow", 1)
	slow.Timeout = time.Second
	require.NoError(t, mgr.RegisterSource(slow))

	req := testutil.TestRequest(testutil.TestDataType)
	req.Budget = 50 * time.Millisecond

	start := time.Now()
	_, err := mgr.ExecuteRequest(context.Background(), req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestExecuteRequest_AfterClose(t *testing.T) {
	mgr := newManager(t, enflux.DefaultConfig())
	require.NoError(t, mgr.Close())

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	assert.ErrorIs(t, err, source.ErrManagerClosed)

	err = mgr.RegisterSource(testutil.TestSource("late", 1))
	assert.ErrorIs(t, err, source.ErrManagerClosed)
}

func TestSetActive(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})
	mgr := newManager(t, enflux.DefaultConfig(), enflux.WithFetcher(fetcher))
	require.NoError(t, mgr.RegisterSource(testutil.TestSource("s", 1)))

	require.NoError(t, mgr.SetActive("s", false))
	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	assert.ErrorIs(t, err, source.ErrAllSourcesExhausted, "deactivated source never selected")

	require.NoError(t, mgr.SetActive("s", true))
	_, err = mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	assert.NoError(t, err)

	assert.ErrorIs(t, mgr.SetActive("ghost", true), source.ErrUnknownSource)
}

func TestHealthCheck_SweepsActiveSources(t *testing.T) {
	server := testutil.NewMockUpstream(t)
	server.On("/health", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyData(w, map[string]any{"status": "ok"})
	})
	server.On("/broken-health", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, http.StatusServiceUnavailable, "down")
	})

	mgr := newManager(t, enflux.DefaultConfig(),
		enflux.WithFetcher(httpsource.New(httpsource.WithLogger(discardLogger()))))

	good := testutil.TestSource("good", 1)
	good.BaseURL = server.BaseURL()
	good.Health.Endpoint = server.BaseURL() + "/health"
	require.NoError(t, mgr.RegisterSource(good))

	bad := testutil.TestSource("bad", 2)
	bad.BaseURL = server.BaseURL()
	bad.Health.Endpoint = server.BaseURL() + "/broken-health"
	require.NoError(t, mgr.RegisterSource(bad))

	dormant := testutil.TestSource("dormant", 3)
	dormant.Active = false
	require.NoError(t, mgr.RegisterSource(dormant))

	health, err := mgr.HealthCheck(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, health.Probed, "inactive sources are not probed")
	assert.Equal(t, 1, health.Healthy)
	assert.Equal(t, reliability.StatusDegraded, health.Status)
	assert.False(t, health.OK())

	byID := make(map[string]enflux.ProbeResult)
	for _, r := range health.Results {
		byID[r.SourceID] = r
	}
	assert.True(t, byID["good"].Healthy)
	assert.False(t, byID["bad"].Healthy)
	assert.NotEmpty(t, byID["bad"].Error)
}

func TestMaintenance(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})

	cfg := enflux.DefaultConfig()
	cfg.HistoryRetention = 0 // prune everything recorded so far
	mgr := newManager(t, cfg, enflux.WithFetcher(fetcher))
	require.NoError(t, mgr.RegisterSource(testutil.TestSource("s", 1)))

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.NoError(t, err)
	require.NotEmpty(t, mgr.FailoverEvents(10))

	report, err := mgr.Maintenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PrunedEvents)
	assert.Equal(t, 1, report.AuditedSources)
	assert.Empty(t, mgr.FailoverEvents(10))

	// The audit stamp clears the compliance issue in the snapshot.
	assert.Equal(t, 0, mgr.Status().ComplianceIssues)
}

func TestStatus_Snapshot(t *testing.T) {
	fetcher := source.FetcherFunc(func(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
		return &source.Result{Data: json.RawMessage(`{}`)}, nil
	})
	mgr := newManager(t, enflux.DefaultConfig(), enflux.WithFetcher(fetcher))

	require.NoError(t, mgr.RegisterSource(testutil.TestSource("a", 1)))
	inactive := testutil.TestSource("b", 2)
	inactive.Active = false
	require.NoError(t, mgr.RegisterSource(inactive))

	_, err := mgr.ExecuteRequest(context.Background(), testutil.TestRequest(testutil.TestDataType))
	require.NoError(t, err)

	st := mgr.Status()
	assert.Equal(t, 2, st.Sources)
	assert.Equal(t, 1, st.ActiveSources)
	assert.Equal(t, 1, st.HealthySources)
	assert.Equal(t, 0, st.BreakersOpen)
	assert.Equal(t, 2, st.ComplianceIssues, "never-audited sources are flagged")
	assert.Equal(t, 1, st.Failover.Successes)
	assert.False(t, st.GeneratedAt.IsZero())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := enflux.DefaultConfig()
	cfg.MaxConcurrentRequests = 0
	_, err := enflux.New(cfg, enflux.WithLogger(discardLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrInvalidConfig)
}
