package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prilive-com/enflux/breaker"
	"github.com/prilive-com/enflux/ratelimit"
	"github.com/prilive-com/enflux/reliability"
	"github.com/prilive-com/enflux/source"
)

// SourceProvider resolves source ids to configs. Implemented by the
// top-level manager's registry.
type SourceProvider interface {
	Source(id string) (source.Config, bool)
	Sources() []source.Config
}

// Manager walks failover candidates for logical requests.
type Manager struct {
	provider SourceProvider
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	tracker  *reliability.Tracker
	fetcher  source.Fetcher
	history  *History
	logger   *slog.Logger
	sleeper  Sleeper
	now      func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSleeper sets a custom sleeper for retry timing (testing).
func WithSleeper(s Sleeper) Option {
	return func(m *Manager) { m.sleeper = s }
}

// WithHistory sets a custom event history.
func WithHistory(h *History) Option {
	return func(m *Manager) { m.history = h }
}

// WithNow overrides the clock (testing).
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a failover manager wired to the shared resilience components.
func New(
	provider SourceProvider,
	limiter *ratelimit.Limiter,
	breakers *breaker.Registry,
	tracker *reliability.Tracker,
	fetcher source.Fetcher,
	opts ...Option,
) *Manager {
	m := &Manager{
		provider: provider,
		limiter:  limiter,
		breakers: breakers,
		tracker:  tracker,
		fetcher:  fetcher,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.sleeper == nil {
		m.sleeper = realSleeper{}
	}
	if m.history == nil {
		m.history = NewHistory(DefaultHistorySize)
	}
	return m
}

// History exposes the event log for the status API.
func (m *Manager) History() *History { return m.history }

// Execute tries candidates in order until one succeeds. ctx carries the
// global budget for the whole walk; each attempt additionally respects the
// candidate's own (smaller) timeout.
func (m *Manager) Execute(ctx context.Context, req *source.Request) (*source.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	candidates, preAttempts := m.resolve(req)
	attempts := preAttempts

	for _, cfg := range candidates {
		if err := ctx.Err(); err != nil {
			// Global budget spent; candidates not yet tried are reported,
			// and any outstanding call was cancelled via ctx.
			attempts = append(attempts, source.Attempt{
				SourceID: cfg.ID,
				Reason:   source.ReasonTimeout,
				Detail:   "global budget exhausted",
			})
			continue
		}

		if skip := m.checkCandidate(ctx, req, cfg); skip != nil {
			attempts = append(attempts, *skip)
			continue
		}

		result, attempt := m.try(ctx, cfg, req)
		if result != nil {
			return result, nil
		}
		attempts = append(attempts, attempt)
	}

	exhausted := &source.ExhaustedError{
		RequestID: req.ID,
		DataType:  req.DataType,
		Attempts:  attempts,
	}
	m.logger.Warn("all sources exhausted",
		"request_id", req.ID,
		"data_type", req.DataType,
		"candidates", len(attempts),
	)
	return nil, exhausted
}

// checkCandidate applies the pre-call gates. Returns nil when the candidate
// may be called, or the skip attempt otherwise.
func (m *Manager) checkCandidate(ctx context.Context, req *source.Request, cfg source.Config) *source.Attempt {
	if !cfg.Active {
		m.record(req, cfg.ID, source.ReasonInactive, "source deactivated", 0)
		return &source.Attempt{SourceID: cfg.ID, Reason: source.ReasonInactive, Detail: "source deactivated"}
	}

	if !m.breakers.Allow(cfg.ID) {
		m.record(req, cfg.ID, source.ReasonCircuitOpen, "breaker open", 0)
		return &source.Attempt{SourceID: cfg.ID, Reason: source.ReasonCircuitOpen, Detail: "breaker open"}
	}

	ok, err := m.limiter.Allow(ctx, cfg.ID)
	if err != nil {
		m.record(req, cfg.ID, source.ReasonError, "rate-limit store: "+err.Error(), 0)
		return &source.Attempt{SourceID: cfg.ID, Reason: source.ReasonError, Detail: "rate-limit store: " + err.Error()}
	}
	if !ok {
		m.record(req, cfg.ID, source.ReasonRateLimited, "budget exhausted", 0)
		return &source.Attempt{SourceID: cfg.ID, Reason: source.ReasonRateLimited, Detail: "budget exhausted"}
	}
	return nil
}

// try runs the candidate's retry loop. Exactly one of result/attempt is
// meaningful: a non-nil result means success.
func (m *Manager) try(ctx context.Context, cfg source.Config, req *source.Request) (*source.Result, source.Attempt) {
	policy := cfg.Retry
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, latency, err := m.callOnce(ctx, cfg, req)
		if err == nil {
			m.tracker.Record(cfg.ID, reliability.Outcome{Success: true, Latency: latency})
			m.record(req, cfg.ID, source.ReasonSuccess, "", latency)
			return result, source.Attempt{}
		}
		lastErr = err

		if errors.Is(err, source.ErrCircuitOpen) {
			// Breaker tripped mid-walk (or probe slot taken): stop
			// retrying this candidate without recording a fetch outcome.
			m.record(req, cfg.ID, source.ReasonCircuitOpen, "breaker open", 0)
			return nil, source.Attempt{SourceID: cfg.ID, Reason: source.ReasonCircuitOpen, Detail: "breaker open"}
		}

		m.tracker.Record(cfg.ID, reliability.Outcome{Success: false, Latency: latency})

		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		if err := m.sleeper.Sleep(ctx, backoffDelay(policy, attempt)); err != nil {
			lastErr = err
			break
		}
	}

	reason := source.ReasonError
	if errors.Is(lastErr, source.ErrSourceTimeout) || errors.Is(lastErr, context.DeadlineExceeded) {
		reason = source.ReasonTimeout
	}
	detail := lastErr.Error()
	m.record(req, cfg.ID, reason, detail, 0)
	m.logger.Warn("source failed, trying next candidate",
		"request_id", req.ID,
		"source", cfg.ID,
		"reason", string(reason),
		"error", lastErr,
	)
	return nil, source.Attempt{SourceID: cfg.ID, Reason: reason, Detail: detail}
}

// callOnce performs a single upstream call under the source timeout, routed
// through the breaker, and charges the rate budget for the call made.
func (m *Manager) callOnce(ctx context.Context, cfg source.Config, req *source.Request) (*source.Result, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := m.now()
	result, err := m.breakers.Execute(cfg.ID, func() (*source.Result, error) {
		res, fetchErr := m.fetcher.Fetch(callCtx, &cfg, req)
		if fetchErr != nil {
			if errors.Is(fetchErr, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, source.NewTimeoutError(cfg.ID, fmt.Sprintf("no response within %s", cfg.Timeout))
			}
			return nil, fetchErr
		}
		return res, nil
	})
	latency := m.now().Sub(start)

	if !errors.Is(err, source.ErrCircuitOpen) {
		// The call went out (or failed in flight); it counts against the
		// source's budget either way.
		if recErr := m.limiter.Record(ctx, cfg.ID); recErr != nil {
			m.logger.Warn("rate-limit record failed", "source", cfg.ID, "error", recErr)
		}
	}
	if err != nil {
		return nil, latency, err
	}

	result.SourceID = cfg.ID
	result.DataType = req.DataType
	if result.RetrievedAt.IsZero() {
		result.RetrievedAt = m.now()
	}
	result.Latency = latency
	return result, latency, nil
}

// resolve builds the ordered candidate list. Explicit request sources win;
// otherwise all active sources advertising the data type are ordered by
// (priority ascending, health score descending). Unknown explicit ids are
// reported as failed attempts rather than silently dropped.
func (m *Manager) resolve(req *source.Request) ([]source.Config, []source.Attempt) {
	if len(req.Sources) > 0 {
		var configs []source.Config
		var missing []source.Attempt
		for _, id := range req.Sources {
			cfg, ok := m.provider.Source(id)
			if !ok {
				missing = append(missing, source.Attempt{
					SourceID: id,
					Reason:   source.ReasonError,
					Detail:   "unknown source",
				})
				continue
			}
			configs = append(configs, cfg)
		}
		return configs, missing
	}

	var configs []source.Config
	for _, cfg := range m.provider.Sources() {
		if !cfg.Active || !cfg.Metadata.Provides(req.DataType) {
			continue
		}
		if req.MinQuality > 0 && cfg.Metadata.Quality.Overall < req.MinQuality {
			continue
		}
		configs = append(configs, cfg)
	}

	sort.SliceStable(configs, func(i, j int) bool {
		if configs[i].Priority != configs[j].Priority {
			return configs[i].Priority < configs[j].Priority
		}
		return m.tracker.HealthScore(configs[i].ID) > m.tracker.HealthScore(configs[j].ID)
	})
	return configs, nil
}

func (m *Manager) record(req *source.Request, sourceID string, reason source.Reason, detail string, latency time.Duration) {
	m.history.Append(Event{
		Time:      m.now(),
		RequestID: req.ID,
		DataType:  req.DataType,
		SourceID:  sourceID,
		Reason:    reason,
		Detail:    detail,
		Latency:   latency,
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var srcErr *source.SourceError
	if errors.As(err, &srcErr) {
		return srcErr.IsRetryable()
	}
	// Unclassified errors (network hiccups, transport) get one more try.
	return true
}
