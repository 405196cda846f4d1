package enflux

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/prilive-com/enflux/breaker"
	"github.com/prilive-com/enflux/failover"
	"github.com/prilive-com/enflux/httpsource"
	"github.com/prilive-com/enflux/internal/syncutil"
	"github.com/prilive-com/enflux/ratelimit"
	"github.com/prilive-com/enflux/reliability"
	"github.com/prilive-com/enflux/source"
)

// Manager is the resilience façade: a source registry wired to the rate
// limiter, per-source circuit breakers, the reliability tracker, and the
// failover walk. Safe for concurrent use.
type Manager struct {
	config  Config
	logger  *slog.Logger
	fetcher source.Fetcher

	store    ratelimit.Store
	ownStore bool
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	tracker  *reliability.Tracker
	failover *failover.Manager

	global *rate.Limiter
	sem    chan struct{}
	now    func() time.Time

	startedAt time.Time

	mu      sync.RWMutex
	sources map[string]source.Config
	closed  bool
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithFetcher sets the upstream client. Defaults to the HTTP client.
func WithFetcher(f source.Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithStore sets the rate-limit store. The caller keeps ownership; Close
// will not close a store injected here.
func WithStore(s ratelimit.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithNow overrides the clock (testing).
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager from the given configuration.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MaxConcurrentRequests <= 0 {
		return nil, fmt.Errorf("%w: max concurrent requests must be positive", source.ErrInvalidConfig)
	}
	if cfg.GlobalTimeout <= 0 {
		return nil, fmt.Errorf("%w: global timeout must be positive", source.ErrInvalidConfig)
	}

	m := &Manager{
		config:  cfg,
		sources: make(map[string]source.Config),
		sem:     make(chan struct{}, cfg.MaxConcurrentRequests),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.fetcher == nil {
		m.fetcher = httpsource.New(httpsource.WithLogger(m.logger))
	}
	if m.store == nil {
		if cfg.RateLimitStore != "" {
			s, err := ratelimit.NewSQLiteStore(cfg.RateLimitStore)
			if err != nil {
				return nil, fmt.Errorf("enflux: opening rate-limit store: %w", err)
			}
			m.store = s
		} else {
			m.store = ratelimit.NewMemoryStore()
		}
		m.ownStore = true
	}

	m.limiter = ratelimit.New(m.store,
		ratelimit.WithLogger(m.logger),
		ratelimit.WithTTL(cfg.RateLimitTTL),
	)
	m.breakers = breaker.NewRegistry(
		breaker.WithLogger(m.logger),
		breaker.WithSettings(cfg.breakerSettings()),
	)
	m.tracker = reliability.NewTracker(
		reliability.WithLogger(m.logger),
		reliability.WithWindowSize(cfg.ReliabilityWindow),
	)
	m.failover = failover.New(m, m.limiter, m.breakers, m.tracker, m.fetcher,
		failover.WithLogger(m.logger),
		failover.WithHistory(failover.NewHistory(cfg.HistorySize)),
	)

	if cfg.GlobalRPS > 0 {
		m.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst)
	} else {
		m.global = rate.NewLimiter(rate.Inf, 0)
	}

	m.startedAt = m.now()
	return m, nil
}

// RegisterSource validates and upserts a source config. Registration is
// idempotent: re-registering an id updates the config while breaker and
// reliability history for that id survive untouched.
func (m *Manager) RegisterSource(cfg source.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	declaredBudget := cfg.RateBudget != (source.RateBudget{})
	cfg.Normalize()

	if cfg.Timeout >= m.config.GlobalTimeout {
		m.logger.Warn("source timeout is not smaller than the global timeout; the global budget will cut attempts short",
			"source", cfg.ID,
			"timeout", cfg.Timeout,
			"global_timeout", m.config.GlobalTimeout,
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return source.ErrManagerClosed
	}

	_, existed := m.sources[cfg.ID]
	m.sources[cfg.ID] = cfg
	if declaredBudget {
		// Only a declared budget overrides the family default.
		m.limiter.SetBudget(cfg.Family(), cfg.RateBudget)
	}

	if existed {
		m.logger.Info("source updated", "source", cfg.ID)
	} else {
		m.logger.Info("source registered",
			"source", cfg.ID,
			"type", string(cfg.Type),
			"priority", cfg.Priority,
		)
	}
	return nil
}

// SetActive flips a source's participation in failover. The config and all
// history are retained either way; sources are never deleted.
func (m *Manager) SetActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return source.ErrManagerClosed
	}

	cfg, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", source.ErrUnknownSource, id)
	}
	if cfg.Active == active {
		return nil
	}
	cfg.Active = active
	m.sources[id] = cfg
	m.logger.Info("source activation changed", "source", id, "active", active)
	return nil
}

// Source returns the config for one id. Implements failover.SourceProvider.
func (m *Manager) Source(id string) (source.Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.sources[id]
	return cfg, ok
}

// Sources returns all registered configs ordered by (priority, id).
// Implements failover.SourceProvider.
func (m *Manager) Sources() []source.Config {
	m.mu.RLock()
	configs := make([]source.Config, 0, len(m.sources))
	for _, cfg := range m.sources {
		configs = append(configs, cfg)
	}
	m.mu.RUnlock()

	sort.Slice(configs, func(i, j int) bool {
		if configs[i].Priority != configs[j].Priority {
			return configs[i].Priority < configs[j].Priority
		}
		return configs[i].ID < configs[j].ID
	})
	return configs
}

// ExecuteRequest runs one logical request through the failover walk, under
// the global timeout and the concurrency cap. Requests beyond the cap are
// rejected with ErrTooManyRequests rather than queued without bound.
func (m *Manager) ExecuteRequest(ctx context.Context, req *source.Request) (*source.Result, error) {
	if m.isClosed() {
		return nil, source.ErrManagerClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Strategy == "" {
		req.Strategy = source.StrategyFailover
	}

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	default:
		return nil, fmt.Errorf("%w: %d requests in flight", source.ErrTooManyRequests, cap(m.sem))
	}

	budget := m.config.GlobalTimeout
	if req.Budget > 0 && req.Budget < budget {
		budget = req.Budget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := m.global.Wait(ctx); err != nil {
		return nil, &source.ExhaustedError{
			RequestID: req.ID,
			DataType:  req.DataType,
			Attempts: []source.Attempt{{
				Reason: source.ReasonTimeout,
				Detail: "global budget spent waiting for the request-rate limiter",
			}},
		}
	}

	start := m.now()
	result, err := m.failover.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	m.logger.Info("request served",
		"request_id", req.ID,
		"data_type", req.DataType,
		"source", result.SourceID,
		"elapsed", m.now().Sub(start),
	)
	return result, nil
}

// HealthCheck probes every active source's health endpoint, independent of
// live traffic. Probes run concurrently, bounded by the configured sweep
// concurrency.
func (m *Manager) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if m.isClosed() {
		return nil, source.ErrManagerClosed
	}

	prober, ok := m.fetcher.(source.Prober)
	if !ok {
		// Upstream client cannot probe; report what reliability tracking
		// knows instead of pretending to have swept.
		return m.passiveHealth(), nil
	}

	var configs []source.Config
	for _, cfg := range m.Sources() {
		if cfg.Active {
			configs = append(configs, cfg)
		}
	}

	limit := m.config.HealthCheckConcurrency
	if limit <= 0 {
		limit = 1
	}
	slots := make(chan struct{}, limit)
	results := make([]ProbeResult, len(configs))

	var wg sync.WaitGroup
	for i, cfg := range configs {
		syncutil.Go(&wg, func() {
			slots <- struct{}{}
			defer func() { <-slots }()

			probeCtx, cancel := context.WithTimeout(ctx, m.config.HealthCheckTimeout)
			defer cancel()

			start := m.now()
			err := prober.Probe(probeCtx, &cfg)
			results[i] = ProbeResult{
				SourceID: cfg.ID,
				Healthy:  err == nil,
				Latency:  m.now().Sub(start),
			}
			if err != nil {
				results[i].Error = err.Error()
			}
		})
	}
	wg.Wait()

	status := &HealthStatus{
		Status:    reliability.StatusHealthy,
		Probed:    len(results),
		Results:   results,
		CheckedAt: m.now(),
	}
	for _, r := range results {
		if r.Healthy {
			status.Healthy++
		}
	}
	switch {
	case status.Probed == 0 || status.Healthy == status.Probed:
		status.Status = reliability.StatusHealthy
	case status.Healthy == 0:
		status.Status = reliability.StatusUnhealthy
	default:
		status.Status = reliability.StatusDegraded
	}

	m.logger.Info("health check sweep",
		"probed", status.Probed,
		"healthy", status.Healthy,
		"status", string(status.Status),
	)
	return status, nil
}

// passiveHealth derives a sweep-shaped answer from tracked reliability when
// the fetcher cannot probe.
func (m *Manager) passiveHealth() *HealthStatus {
	report := m.tracker.Report(m.sourceIDs()...)
	status := &HealthStatus{
		Probed:    0,
		CheckedAt: m.now(),
	}
	switch {
	case report.Unhealthy > 0 && report.Healthy == 0:
		status.Status = reliability.StatusUnhealthy
	case report.Unhealthy > 0 || report.Degraded > 0:
		status.Status = reliability.StatusDegraded
	default:
		status.Status = reliability.StatusHealthy
	}
	return status
}

// Maintenance runs one housekeeping pass: prune the failover log, sweep
// expired rate-limit entries, refresh compliance audit stamps, and
// recompute the aggregate health score.
func (m *Manager) Maintenance(ctx context.Context) (*MaintenanceReport, error) {
	if m.isClosed() {
		return nil, source.ErrManagerClosed
	}
	start := m.now()

	pruned := m.failover.History().Prune(start.Add(-m.config.HistoryRetention))

	swept, err := m.limiter.Sweep(ctx)
	if err != nil {
		m.logger.Warn("rate-limit sweep failed", "error", err)
	}

	audited := 0
	m.mu.Lock()
	for id, cfg := range m.sources {
		if !cfg.Active {
			continue
		}
		cfg.Compliance.LastAudit = start
		m.sources[id] = cfg
		audited++
	}
	m.mu.Unlock()

	report := m.tracker.Report(m.sourceIDs()...)

	m.logger.Info("maintenance pass",
		"pruned_events", pruned,
		"swept_entries", swept,
		"audited_sources", audited,
	)
	return &MaintenanceReport{
		PrunedEvents:     pruned,
		SweptRateEntries: swept,
		AuditedSources:   audited,
		MeanHealthScore:  report.MeanHealthScore,
		RanAt:            start,
		Duration:         m.now().Sub(start),
	}, nil
}

// Status returns the aggregate snapshot for the status API.
func (m *Manager) Status() Status {
	now := m.now()
	report := m.tracker.Report(m.sourceIDs()...)
	summary := m.breakers.Summary()

	st := Status{
		HealthySources:   report.Healthy,
		DegradedSources:  report.Degraded,
		UnhealthySources: report.Unhealthy,
		BreakersOpen:     summary.Open,
		MeanHealthScore:  report.MeanHealthScore,
		Failover:         m.failover.History().Stats(),
		Uptime:           now.Sub(m.startedAt),
		GeneratedAt:      now,
	}

	m.mu.RLock()
	st.Sources = len(m.sources)
	for _, cfg := range m.sources {
		if cfg.Active {
			st.ActiveSources++
		}
		if cfg.Compliance.LastAudit.IsZero() ||
			now.Sub(cfg.Compliance.LastAudit) > m.config.ComplianceMaxAge {
			st.ComplianceIssues++
		}
	}
	m.mu.RUnlock()
	return st
}

// BreakerSummary returns per-state breaker counts.
func (m *Manager) BreakerSummary() breaker.Summary { return m.breakers.Summary() }

// BreakerMetrics returns per-source breaker metrics.
func (m *Manager) BreakerMetrics() []breaker.Metrics { return m.breakers.AllMetrics() }

// ReliabilityReport returns the reliability report, scoped to the given
// source ids or covering every registered source when none are given.
func (m *Manager) ReliabilityReport(ids ...string) reliability.Report {
	if len(ids) == 0 {
		ids = m.sourceIDs()
	}
	return m.tracker.Report(ids...)
}

// FailoverStats returns lifetime failover counters.
func (m *Manager) FailoverStats() failover.Stats { return m.failover.History().Stats() }

// FailoverEvents returns up to n recent failover events, most recent last.
func (m *Manager) FailoverEvents(n int) []failover.Event { return m.failover.History().Recent(n) }

// RateRemaining returns the tightest remaining budget for a source.
func (m *Manager) RateRemaining(ctx context.Context, id string) (int, error) {
	return m.limiter.Remaining(ctx, id)
}

// Close stops the manager. In-flight requests finish; new ones are
// rejected with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ownStore {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("enflux: closing rate-limit store: %w", err)
		}
	}
	m.logger.Info("manager closed")
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) sourceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ failover.SourceProvider = (*Manager)(nil)
