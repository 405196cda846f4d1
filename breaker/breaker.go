package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/prilive-com/enflux/source"
)

// Settings configures the per-source breakers. All sources share one
// Settings; per-source tuning happens through the failure pattern itself.
type Settings struct {
	// MaxRequests is the number of probe requests allowed in half-open
	// state. Kept at 1: a single probe decides reopen-or-close.
	MaxRequests uint32

	// Interval is the cyclic period over which closed-state counts reset.
	Interval time.Duration

	// Timeout is the open-state cooldown before the next probe.
	Timeout time.Duration

	// FailureThreshold trips the breaker on this many consecutive failures.
	FailureThreshold uint32

	// FailureRatio trips the breaker once the failure rate reaches this
	// value with at least MinRequests observed.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultSettings returns production-ready defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
	}
}

// Metrics is a read-only view of one source's breaker.
type Metrics struct {
	SourceID            string    `json:"sourceId"`
	State               string    `json:"state"`
	Requests            uint32    `json:"requests"`
	TotalFailures       uint32    `json:"totalFailures"`
	ConsecutiveFailures uint32    `json:"consecutiveFailures"`
	FailureRate         float64   `json:"failureRate"`
	TripCount           int       `json:"tripCount"`
	LastTrip            time.Time `json:"lastTrip,omitzero"`
}

// Summary counts sources per breaker state.
type Summary struct {
	Closed   int `json:"closed"`
	HalfOpen int `json:"halfOpen"`
	Open     int `json:"open"`
	Total    int `json:"total"`
}

type entry struct {
	cb *gobreaker.CircuitBreaker[*source.Result]

	mu        sync.Mutex
	tripCount int
	lastTrip  time.Time
}

// Registry holds the per-source breakers.
type Registry struct {
	settings Settings
	logger   *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*entry
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithSettings overrides the breaker settings.
func WithSettings(s Settings) Option {
	return func(r *Registry) { r.settings = s }
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		settings: DefaultSettings(),
		breakers: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Execute runs fn under the source's breaker. When the breaker is Open (or
// a half-open probe is already in flight) fn is not called and the error
// matches source.ErrCircuitOpen.
func (r *Registry) Execute(sourceID string, fn func() (*source.Result, error)) (*source.Result, error) {
	e := r.getOrCreate(sourceID)
	res, err := e.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", source.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return res, nil
}

// Allow reports whether the source's breaker would let a call through.
// Half-open counts as allowed: the single probe is how recovery happens.
func (r *Registry) Allow(sourceID string) bool {
	return r.State(sourceID) != gobreaker.StateOpen
}

// State returns the breaker state for a source. Sources never seen are Closed.
func (r *Registry) State(sourceID string) gobreaker.State {
	r.mu.RLock()
	e, ok := r.breakers[sourceID]
	r.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return e.cb.State()
}

// AllStates returns the state of every source seen so far.
func (r *Registry) AllStates() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for id, e := range r.breakers {
		states[id] = e.cb.State().String()
	}
	return states
}

// Metrics returns the breaker metrics for one source.
func (r *Registry) Metrics(sourceID string) Metrics {
	r.mu.RLock()
	e, ok := r.breakers[sourceID]
	r.mu.RUnlock()
	if !ok {
		return Metrics{SourceID: sourceID, State: gobreaker.StateClosed.String()}
	}
	return e.metrics(sourceID)
}

// AllMetrics returns metrics for every source seen so far.
func (r *Registry) AllMetrics() []Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metrics, 0, len(r.breakers))
	for id, e := range r.breakers {
		out = append(out, e.metrics(id))
	}
	return out
}

// Summary counts sources in each state.
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Summary
	for _, e := range r.breakers {
		switch e.cb.State() {
		case gobreaker.StateClosed:
			s.Closed++
		case gobreaker.StateHalfOpen:
			s.HalfOpen++
		case gobreaker.StateOpen:
			s.Open++
		}
		s.Total++
	}
	return s
}

func (e *entry) metrics(sourceID string) Metrics {
	counts := e.cb.Counts()

	var rate float64
	if counts.Requests > 0 {
		rate = float64(counts.TotalFailures) / float64(counts.Requests)
	}

	e.mu.Lock()
	trips, lastTrip := e.tripCount, e.lastTrip
	e.mu.Unlock()

	return Metrics{
		SourceID:            sourceID,
		State:               e.cb.State().String(),
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		FailureRate:         rate,
		TripCount:           trips,
		LastTrip:            lastTrip,
	}
}

func (r *Registry) getOrCreate(sourceID string) *entry {
	r.mu.RLock()
	e, ok := r.breakers[sourceID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if e, ok = r.breakers[sourceID]; ok {
		return e
	}

	e = &entry{}
	cfg := r.settings
	e.cb = gobreaker.NewCircuitBreaker[*source.Result](gobreaker.Settings{
		Name:        sourceID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequests {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatio
			}
			return false
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				e.mu.Lock()
				e.tripCount++
				e.lastTrip = time.Now()
				e.mu.Unlock()
			}
			r.logger.Info("circuit breaker state changed",
				"source", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	r.breakers[sourceID] = e
	return e
}

// isBreakerSuccess decides what counts as a breaker failure.
// Caller-side cancellation is not service degradation; everything else that
// errored (timeouts, 5xx, network, parse failures) counts against the source.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
