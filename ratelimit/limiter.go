package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prilive-com/enflux/source"
)

// DefaultTTL keeps entries a little over a day so the daily window survives
// restarts, while abandoned sources self-expire.
const DefaultTTL = 25 * time.Hour

// DefaultBudgets returns the built-in budgets for known source families.
// Anything else gets source.DefaultRateBudget().
func DefaultBudgets() map[string]source.RateBudget {
	return map[string]source.RateBudget{
		"world-bank":  {PerSecond: 5, PerHour: 500, PerDay: 5000},
		"nasa-power":  {PerSecond: 2, PerHour: 300, PerDay: 2000},
		"esmap":       {PerSecond: 1, PerHour: 100, PerDay: 1000},
		"mtf":         {PerSecond: 1, PerHour: 100, PerDay: 1000},
		"rise":        {PerSecond: 1, PerHour: 100, PerDay: 1000},
		"sdg7":        {PerSecond: 1, PerHour: 100, PerDay: 1000},
		"web-scraper": {PerSecond: 1, PerHour: 60, PerDay: 500},
	}
}

// Limiter answers "may I call this source now?" and records actual calls.
type Limiter struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration

	mu            sync.RWMutex
	budgets       map[string]source.RateBudget // keyed by source family
	defaultBudget source.RateBudget
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithNow overrides the clock (testing).
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithTTL overrides the store entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(l *Limiter) { l.ttl = ttl }
}

// WithDefaultBudget overrides the fallback budget for unknown families.
func WithDefaultBudget(b source.RateBudget) Option {
	return func(l *Limiter) { l.defaultBudget = b }
}

// New creates a Limiter over the given store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:         store,
		now:           time.Now,
		ttl:           DefaultTTL,
		budgets:       DefaultBudgets(),
		defaultBudget: source.DefaultRateBudget(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// SetBudget installs or replaces the budget for a source family.
// Called by the manager when a source config declares its own limits.
func (l *Limiter) SetBudget(family string, b source.RateBudget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[family] = b
}

// Budget returns the effective budget for a source id.
func (l *Limiter) Budget(sourceID string) source.RateBudget {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.budgets[family(sourceID)]; ok {
		return b
	}
	return l.defaultBudget
}

// Allow reports whether the source has budget left in all three windows.
// It does not consume budget; call Record after the upstream call is made.
// A window whose limit is non-positive is unlimited.
func (l *Limiter) Allow(ctx context.Context, sourceID string) (bool, error) {
	e, err := l.store.Get(ctx, Key(sourceID))
	if err != nil {
		return false, err
	}
	if e == nil {
		return true, nil
	}

	e.normalize(l.now())
	b := l.Budget(sourceID)
	return underLimit(e.RequestCount, b.PerSecond) &&
		underLimit(e.HourlyCount, b.PerHour) &&
		underLimit(e.DailyCount, b.PerDay), nil
}

func underLimit(used, limit int) bool {
	return limit <= 0 || used < limit
}

// Record counts one call against the source. Call only after Allow returned
// true and the call was actually made. With a shared store, Allow and Record
// are not atomic together; occasional double-counting under races is accepted.
func (l *Limiter) Record(ctx context.Context, sourceID string) error {
	now := l.now()
	key := Key(sourceID)

	e, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if e == nil {
		e = newEntry(now)
	} else {
		e.normalize(now)
	}
	e.record(now)

	return l.store.Put(ctx, key, e, l.ttl)
}

// Remaining returns the tightest remaining budget across the three windows.
func (l *Limiter) Remaining(ctx context.Context, sourceID string) (int, error) {
	b := l.Budget(sourceID)

	e, err := l.store.Get(ctx, Key(sourceID))
	if err != nil {
		return 0, err
	}
	if e == nil {
		return minBudget(b), nil
	}

	e.normalize(l.now())
	remaining := b.PerSecond - e.RequestCount
	if r := b.PerHour - e.HourlyCount; r < remaining {
		remaining = r
	}
	if r := b.PerDay - e.DailyCount; r < remaining {
		remaining = r
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetAt returns the time at which every exhausted window has reset.
// Returns the current time when the source has budget now.
func (l *Limiter) ResetAt(ctx context.Context, sourceID string) (time.Time, error) {
	now := l.now()

	e, err := l.store.Get(ctx, Key(sourceID))
	if err != nil {
		return time.Time{}, err
	}
	if e == nil {
		return now, nil
	}

	e.normalize(now)
	b := l.Budget(sourceID)

	reset := now
	if e.RequestCount >= b.PerSecond {
		reset = laterOf(reset, e.LastRequest.Add(time.Second))
	}
	if e.HourlyCount >= b.PerHour {
		reset = laterOf(reset, e.LastHourReset.Add(time.Hour))
	}
	if e.DailyCount >= b.PerDay {
		reset = laterOf(reset, e.LastDayReset.Add(24*time.Hour))
	}
	return reset, nil
}

// Sweep removes expired store entries. Called from periodic maintenance.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx)
}

func family(sourceID string) string {
	if i := strings.IndexByte(sourceID, '/'); i >= 0 {
		return sourceID[:i]
	}
	return sourceID
}

func minBudget(b source.RateBudget) int {
	m := b.PerSecond
	if b.PerHour < m {
		m = b.PerHour
	}
	if b.PerDay < m {
		m = b.PerDay
	}
	return m
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
