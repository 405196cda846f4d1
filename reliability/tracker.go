package reliability

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize bounds the per-source outcome window.
const DefaultWindowSize = 200

// Outcome is one completed call against a source.
type Outcome struct {
	Success bool
	Latency time.Duration
	// Quality is an optional per-response quality flag in [0,1].
	// Set HasQuality when supplying it.
	Quality    float64
	HasQuality bool
	At         time.Time
}

// Metrics is the lazy reduction of one source's window.
type Metrics struct {
	SourceID    string        `json:"sourceId"`
	Samples     int           `json:"samples"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	SuccessRate float64       `json:"successRate"`
	MeanLatency time.Duration `json:"meanLatency"`
	P50Latency  time.Duration `json:"p50Latency"`
	P95Latency  time.Duration `json:"p95Latency"`
	MeanQuality float64       `json:"meanQuality,omitempty"`
	HealthScore float64       `json:"healthScore"`
	LastOutcome time.Time     `json:"lastOutcome,omitzero"`
}

type window struct {
	outcomes []Outcome
	next     int
	filled   bool
}

func (w *window) add(o Outcome) {
	if len(w.outcomes) < cap(w.outcomes) {
		w.outcomes = append(w.outcomes, o)
		return
	}
	w.outcomes[w.next] = o
	w.next = (w.next + 1) % len(w.outcomes)
	w.filled = true
}

// Tracker maintains per-source windows. Safe for concurrent use.
type Tracker struct {
	logger     *slog.Logger
	windowSize int
	now        func() time.Time

	mu      sync.RWMutex
	windows map[string]*window
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithWindowSize bounds the number of retained outcomes per source.
func WithWindowSize(n int) Option {
	return func(t *Tracker) { t.windowSize = n }
}

// WithNow overrides the clock (testing).
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windowSize: DefaultWindowSize,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Record appends an outcome to the source's window.
func (t *Tracker) Record(sourceID string, o Outcome) {
	if o.At.IsZero() {
		o.At = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[sourceID]
	if !ok {
		w = &window{outcomes: make([]Outcome, 0, t.windowSize)}
		t.windows[sourceID] = w
	}
	w.add(o)
}

// Metrics reduces one source's window. Sources never recorded report zero
// samples and a neutral health score.
func (t *Tracker) Metrics(sourceID string) Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reduce(sourceID)
}

// AllMetrics reduces every known source.
func (t *Tracker) AllMetrics() map[string]Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Metrics, len(t.windows))
	for id := range t.windows {
		out[id] = t.reduce(id)
	}
	return out
}

// HealthScore returns the composite score for a source, 0.5 when unknown.
func (t *Tracker) HealthScore(sourceID string) float64 {
	return t.Metrics(sourceID).HealthScore
}

// reduce assumes t.mu is held at least for reading.
func (t *Tracker) reduce(sourceID string) Metrics {
	m := Metrics{SourceID: sourceID, HealthScore: neutralScore}

	w, ok := t.windows[sourceID]
	if !ok || len(w.outcomes) == 0 {
		return m
	}

	var (
		latencies    []time.Duration
		totalLatency time.Duration
		qualitySum   float64
		qualityCount int
	)
	for _, o := range w.outcomes {
		m.Samples++
		if o.Success {
			m.Successes++
		} else {
			m.Failures++
		}
		if o.Latency > 0 {
			latencies = append(latencies, o.Latency)
			totalLatency += o.Latency
		}
		if o.HasQuality {
			qualitySum += o.Quality
			qualityCount++
		}
		if o.At.After(m.LastOutcome) {
			m.LastOutcome = o.At
		}
	}

	m.SuccessRate = float64(m.Successes) / float64(m.Samples)
	if len(latencies) > 0 {
		m.MeanLatency = totalLatency / time.Duration(len(latencies))
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		m.P50Latency = percentile(latencies, 0.50)
		m.P95Latency = percentile(latencies, 0.95)
	}
	if qualityCount > 0 {
		m.MeanQuality = qualitySum / float64(qualityCount)
	}

	m.HealthScore = healthScore(m.SuccessRate, m.P95Latency, m.MeanQuality, qualityCount > 0)
	return m
}

// percentile expects sorted input and uses the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p * float64(len(sorted)-1))
	return sorted[rank]
}

const (
	neutralScore = 0.5

	// Latency scoring: full marks at or under fastLatency, zero at or
	// above slowLatency, linear in between.
	fastLatency = 500 * time.Millisecond
	slowLatency = 10 * time.Second
)

// healthScore blends success rate, latency, and quality. Without quality
// samples, its weight shifts onto the success rate.
func healthScore(successRate float64, p95 time.Duration, quality float64, hasQuality bool) float64 {
	latencyScore := 1.0
	if p95 > fastLatency {
		latencyScore = 1 - float64(p95-fastLatency)/float64(slowLatency-fastLatency)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	if hasQuality {
		return 0.6*successRate + 0.25*latencyScore + 0.15*quality
	}
	return 0.75*successRate + 0.25*latencyScore
}
