package reliability

import (
	"sort"
	"time"
)

// Status classifies a health score for operators.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// StatusFor maps a score to a status. Sources without samples are unknown.
func StatusFor(m Metrics) Status {
	if m.Samples == 0 {
		return StatusUnknown
	}
	switch {
	case m.HealthScore >= 0.8:
		return StatusHealthy
	case m.HealthScore >= 0.5:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// SourceReport is the per-source section of a report.
type SourceReport struct {
	Metrics
	Status Status `json:"status"`
}

// Report is a read-only projection of the tracker, per-source or global.
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Sources     []SourceReport `json:"sources"`

	// Aggregate fields (global reports)
	MeanHealthScore float64 `json:"meanHealthScore"`
	Healthy         int     `json:"healthy"`
	Degraded        int     `json:"degraded"`
	Unhealthy       int     `json:"unhealthy"`
	Unknown         int     `json:"unknown"`
}

// Report generates a report. With source ids given, only those sources are
// included; otherwise every known source is, sorted by ascending health.
func (t *Tracker) Report(sourceIDs ...string) Report {
	r := Report{GeneratedAt: t.now()}

	var all map[string]Metrics
	if len(sourceIDs) > 0 {
		all = make(map[string]Metrics, len(sourceIDs))
		for _, id := range sourceIDs {
			all[id] = t.Metrics(id)
		}
	} else {
		all = t.AllMetrics()
	}

	var scoreSum float64
	for _, m := range all {
		sr := SourceReport{Metrics: m, Status: StatusFor(m)}
		r.Sources = append(r.Sources, sr)
		scoreSum += m.HealthScore

		switch sr.Status {
		case StatusHealthy:
			r.Healthy++
		case StatusDegraded:
			r.Degraded++
		case StatusUnhealthy:
			r.Unhealthy++
		default:
			r.Unknown++
		}
	}

	if len(r.Sources) > 0 {
		r.MeanHealthScore = scoreSum / float64(len(r.Sources))
	}
	sort.Slice(r.Sources, func(i, j int) bool {
		if r.Sources[i].HealthScore != r.Sources[j].HealthScore {
			return r.Sources[i].HealthScore < r.Sources[j].HealthScore
		}
		return r.Sources[i].SourceID < r.Sources[j].SourceID
	})
	return r
}
