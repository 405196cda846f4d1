package enflux

import (
	"time"

	"github.com/prilive-com/enflux/failover"
	"github.com/prilive-com/enflux/reliability"
)

// Status is the aggregate snapshot served by the status API.
type Status struct {
	Sources          int                `json:"sources"`
	ActiveSources    int                `json:"activeSources"`
	HealthySources   int                `json:"healthySources"`
	DegradedSources  int                `json:"degradedSources"`
	UnhealthySources int                `json:"unhealthySources"`
	BreakersOpen     int                `json:"breakersOpen"`
	ComplianceIssues int                `json:"complianceIssues"`
	MeanHealthScore  float64            `json:"meanHealthScore"`
	Failover         failover.Stats     `json:"failover"`
	Uptime           time.Duration      `json:"uptime"`
	GeneratedAt      time.Time          `json:"generatedAt"`
}

// ProbeResult is the outcome of one health-check probe.
type ProbeResult struct {
	SourceID string        `json:"sourceId"`
	Healthy  bool          `json:"healthy"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// HealthStatus aggregates one active health-check sweep.
type HealthStatus struct {
	Status    reliability.Status `json:"status"`
	Probed    int                `json:"probed"`
	Healthy   int                `json:"healthy"`
	Results   []ProbeResult      `json:"results"`
	CheckedAt time.Time          `json:"checkedAt"`
}

// OK reports whether the sweep found the system healthy. A sweep with
// nothing to probe is vacuously healthy.
func (h *HealthStatus) OK() bool {
	return h.Status == reliability.StatusHealthy
}

// MaintenanceReport summarizes one housekeeping pass.
type MaintenanceReport struct {
	PrunedEvents     int           `json:"prunedEvents"`
	SweptRateEntries int           `json:"sweptRateEntries"`
	AuditedSources   int           `json:"auditedSources"`
	MeanHealthScore  float64       `json:"meanHealthScore"`
	RanAt            time.Time     `json:"ranAt"`
	Duration         time.Duration `json:"duration"`
}
