package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prilive-com/enflux/internal/validate"
)

// Strategy selects how candidates are executed for a logical request.
// Only StrategyFailover is implemented; other values are reserved and
// rejected at validation time.
type Strategy string

const (
	StrategyFailover Strategy = "failover"
)

// Request is a logical data request, independent of any particular source.
type Request struct {
	// ID correlates log lines and failover events. Assigned by the manager
	// when empty.
	ID string `json:"id,omitempty"`

	// DataType is the logical key matched against Metadata.DataTypes,
	// e.g. "electricity-access" or "solar-irradiance".
	DataType string `json:"dataType"`

	// Parameters are passed through to the upstream client.
	Parameters map[string]string `json:"parameters,omitempty"`

	// Strategy defaults to StrategyFailover.
	Strategy Strategy `json:"strategy,omitempty"`

	// Sources, when set, overrides candidate resolution with an explicit
	// ordered list of source ids.
	Sources []string `json:"sources,omitempty"`

	// MinQuality filters candidates by their overall quality score.
	MinQuality float64 `json:"quality,omitempty"`

	// Budget bounds the entire failover walk. Zero means the manager's
	// global timeout applies.
	Budget time.Duration `json:"budget,omitempty"`
}

// Validate fails fast on malformed requests, before any source is contacted.
func (r *Request) Validate() error {
	if err := validate.DataType(r.DataType); err != nil {
		return asValidationError("dataType", err)
	}
	if r.Strategy != "" && r.Strategy != StrategyFailover {
		return NewValidationErrorf("strategy", "unsupported strategy %q (only %q)", r.Strategy, StrategyFailover)
	}
	if err := validate.UnitInterval("quality", r.MinQuality); err != nil {
		return asValidationError("quality", err)
	}
	if r.Budget < 0 {
		return NewValidationError("budget", "cannot be negative")
	}
	for _, id := range r.Sources {
		if err := validate.SourceID(id); err != nil {
			return asValidationError("sources", err)
		}
	}
	return nil
}

// Result is the payload returned by a successful fetch.
type Result struct {
	SourceID    string          `json:"sourceId"`
	DataType    string          `json:"dataType"`
	Data        json.RawMessage `json:"data"`
	Format      string          `json:"format,omitempty"`
	RetrievedAt time.Time       `json:"retrievedAt"`
	Latency     time.Duration   `json:"latency"`
}

// Fetcher is the single capability the resilience core requires from an
// upstream client: try to fetch the requested data from one source.
// Implementations must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, cfg *Config, req *Request) (*Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, cfg *Config, req *Request) (*Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, cfg *Config, req *Request) (*Result, error) {
	return f(ctx, cfg, req)
}

// Prober is implemented by fetchers that can probe a source's health-check
// endpoint independently of live traffic.
type Prober interface {
	Probe(ctx context.Context, cfg *Config) error
}
