package source

import (
	"time"

	"github.com/prilive-com/enflux/internal/validate"
)

// Type classifies an upstream source.
type Type string

const (
	TypeAPI          Type = "api"
	TypeDatabase     Type = "database"
	TypeFile         Type = "file"
	TypeStream       Type = "stream"
	TypeWebhook      Type = "webhook"
	TypeFTP          Type = "ftp"
	TypeEmail        Type = "email"
	TypeRSS          Type = "rss"
	TypeScraping     Type = "scraping"
	TypeGovernment   Type = "government"
	TypeAcademic     Type = "academic"
	TypeCrowdsourced Type = "crowdsourced"
	TypeCommercial   Type = "commercial"
)

// Valid reports whether t is a known source type.
func (t Type) Valid() bool {
	switch t {
	case TypeAPI, TypeDatabase, TypeFile, TypeStream, TypeWebhook, TypeFTP,
		TypeEmail, TypeRSS, TypeScraping, TypeGovernment, TypeAcademic,
		TypeCrowdsourced, TypeCommercial:
		return true
	}
	return false
}

// BackoffStrategy selects how retry delays grow between attempts.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
)

// Valid reports whether s is a known backoff strategy.
func (s BackoffStrategy) Valid() bool {
	switch s {
	case BackoffExponential, BackoffLinear, BackoffFixed:
		return true
	}
	return false
}

// RateBudget is the per-source request budget across the three fixed windows.
type RateBudget struct {
	PerSecond int `yaml:"per_second" json:"perSecond"`
	PerHour   int `yaml:"per_hour" json:"perHour"`
	PerDay    int `yaml:"per_day" json:"perDay"`
}

// DefaultRateBudget is the conservative budget applied to sources that do not
// declare their own limits.
func DefaultRateBudget() RateBudget {
	return RateBudget{PerSecond: 1, PerHour: 100, PerDay: 1000}
}

// RetryPolicy bounds per-source retries inside a single failover attempt.
type RetryPolicy struct {
	MaxAttempts  int             `yaml:"max_attempts" json:"maxAttempts"`
	Strategy     BackoffStrategy `yaml:"strategy" json:"strategy"`
	InitialDelay time.Duration   `yaml:"initial_delay" json:"initialDelay"`
	MaxDelay     time.Duration   `yaml:"max_delay" json:"maxDelay"`
	Jitter       bool            `yaml:"jitter" json:"jitter"`
}

// DefaultRetryPolicy returns the retry policy used when a source declares none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Strategy:     BackoffExponential,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// HealthCheck describes how to probe a source independently of live traffic.
type HealthCheck struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// Compliance records the legal/etiquette constraints attached to a source.
type Compliance struct {
	RespectRobotsTxt    bool      `yaml:"respect_robots_txt" json:"respectRobotsTxt"`
	AttributionRequired bool      `yaml:"attribution_required" json:"attributionRequired"`
	UsageRestrictions   []string  `yaml:"usage_restrictions" json:"usageRestrictions,omitempty"`
	LastAudit           time.Time `yaml:"last_audit" json:"lastAudit"`
}

// QualityScore is the per-dimension quality vector advertised by a source.
// All values are in [0,1].
type QualityScore struct {
	Accuracy     float64 `yaml:"accuracy" json:"accuracy"`
	Completeness float64 `yaml:"completeness" json:"completeness"`
	Timeliness   float64 `yaml:"timeliness" json:"timeliness"`
	Reliability  float64 `yaml:"reliability" json:"reliability"`
	Overall      float64 `yaml:"overall" json:"overall"`
}

// Metadata carries descriptive fields used for candidate matching and reports.
type Metadata struct {
	Description string       `yaml:"description" json:"description,omitempty"`
	Format      string       `yaml:"format" json:"format,omitempty"`
	Coverage    string       `yaml:"coverage" json:"coverage,omitempty"`
	DataTypes   []string     `yaml:"data_types" json:"dataTypes"`
	Quality     QualityScore `yaml:"quality" json:"quality"`
}

// Provides reports whether the source advertises the given data type.
func (m Metadata) Provides(dataType string) bool {
	for _, dt := range m.DataTypes {
		if dt == dataType {
			return true
		}
	}
	return false
}

// Config describes one upstream data source. Immutable once registered,
// except quality and compliance fields refreshed by periodic maintenance.
type Config struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	Type       Type        `yaml:"type" json:"type"`
	Priority   int         `yaml:"priority" json:"priority"` // lower = preferred
	BaseURL    string      `yaml:"base_url" json:"baseUrl"`
	Credential Credential  `yaml:"credential" json:"-"`
	RateBudget RateBudget  `yaml:"rate_budget" json:"rateBudget"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	Retry      RetryPolicy `yaml:"retry" json:"retry"`
	Health     HealthCheck `yaml:"health" json:"health"`
	Compliance Compliance  `yaml:"compliance" json:"compliance"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`

	// Active sources participate in failover. Deactivated sources keep
	// their config and history but are never selected.
	Active bool `yaml:"active" json:"active"`
}

// Validate checks the config at registration time. A failing config is
// rejected immediately with ErrInvalidConfig; nothing is contacted.
func (c *Config) Validate() error {
	if err := validate.SourceID(c.ID); err != nil {
		return asConfigError("id", err)
	}
	if c.Name == "" {
		return newConfigError("name", "cannot be empty")
	}
	if !c.Type.Valid() {
		return newConfigErrorf("type", "unknown source type %q", c.Type)
	}
	if err := validate.NonNegative("priority", c.Priority); err != nil {
		return asConfigError("priority", err)
	}
	if err := validate.URL(c.BaseURL); err != nil {
		return asConfigError("base_url", err)
	}
	if c.Timeout <= 0 {
		return newConfigError("timeout", "must be positive")
	}
	if b := c.RateBudget; b.PerSecond < 0 || b.PerHour < 0 || b.PerDay < 0 {
		return newConfigError("rate_budget", "counts cannot be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return newConfigError("retry.max_attempts", "cannot be negative")
	}
	if c.Retry.Strategy != "" && !c.Retry.Strategy.Valid() {
		return newConfigErrorf("retry.strategy", "unknown backoff strategy %q", c.Retry.Strategy)
	}
	if c.Health.Timeout < 0 || c.Health.Interval < 0 {
		return newConfigError("health", "interval and timeout cannot be negative")
	}
	if len(c.Metadata.DataTypes) == 0 {
		return newConfigError("metadata.data_types", "at least one data type required")
	}
	for _, dt := range c.Metadata.DataTypes {
		if err := validate.DataType(dt); err != nil {
			return asConfigError("metadata.data_types", err)
		}
	}
	if err := validate.UnitInterval("metadata.quality", c.Metadata.Quality.Overall); err != nil {
		return asConfigError("metadata.quality", err)
	}
	return nil
}

// Normalize fills zero-valued optional fields with defaults. Called by the
// registry after Validate. Each rate-budget window defaults independently,
// so declaring only one limit does not pin the other windows at zero.
func (c *Config) Normalize() {
	def := DefaultRateBudget()
	if c.RateBudget.PerSecond == 0 {
		c.RateBudget.PerSecond = def.PerSecond
	}
	if c.RateBudget.PerHour == 0 {
		c.RateBudget.PerHour = def.PerHour
	}
	if c.RateBudget.PerDay == 0 {
		c.RateBudget.PerDay = def.PerDay
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = BackoffExponential
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
}

// Family returns the source-family identifier used for rate-limit defaults:
// the id up to the first '/' ("world-bank/indicators" -> "world-bank").
func (c *Config) Family() string {
	for i := range len(c.ID) {
		if c.ID[i] == '/' {
			return c.ID[:i]
		}
	}
	return c.ID
}
