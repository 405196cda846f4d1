package enflux

import (
	"os"
	"strconv"
	"time"

	"github.com/prilive-com/enflux/breaker"
	"github.com/prilive-com/enflux/failover"
	"github.com/prilive-com/enflux/ratelimit"
	"github.com/prilive-com/enflux/reliability"
)

// Config holds manager configuration.
type Config struct {
	// Request execution
	GlobalTimeout         time.Duration // bounds the entire failover walk
	MaxConcurrentRequests int           // beyond this, requests are rejected
	GlobalRPS             float64       // request-per-second smoothing across all sources
	GlobalBurst           int

	// Circuit breaker
	BreakerTimeout          time.Duration // open-state cooldown
	BreakerInterval         time.Duration
	BreakerFailureThreshold uint32
	BreakerFailureRatio     float64
	BreakerMinRequests      uint32

	// Rate limiting
	RateLimitTTL   time.Duration
	RateLimitStore string // path to a shared SQLite store; empty = in-memory

	// Reliability tracking
	ReliabilityWindow int

	// Failover history
	HistorySize      int
	HistoryRetention time.Duration // Maintenance prunes events older than this

	// Health checks
	HealthCheckTimeout     time.Duration
	HealthCheckConcurrency int

	// Compliance audits older than this count as issues in status reports.
	ComplianceMaxAge time.Duration

	// MinConfidence is the floor used by downstream fusion of multi-source
	// results. Carried in config; the resilience core itself does not fuse.
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GlobalTimeout:           30 * time.Second,
		MaxConcurrentRequests:   32,
		GlobalRPS:               50,
		GlobalBurst:             20,
		BreakerTimeout:          30 * time.Second,
		BreakerInterval:         60 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerFailureRatio:     0.5,
		BreakerMinRequests:      10,
		RateLimitTTL:            ratelimit.DefaultTTL,
		ReliabilityWindow:       reliability.DefaultWindowSize,
		HistorySize:             failover.DefaultHistorySize,
		HistoryRetention:        24 * time.Hour,
		HealthCheckTimeout:      10 * time.Second,
		HealthCheckConcurrency:  8,
		ComplianceMaxAge:        90 * 24 * time.Hour,
		MinConfidence:           0.7,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if d, err := time.ParseDuration(getEnv("ENFLUX_GLOBAL_TIMEOUT", "30s")); err == nil {
		cfg.GlobalTimeout = d
	}

	if i, err := strconv.Atoi(getEnv("ENFLUX_MAX_CONCURRENT_REQUESTS", "32")); err == nil {
		cfg.MaxConcurrentRequests = i
	}

	if f, err := strconv.ParseFloat(getEnv("ENFLUX_GLOBAL_RPS", "50"), 64); err == nil {
		cfg.GlobalRPS = f
	}

	if i, err := strconv.Atoi(getEnv("ENFLUX_GLOBAL_BURST", "20")); err == nil {
		cfg.GlobalBurst = i
	}

	if d, err := time.ParseDuration(getEnv("ENFLUX_BREAKER_TIMEOUT", "30s")); err == nil {
		cfg.BreakerTimeout = d
	}

	if d, err := time.ParseDuration(getEnv("ENFLUX_BREAKER_INTERVAL", "60s")); err == nil {
		cfg.BreakerInterval = d
	}

	if i, err := strconv.ParseUint(getEnv("ENFLUX_BREAKER_FAILURE_THRESHOLD", "5"), 10, 32); err == nil {
		cfg.BreakerFailureThreshold = uint32(i)
	}

	if f, err := strconv.ParseFloat(getEnv("ENFLUX_BREAKER_FAILURE_RATIO", "0.5"), 64); err == nil {
		cfg.BreakerFailureRatio = f
	}

	if i, err := strconv.ParseUint(getEnv("ENFLUX_BREAKER_MIN_REQUESTS", "10"), 10, 32); err == nil {
		cfg.BreakerMinRequests = uint32(i)
	}

	if d, err := time.ParseDuration(getEnv("ENFLUX_RATE_LIMIT_TTL", "25h")); err == nil {
		cfg.RateLimitTTL = d
	}

	cfg.RateLimitStore = getEnv("ENFLUX_RATE_LIMIT_STORE", "")

	if i, err := strconv.Atoi(getEnv("ENFLUX_RELIABILITY_WINDOW", "200")); err == nil {
		cfg.ReliabilityWindow = i
	}

	if i, err := strconv.Atoi(getEnv("ENFLUX_HISTORY_SIZE", "200")); err == nil {
		cfg.HistorySize = i
	}

	if d, err := time.ParseDuration(getEnv("ENFLUX_HISTORY_RETENTION", "24h")); err == nil {
		cfg.HistoryRetention = d
	}

	if d, err := time.ParseDuration(getEnv("ENFLUX_HEALTH_CHECK_TIMEOUT", "10s")); err == nil {
		cfg.HealthCheckTimeout = d
	}

	if i, err := strconv.Atoi(getEnv("ENFLUX_HEALTH_CHECK_CONCURRENCY", "8")); err == nil {
		cfg.HealthCheckConcurrency = i
	}

	if f, err := strconv.ParseFloat(getEnv("ENFLUX_MIN_CONFIDENCE", "0.7"), 64); err == nil {
		cfg.MinConfidence = f
	}

	return &cfg, nil
}

// breakerSettings translates manager config into breaker registry settings.
// MaxRequests stays at 1: a single probe decides half-open.
func (c Config) breakerSettings() breaker.Settings {
	return breaker.Settings{
		MaxRequests:      1,
		Interval:         c.BreakerInterval,
		Timeout:          c.BreakerTimeout,
		FailureThreshold: c.BreakerFailureThreshold,
		FailureRatio:     c.BreakerFailureRatio,
		MinRequests:      c.BreakerMinRequests,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
