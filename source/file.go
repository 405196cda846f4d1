package source

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk shape of a source registry. Durations are
// strings in Go syntax ("30s", "5m") and converted on load.
type registryFile struct {
	Sources []registryEntry `yaml:"sources"`
}

type registryEntry struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Type       Type       `yaml:"type"`
	Priority   int        `yaml:"priority"`
	BaseURL    string     `yaml:"base_url"`
	Credential string     `yaml:"credential"`
	RateBudget RateBudget `yaml:"rate_budget"`
	Timeout    string     `yaml:"timeout"`
	Retry      struct {
		MaxAttempts  int             `yaml:"max_attempts"`
		Strategy     BackoffStrategy `yaml:"strategy"`
		InitialDelay string          `yaml:"initial_delay"`
		MaxDelay     string          `yaml:"max_delay"`
		Jitter       bool            `yaml:"jitter"`
	} `yaml:"retry"`
	Health struct {
		Endpoint string `yaml:"endpoint"`
		Interval string `yaml:"interval"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"health"`
	Compliance Compliance `yaml:"compliance"`
	Metadata   Metadata   `yaml:"metadata"`
	Active     *bool      `yaml:"active"`
}

// LoadFile reads a YAML source registry and returns validated, normalized
// configs in file order.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses YAML registry bytes. Each entry is validated; the
// first invalid entry aborts the whole load so a typo cannot silently drop
// a source.
func ParseRegistry(data []byte) ([]Config, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	configs := make([]Config, 0, len(file.Sources))
	for i, e := range file.Sources {
		cfg, err := e.toConfig()
		if err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, e.ID, err)
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, e.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (e registryEntry) toConfig() (Config, error) {
	cfg := Config{
		ID:         e.ID,
		Name:       e.Name,
		Type:       e.Type,
		Priority:   e.Priority,
		BaseURL:    e.BaseURL,
		Credential: Credential(e.Credential),
		RateBudget: e.RateBudget,
		Compliance: e.Compliance,
		Metadata:   e.Metadata,
		Active:     true,
	}
	if e.Active != nil {
		cfg.Active = *e.Active
	}

	var err error
	if cfg.Timeout, err = parseDuration("timeout", e.Timeout, 30*time.Second); err != nil {
		return Config{}, err
	}

	cfg.Retry.MaxAttempts = e.Retry.MaxAttempts
	cfg.Retry.Strategy = e.Retry.Strategy
	cfg.Retry.Jitter = e.Retry.Jitter
	if cfg.Retry.InitialDelay, err = parseDuration("retry.initial_delay", e.Retry.InitialDelay, 0); err != nil {
		return Config{}, err
	}
	if cfg.Retry.MaxDelay, err = parseDuration("retry.max_delay", e.Retry.MaxDelay, 0); err != nil {
		return Config{}, err
	}

	cfg.Health.Endpoint = e.Health.Endpoint
	if cfg.Health.Interval, err = parseDuration("health.interval", e.Health.Interval, 0); err != nil {
		return Config{}, err
	}
	if cfg.Health.Timeout, err = parseDuration("health.timeout", e.Health.Timeout, 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: cannot be negative", field)
	}
	return d, nil
}
