package source_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prilive-com/enflux/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
sources:
  - id: world-bank
    name: World Bank Open Data
    type: government
    priority: 1
    base_url: https://api.worldbank.org/v2
    timeout: 15s
    rate_budget:
      per_second: 5
      per_hour: 500
      per_day: 5000
    retry:
      max_attempts: 3
      strategy: exponential
      initial_delay: 500ms
      max_delay: 10s
      jitter: true
    health:
      endpoint: /health
      interval: 5m
      timeout: 5s
    metadata:
      description: Global development indicators
      data_types: [electricity-access, energy-intensity]
      quality:
        overall: 0.95
  - id: nasa-power
    name: NASA POWER
    type: academic
    priority: 2
    base_url: https://power.larc.nasa.gov/api
    metadata:
      data_types: [solar-irradiance]
    active: false
`

func TestParseRegistry(t *testing.T) {
	configs, err := source.ParseRegistry([]byte(sampleRegistry))
	require.NoError(t, err)
	require.Len(t, configs, 2)

	wb := configs[0]
	assert.Equal(t, "world-bank", wb.ID)
	assert.Equal(t, source.TypeGovernment, wb.Type)
	assert.Equal(t, 15*time.Second, wb.Timeout)
	assert.Equal(t, 500*time.Millisecond, wb.Retry.InitialDelay)
	assert.Equal(t, 5*time.Minute, wb.Health.Interval)
	assert.Equal(t, source.RateBudget{PerSecond: 5, PerHour: 500, PerDay: 5000}, wb.RateBudget)
	assert.True(t, wb.Active)
	assert.True(t, wb.Metadata.Provides("energy-intensity"))

	nasa := configs[1]
	assert.False(t, nasa.Active)
	// Unset budget falls back to the conservative default.
	assert.Equal(t, source.DefaultRateBudget(), nasa.RateBudget)
	// Unset timeout falls back to 30s.
	assert.Equal(t, 30*time.Second, nasa.Timeout)
}

func TestParseRegistry_InvalidEntryAborts(t *testing.T) {
	bad := `
sources:
  - id: ok-source
    name: OK
    type: api
    base_url: https://example.com
    metadata:
      data_types: [x]
  - id: ""
    name: Broken
    type: api
    base_url: https://example.com
    metadata:
      data_types: [x]
`
	_, err := source.ParseRegistry([]byte(bad))
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrInvalidConfig)
}

func TestParseRegistry_BadDuration(t *testing.T) {
	bad := `
sources:
  - id: s
    name: S
    type: api
    base_url: https://example.com
    timeout: soon
    metadata:
      data_types: [x]
`
	_, err := source.ParseRegistry([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o600))

	configs, err := source.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, configs, 2)

	_, err = source.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
