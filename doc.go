// Package enflux is a resilience orchestration layer for aggregating
// energy and climate data from unreliable upstream sources.
//
// A Manager owns a registry of data-source configs and wires four
// components around every request: a per-source rate limiter with fixed
// 1s/1h/24h windows, per-source circuit breakers, a rolling reliability
// tracker, and a failover walk that tries candidates in priority order
// until one succeeds.
//
// Basic usage:
//
//	mgr, err := enflux.New(enflux.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	err = mgr.RegisterSource(source.Config{
//	    ID:       "world-bank",
//	    Name:     "World Bank Open Data",
//	    Type:     source.TypeAPI,
//	    BaseURL:  "https://api.worldbank.org/v2",
//	    Priority: 1,
//	    Timeout:  10 * time.Second,
//	    Active:   true,
//	    Metadata: source.Metadata{DataTypes: []string{"electricity_access"}},
//	})
//
//	result, err := mgr.ExecuteRequest(ctx, &source.Request{
//	    DataType:   "electricity_access",
//	    Parameters: map[string]string{"country": "KEN"},
//	})
//
// Per-source failures are absorbed into failover continuation; callers see
// either a result or a terminal source.ExhaustedError listing why every
// candidate was skipped or failed. The sub-packages (ratelimit, breaker,
// reliability, failover, httpsource) are usable on their own; the api
// package serves the monitoring surface over HTTP.
package enflux
