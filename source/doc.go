// Package source defines the shared types for upstream data sources.
//
// A Config describes one upstream source (a government API, an academic
// database, a scraping target, ...) together with its rate budget, retry
// policy, health check, and compliance descriptors. Configs are validated
// once at registration time and are read-only afterwards.
//
// The Fetcher interface is the only capability the resilience core requires
// from an upstream client: given a Request, try to fetch a Result. Concrete
// HTTP clients live in the httpsource package; tests use in-memory fetchers.
//
// All sentinel and typed errors shared across the module live here:
//
//	if errors.Is(err, source.ErrAllSourcesExhausted) { ... }
//
//	var exhausted *source.ExhaustedError
//	if errors.As(err, &exhausted) {
//	    for _, attempt := range exhausted.Attempts { ... }
//	}
package source
