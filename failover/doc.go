// Package failover walks an ordered list of candidate sources for each
// logical request until one succeeds.
//
// For every candidate the walk consults the circuit breaker and the rate
// limiter before calling out, runs the source's own bounded retry policy
// under the source timeout, and records the outcome with the breaker, the
// reliability tracker, and the append-only event history. Candidates are
// tried strictly one at a time: each attempt mutates shared breaker and
// rate-limit state that the next candidate must observe.
//
// A request fails with source.ExhaustedError only when every candidate was
// skipped or failed; the error carries one reason per candidate.
package failover
