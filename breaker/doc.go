// Package breaker maintains one circuit breaker per upstream source.
//
// Each breaker is a sony/gobreaker state machine: Closed (normal traffic),
// Open (fast-fail after repeated failures), Half-Open (exactly one probe
// after the cooldown). Probe success closes the breaker and resets its
// counters; probe failure reopens it.
//
// The registry only creates breakers lazily and never destroys them, so
// re-registering a source keeps its failure history.
package breaker
