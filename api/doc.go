// Package api exposes the resilience monitoring and request surface over
// HTTP.
//
// All endpoints live under /resilience and speak JSON. Failures carry a
// structured error body, never a stack trace; a request that exhausted
// every source returns 500 with one diagnostic reason per candidate.
package api
