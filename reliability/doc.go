// Package reliability keeps a bounded rolling window of call outcomes per
// source and reduces it into success rate, latency percentiles, and a
// composite health score in [0,1].
//
// The tracker is purely observational: it never decides whether a source is
// called. The failover manager consumes health scores to rank candidates of
// equal priority; operators consume reports.
package reliability
