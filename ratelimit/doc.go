// Package ratelimit enforces per-source request budgets across three fixed
// windows: one second, one hour, one day.
//
// Counters live in a Store, a key-value table with a soft TTL (~25h) so
// abandoned entries self-expire. Two stores are provided:
//
//   - MemoryStore: mutex-guarded map, strictly consistent within one process.
//     The default.
//   - SQLiteStore: shared across processes via a SQLite file. Reads and
//     writes are separate statements, so two concurrent callers can race
//     between Allow and Record and each consume the same budget slot. That
//     is an accepted availability-over-precision trade-off, not a bug;
//     do not "fix" it by wrapping everything in one transaction.
//
// Budgets are keyed by source family ("world-bank", "nasa-power"); unknown
// families fall back to a conservative 1/s, 100/h, 1000/day.
package ratelimit
