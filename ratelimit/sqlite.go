package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the rate_limits table. Applied by NewSQLiteStore.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	key TEXT PRIMARY KEY,
	request_count INTEGER NOT NULL,
	hourly_count INTEGER NOT NULL,
	daily_count INTEGER NOT NULL,
	last_request INTEGER NOT NULL,
	last_hour_reset INTEGER NOT NULL,
	last_day_reset INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_exp ON rate_limits(expires_at);
`

// SQLiteStore shares counters between processes through a SQLite file.
//
// Get and Put are separate statements: two callers can both read N and both
// write N+1. The limiter is approximate under concurrent access with this
// store, which is accepted (see package doc).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteNow overrides the clock (testing).
func WithSQLiteNow(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (creating if needed) the rate-limit table at path.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the entry for key, or nil when absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_count, hourly_count, daily_count,
		       last_request, last_hour_reset, last_day_reset
		FROM rate_limits WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixMilli())

	var e Entry
	var lastRequest, lastHour, lastDay int64
	err := row.Scan(&e.RequestCount, &e.HourlyCount, &e.DailyCount,
		&lastRequest, &lastHour, &lastDay)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.LastRequest = time.UnixMilli(lastRequest)
	e.LastHourReset = time.UnixMilli(lastHour)
	e.LastDayReset = time.UnixMilli(lastDay)
	return &e, nil
}

// Put upserts the entry with expiry now+ttl.
func (s *SQLiteStore) Put(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limits
			(key, request_count, hourly_count, daily_count,
			 last_request, last_hour_reset, last_day_reset, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			request_count = excluded.request_count,
			hourly_count = excluded.hourly_count,
			daily_count = excluded.daily_count,
			last_request = excluded.last_request,
			last_hour_reset = excluded.last_hour_reset,
			last_day_reset = excluded.last_day_reset,
			expires_at = excluded.expires_at`,
		key, e.RequestCount, e.HourlyCount, e.DailyCount,
		e.LastRequest.UnixMilli(), e.LastHourReset.UnixMilli(), e.LastDayReset.UnixMilli(),
		s.now().Add(ttl).UnixMilli())
	return err
}

// Sweep deletes expired rows.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
