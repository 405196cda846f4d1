package ratelimit

import "time"

// KeyPrefix is prepended to source ids to form store keys.
const KeyPrefix = "rate_limit:"

// Key returns the store key for a source id.
func Key(sourceID string) string { return KeyPrefix + sourceID }

// Entry holds the per-source window counters. LastRequest doubles as the
// start of the current one-second window.
type Entry struct {
	RequestCount  int       `json:"requestCount"`
	HourlyCount   int       `json:"hourlyCount"`
	DailyCount    int       `json:"dailyCount"`
	LastRequest   time.Time `json:"lastRequest"`
	LastHourReset time.Time `json:"lastHourReset"`
	LastDayReset  time.Time `json:"lastDayReset"`
}

func newEntry(now time.Time) *Entry {
	return &Entry{
		LastRequest:   now,
		LastHourReset: now,
		LastDayReset:  now,
	}
}

// normalize resets any window whose period has elapsed.
func (e *Entry) normalize(now time.Time) {
	if now.Sub(e.LastRequest) >= time.Second {
		e.RequestCount = 0
	}
	if now.Sub(e.LastHourReset) >= time.Hour {
		e.HourlyCount = 0
		e.LastHourReset = now
	}
	if now.Sub(e.LastDayReset) >= 24*time.Hour {
		e.DailyCount = 0
		e.LastDayReset = now
	}
}

// record counts one request against all three windows.
func (e *Entry) record(now time.Time) {
	if now.Sub(e.LastRequest) >= time.Second {
		e.RequestCount = 0
	}
	e.RequestCount++
	e.HourlyCount++
	e.DailyCount++
	e.LastRequest = now
}
