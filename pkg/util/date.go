package util

import (
	"strconv"
	"time"
)

var layouts = []string{time.RFC3339, time.RFC3339Nano, time.DateOnly, time.DateTime}

// ParseTime tries RFC3339, RFC3339Nano, date-only, date-time, and unix
// seconds. Layouts without a zone are read as UTC. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
