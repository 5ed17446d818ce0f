package papersources

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseTimestamp parses the many timestamp layouts upstream APIs emit
// ("2024-01-02", "2024-01-02T15:04:05Z", RFC 1123 feed dates, and so on).
// Values without a zone are read as UTC. It returns the zero time when the
// value is empty or unparseable; callers treat that as an absent timestamp.
func ParseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// FirstTimestamp returns the first value that parses.
func FirstTimestamp(values ...string) time.Time {
	for _, v := range values {
		if t := ParseTimestamp(v); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// DateString formats t as YYYY-MM-DD in UTC.
func DateString(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
