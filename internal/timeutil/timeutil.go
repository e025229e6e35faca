package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISO8601 is the layout used for --start-time and --end-time.
const ISO8601 = "2006-01-02T15:04:05Z"

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse reads an absolute time in one of the ISO-8601 forms, "now", or a
// time relative to now such as "-10m", "2h ago" or "1d ago". Times without a
// zone are UTC.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if strings.EqualFold(s, "now") {
		return now.UTC(), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	if d, ok := parseRelative(s); ok {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q, expected %s, \"now\" or a relative time like \"-10m\" or \"2h ago\"", s, ISO8601)
}

func parseRelative(s string) (time.Duration, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "-"):
		lower = strings.TrimPrefix(lower, "-")
	case strings.HasSuffix(lower, " ago"):
		lower = strings.TrimSuffix(lower, " ago")
	default:
		return 0, false
	}
	lower = strings.ReplaceAll(lower, " ", "")

	// time.ParseDuration has no day unit.
	if strings.HasSuffix(lower, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(lower, "d"))
		if err != nil || days < 0 {
			return 0, false
		}
		return time.Duration(days) * 24 * time.Hour, true
	}
	d, err := time.ParseDuration(lower)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// Window resolves optional start and end strings. An empty end is now and an
// empty start is defaultWindow before the end.
func Window(start, end string, now time.Time, defaultWindow time.Duration) (time.Time, time.Time, error) {
	endTime := now.UTC()
	if end != "" {
		t, err := Parse(end, now)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end time: %w", err)
		}
		endTime = t
	}

	startTime := endTime.Add(-defaultWindow)
	if start != "" {
		t, err := Parse(start, now)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start time: %w", err)
		}
		startTime = t
	}
	return startTime, endTime, nil
}

// Format renders t in UTC truncated to the minute.
func Format(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format(ISO8601)
}
