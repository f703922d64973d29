package httpapi

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	minCount     = 1
	maxCount     = 10_000
	maxRangeSpan = 7 * 24 * time.Hour
)

var intervalPattern = regexp.MustCompile(`^(\d+)([TMHD])$`)

// parseCount validates and clamps the "count" query parameter, defaulting
// to def when absent.
func parseCount(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minCount {
		return 0, fmt.Errorf("count must be a positive integer")
	}
	if n > maxCount {
		return 0, fmt.Errorf("count must not exceed %d", maxCount)
	}
	return n, nil
}

// parseISO8601 requires the "T" separator and "Z" suffix, per spec.md
// §4.5's parameter validation rules.
func parseISO8601(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02T15:04:05Z", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be ISO-8601 UTC, e.g. 2026-01-01T00:00:00Z")
	}
	return t.UTC(), nil
}

// parseRange validates start/end and the 7-day maximum span.
func parseRange(startRaw, endRaw string) (start, end time.Time, err error) {
	start, err = parseISO8601(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err = parseISO8601(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must not be after end")
	}
	if end.Sub(start) > maxRangeSpan {
		return time.Time{}, time.Time{}, fmt.Errorf("range must not exceed 7 days")
	}
	return start, end, nil
}

// parseInterval validates the "interval" query parameter against
// ^\d+[TMHD]$ and requires it to divide cleanly into [start, end).
func parseInterval(raw string, start, end time.Time) (time.Duration, error) {
	if raw == "" {
		raw = "1H"
	}
	m := intervalPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("interval must match ^\\d+[TMHD]$")
	}
	n, _ := strconv.Atoi(m[1])
	if n <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}

	var unit time.Duration
	switch m[2] {
	case "T", "M":
		unit = time.Minute
	case "H":
		unit = time.Hour
	case "D":
		unit = 24 * time.Hour
	}
	interval := time.Duration(n) * unit

	span := end.Sub(start)
	if span%interval != 0 {
		return 0, fmt.Errorf("interval must divide the query range cleanly")
	}
	return interval, nil
}
