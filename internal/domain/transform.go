package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// invalidTimestamp is the export's sentinel for a missing survey time.
const invalidTimestamp = "1-00-00 00:00:00"

// Row rejection causes. Each maps to a metrics label via DropReason.
var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidClock     = errors.New("invalid time of day")
)

// NoElementKey marks an observation whose zone key was blank or unparsable.
const NoElementKey int64 = -1

// timestampLayouts are tried in order when parsing the "Date Time" column.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
}

// clockRe accepts 24-hour HH:MM with an optional leading zero on the hour.
var clockRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ParseRow converts one CSV record into an Observation using resolved column
// positions. Only the survey time can reject a row; the returned error wraps
// ErrInvalidTimestamp. A missing cell reads as blank, a blank or unparsable key
// becomes NoElementKey, and a blank or unparsable count becomes NaN.
func ParseRow(row []string, ix ColumnIndex) (Observation, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	observedAt, err := parseTimestamp(cell(ix.Timestamp))
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		ElementKey:    parseElementKey(cell(ix.ElementKey)),
		Region:        cell(ix.Region),
		ObservedAt:    observedAt,
		UnitDesc:      cell(ix.UnitDesc),
		ParkingSpaces: parseCount(cell(ix.ParkingSpaces)),
		VehicleCount:  parseCount(cell(ix.VehicleCount)),
	}, nil
}

// DropReason returns a short label for a ParseRow error.
func DropReason(err error) string {
	if errors.Is(err, ErrInvalidTimestamp) {
		return "invalid_timestamp"
	}
	return "malformed"
}

// parseTimestamp normalizes a survey time. Blank and sentinel values are
// rejected like any other unparsable value.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == invalidTimestamp {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseTimestamp parses a canonical observation timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// parseElementKey accepts non-negative integer keys, including exports that
// render them as floats ("1234.0").
func parseElementKey(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= 1<<63 {
		return NoElementKey
	}
	return int64(f)
}

// parseCount parses a non-negative stall count. Anything else is missing (NaN).
func parseCount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ParseClock parses a 24-hour "HH:MM" time of day and returns it zero-padded.
func ParseClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !clockRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Format("15:04"), nil
}

// IsClock reports whether s is a valid 24-hour "HH:MM" time of day.
func IsClock(s string) bool {
	return clockRe.MatchString(strings.TrimSpace(s))
}
