package query

import (
	"time"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
)

// timeMatcher builds a predicate for observations at a requested time of day.
// clock is always a zero-padded "HH:MM".
type timeMatcher func(clock string) func(domain.Observation) bool

// matchHour keeps observations whose canonical timestamp shares the leading
// hour digits with clock, so "17:40" matches anything surveyed 17:00-17:59.
func matchHour(clock string) func(domain.Observation) bool {
	hour := clock[:2]
	return func(o domain.Observation) bool {
		return o.Timestamp()[11:13] == hour
	}
}

// matchWindow keeps observations within window of clock on a 24-hour dial,
// so a 23:30 request also sees 00:10 surveys.
func matchWindow(window time.Duration) timeMatcher {
	const day = 24 * 60
	limit := int(window / time.Minute)
	return func(clock string) func(domain.Observation) bool {
		t, err := time.Parse("15:04", clock)
		if err != nil {
			return func(domain.Observation) bool { return false }
		}
		want := t.Hour()*60 + t.Minute()
		return func(o domain.Observation) bool {
			got := o.ObservedAt.Hour()*60 + o.ObservedAt.Minute()
			d := got - want
			if d < 0 {
				d = -d
			}
			if day-d < d {
				d = day - d
			}
			return d <= limit
		}
	}
}
