// Package query answers region, street, and intersection questions over a
// fixed slice of observations. Every method is a pure read; an Engine may be
// built over a whole store or over one region's rows.
package query

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
)

const defaultCacheSize = 256

// Operation labels for the queries_total metric.
const (
	opSelectRegion  = "select_region"
	opValidStreet   = "is_valid_street"
	opValidCross    = "is_valid_intersection"
	opTotalSpaces   = "total_spaces"
	opAverageOccup  = "average_occupancy"
	opFreeSpaceProb = "free_space_probability"
)

// Engine evaluates queries over an immutable observation slice.
type Engine struct {
	obs     []domain.Observation
	cache   *lruCache
	match   timeMatcher
	metrics *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheSize bounds the number of memoized intersection sets.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cache = newLRUCache(n)
		}
	}
}

// WithWindowMatch replaces same-hour matching with a +/- window around the
// requested time of day.
func WithWindowMatch(window time.Duration) Option {
	return func(e *Engine) {
		e.match = matchWindow(window)
	}
}

// New creates an Engine over obs. The slice must not be modified afterwards.
func New(obs []domain.Observation, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		obs:     obs,
		cache:   newLRUCache(defaultCacheSize),
		match:   matchHour,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Within returns an Engine with the same settings over a subset of rows,
// typically the result of SelectRegion. The subset gets its own cache.
func (e *Engine) Within(obs []domain.Observation) *Engine {
	return &Engine{
		obs:     obs,
		cache:   newLRUCache(e.cache.maxEntries),
		match:   e.match,
		metrics: e.metrics,
	}
}

// Len returns the number of observations the engine answers over.
func (e *Engine) Len() int { return len(e.obs) }

// SelectRegion returns observations whose region contains name. Matching is
// case-sensitive, following the source data casing. No match is an empty
// result, not an error.
func (e *Engine) SelectRegion(name string) []domain.Observation {
	e.count(opSelectRegion)
	return e.filter(func(o domain.Observation) bool {
		return strings.Contains(o.Region, name)
	})
}

// SelectRegionFold is SelectRegion ignoring case.
func (e *Engine) SelectRegionFold(name string) []domain.Observation {
	e.count(opSelectRegion)
	lower := strings.ToLower(name)
	return e.filter(func(o domain.Observation) bool {
		return strings.Contains(strings.ToLower(o.Region), lower)
	})
}

// IsValidStreet reports whether any street descriptor contains name.
func (e *Engine) IsValidStreet(name string) bool {
	e.count(opValidStreet)
	for _, o := range e.obs {
		if strings.Contains(o.UnitDesc, name) {
			return true
		}
	}
	return false
}

// IsValidIntersection reports whether a single street descriptor names both
// streets. The result does not depend on argument order.
func (e *Engine) IsValidIntersection(a, b string) bool {
	e.count(opValidCross)
	return len(e.intersection(a, b)) > 0
}

// TotalSpaces estimates capacity around an intersection: the first known
// space count of each distinct element key, summed. Repeat surveys of a zone
// are not double counted, and rows missing a key or a count are skipped.
func (e *Engine) TotalSpaces(a, b string) float64 {
	e.count(opTotalSpaces)
	return totalSpaces(e.intersection(a, b))
}

// AverageOccupancy is the mean vehicle count over every observation at the
// intersection, repeat surveys included. Missing counts are skipped; ok is
// false when no row has one.
func (e *Engine) AverageOccupancy(a, b string) (avg float64, ok bool) {
	e.count(opAverageOccup)
	return averageOccupancy(e.intersection(a, b))
}

// FreeSpaceProbability labels the historical chance of an open stall at the
// intersection around hhmm (24-hour "HH:MM"). The only error is an
// unparsable time.
func (e *Engine) FreeSpaceProbability(a, b, hhmm string) (domain.Confidence, error) {
	e.count(opFreeSpaceProb)
	clock, err := domain.ParseClock(hhmm)
	if err != nil {
		return "", err
	}
	matched, available := e.availability(e.intersection(a, b), clock)
	label := domain.ConfidenceFor(available, matched)
	e.metrics.ConfidenceLabels.WithLabelValues(string(label)).Inc()
	return label, nil
}

// Summary answers every intersection question for one time of day in a single pass.
func (e *Engine) Summary(a, b, hhmm string) (domain.IntersectionSummary, error) {
	clock, err := domain.ParseClock(hhmm)
	if err != nil {
		return domain.IntersectionSummary{}, err
	}

	set := e.intersection(a, b)
	avg, _ := averageOccupancy(set)
	matched, available := e.availability(set, clock)
	label := domain.ConfidenceFor(available, matched)

	e.count(opTotalSpaces)
	e.count(opAverageOccup)
	e.count(opFreeSpaceProb)
	e.metrics.ConfidenceLabels.WithLabelValues(string(label)).Inc()

	return domain.IntersectionSummary{
		StreetA:          a,
		StreetB:          b,
		Time:             clock,
		Observations:     len(set),
		TotalSpaces:      totalSpaces(set),
		AverageOccupancy: avg,
		MatchedAtTime:    matched,
		AvailableAtTime:  available,
		Confidence:       label,
	}, nil
}

// intersection returns rows whose descriptor contains both streets, memoized
// under an order-independent key.
func (e *Engine) intersection(a, b string) []domain.Observation {
	key := intersectionKey(a, b)
	if set, ok := e.cache.get(key); ok {
		e.metrics.IntersectionCache.WithLabelValues("hit").Inc()
		return set
	}
	e.metrics.IntersectionCache.WithLabelValues("miss").Inc()

	set := e.filter(func(o domain.Observation) bool {
		return strings.Contains(o.UnitDesc, a) && strings.Contains(o.UnitDesc, b)
	})
	e.cache.put(key, set)
	return set
}

func (e *Engine) availability(set []domain.Observation, clock string) (matched, available int) {
	at := e.match(clock)
	for _, o := range set {
		if !at(o) {
			continue
		}
		matched++
		if o.HasFreeSpace() {
			available++
		}
	}
	return matched, available
}

func (e *Engine) filter(keep func(domain.Observation) bool) []domain.Observation {
	var out []domain.Observation
	for _, o := range e.obs {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) count(op string) {
	e.metrics.Queries.WithLabelValues(op).Inc()
}

func intersectionKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

func totalSpaces(set []domain.Observation) float64 {
	seen := make(map[int64]struct{})
	var total float64
	for _, o := range set {
		if o.ElementKey == domain.NoElementKey || math.IsNaN(o.ParkingSpaces) {
			continue
		}
		if _, ok := seen[o.ElementKey]; ok {
			continue
		}
		seen[o.ElementKey] = struct{}{}
		total += o.ParkingSpaces
	}
	return total
}

func averageOccupancy(set []domain.Observation) (float64, bool) {
	counts := make([]float64, 0, len(set))
	for _, o := range set {
		if !math.IsNaN(o.VehicleCount) {
			counts = append(counts, o.VehicleCount)
		}
	}
	if len(counts) == 0 {
		return 0, false
	}
	return stat.Mean(counts, nil), true
}
