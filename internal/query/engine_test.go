package query

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
)

func obs(key int64, region, desc, ts string, spaces, vehicles float64) domain.Observation {
	t, err := time.Parse(domain.TimestampLayout, ts)
	if err != nil {
		panic(err)
	}
	return domain.Observation{
		ElementKey:    key,
		Region:        region,
		ObservedAt:    t,
		UnitDesc:      desc,
		ParkingSpaces: spaces,
		VehicleCount:  vehicles,
	}
}

func fixture() []domain.Observation {
	return []domain.Observation{
		obs(1, "South Lake Union", "WESTLAKE AVE N BETWEEN MERCER ST AND REPUBLICAN ST", "2014-06-03T09:15:00", 10, 4),
		obs(1, "South Lake Union", "WESTLAKE AVE N BETWEEN MERCER ST AND REPUBLICAN ST", "2014-06-03T17:20:00", 10, 10),
		obs(2, "South Lake Union", "MERCER ST BETWEEN WESTLAKE AVE N AND TERRY AVE N", "2014-06-03T17:45:00", 6, 2),
		obs(3, "Belltown", "1ST AVE BETWEEN BELL ST AND BATTERY ST", "2014-06-03T12:00:00", 8, 8),
		obs(4, "Belltown", "2ND AVE BETWEEN BELL ST AND BLANCHARD ST", "2014-06-03T12:30:00", 5, 1),
	}
}

func newEngine(data []domain.Observation, opts ...Option) *Engine {
	return New(data, observability.NewMetricsForTesting(), opts...)
}

func TestSelectRegion(t *testing.T) {
	e := newEngine(fixture())

	got := e.SelectRegion("Belltown")
	require.Len(t, got, 2)
	for _, o := range got {
		assert.Equal(t, "Belltown", o.Region)
	}

	assert.Len(t, e.SelectRegion("Lake"), 3, "substring match")
	assert.Empty(t, e.SelectRegion("belltown"), "case-sensitive")
	assert.Empty(t, e.SelectRegion("Capitol Hill"))
}

func TestSelectRegionFold(t *testing.T) {
	e := newEngine(fixture())

	assert.Len(t, e.SelectRegionFold("belltown"), 2)
	assert.Len(t, e.SelectRegionFold("SOUTH LAKE"), 3)
	assert.Empty(t, e.SelectRegionFold("capitol hill"))
}

func TestIsValidStreet(t *testing.T) {
	data := fixture()
	e := newEngine(data)

	for _, o := range data {
		assert.True(t, e.IsValidStreet(o.UnitDesc), o.UnitDesc)
		assert.True(t, e.IsValidStreet(o.UnitDesc[:5]), o.UnitDesc[:5])
	}
	assert.True(t, e.IsValidStreet("MERCER ST"))
	assert.False(t, e.IsValidStreet("PINE ST"))
	assert.False(t, e.IsValidStreet("mercer st"))
}

func TestIsValidIntersection_Symmetric(t *testing.T) {
	e := newEngine(fixture())

	pairs := [][2]string{
		{"WESTLAKE", "MERCER"},
		{"BELL ST", "1ST AVE"},
		{"2ND AVE", "BATTERY"},
		{"TERRY", "PINE"},
	}
	for _, p := range pairs {
		assert.Equal(t, e.IsValidIntersection(p[0], p[1]), e.IsValidIntersection(p[1], p[0]), "%s / %s", p[0], p[1])
	}

	assert.True(t, e.IsValidIntersection("WESTLAKE", "MERCER"))
	assert.True(t, e.IsValidIntersection("MERCER", "WESTLAKE"))
	assert.False(t, e.IsValidIntersection("2ND AVE", "BATTERY"))
}

func TestTotalSpaces_CountsEachKeyOnce(t *testing.T) {
	data := []domain.Observation{
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T10:00:00", 12, 3),
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T11:00:00", 12, 9),
	}
	e := newEngine(data)

	assert.InDelta(t, 12.0, e.TotalSpaces("PIKE ST", "3RD AVE"), 1e-9)
}

func TestTotalSpaces_FirstObservedCountWins(t *testing.T) {
	data := []domain.Observation{
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T10:00:00", 12, 3),
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-04T10:00:00", 14, 3),
		obs(8, "R", "3RD AVE BETWEEN PIKE ST AND PINE ST", "2014-06-03T10:00:00", 5, 3),
	}
	e := newEngine(data)

	assert.InDelta(t, 17.0, e.TotalSpaces("PIKE ST", "3RD AVE"), 1e-9)
	assert.InDelta(t, 0.0, e.TotalSpaces("PIKE ST", "4TH AVE"), 1e-9)
}

func TestTotalSpaces_FixtureIntersection(t *testing.T) {
	e := newEngine(fixture())

	// keys 1 and 2 both name WESTLAKE and MERCER.
	assert.InDelta(t, 16.0, e.TotalSpaces("WESTLAKE", "MERCER"), 1e-9)
}

func TestAverageOccupancy_IncludesDuplicateKeys(t *testing.T) {
	data := []domain.Observation{
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T10:00:00", 12, 0),
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T11:00:00", 12, 2),
		obs(8, "R", "PIKE ST AND 3RD AVE", "2014-06-03T12:00:00", 12, 4),
	}
	e := newEngine(data)

	avg, ok := e.AverageOccupancy("PIKE ST", "3RD AVE")
	require.True(t, ok)
	assert.InDelta(t, 2.0, avg, 1e-9)
}

func TestTotalSpaces_SkipsMissingCountsAndKeys(t *testing.T) {
	data := []domain.Observation{
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T10:00:00", math.NaN(), 3),
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T11:00:00", 12, 3),
		obs(domain.NoElementKey, "R", "PIKE ST AND 3RD AVE", "2014-06-03T12:00:00", 40, 3),
		obs(8, "R", "PIKE ST AND 3RD AVE", "2014-06-03T12:00:00", 5, math.NaN()),
	}
	e := newEngine(data)

	assert.InDelta(t, 17.0, e.TotalSpaces("PIKE ST", "3RD AVE"), 1e-9)
}

func TestAverageOccupancy_SkipsMissingCounts(t *testing.T) {
	data := []domain.Observation{
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T10:00:00", 12, 1),
		obs(7, "R", "PIKE ST AND 3RD AVE", "2014-06-03T11:00:00", 12, math.NaN()),
		obs(8, "R", "PIKE ST AND 3RD AVE", "2014-06-03T12:00:00", 12, 3),
	}
	e := newEngine(data)

	avg, ok := e.AverageOccupancy("PIKE ST", "3RD AVE")
	require.True(t, ok)
	assert.InDelta(t, 2.0, avg, 1e-9)

	e = newEngine(data[1:2])
	_, ok = e.AverageOccupancy("PIKE ST", "3RD AVE")
	assert.False(t, ok)
}

func TestFreeSpaceProbability_MissingCountIsNotFree(t *testing.T) {
	data := []domain.Observation{
		obs(1, "R", "A ST AND B ST", "2014-06-03T17:00:00", 5, 1),
		obs(1, "R", "A ST AND B ST", "2014-06-03T17:10:00", 5, 1),
		obs(1, "R", "A ST AND B ST", "2014-06-03T17:20:00", 5, 1),
		obs(2, "R", "A ST AND B ST AND C ST", "2014-06-03T17:30:00", 5, math.NaN()),
	}
	e := newEngine(data)

	label, err := e.FreeSpaceProbability("A ST", "B ST", "17:00")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, label, "3 of 4 surveys had a free stall")
	assert.True(t, e.IsValidStreet("C ST"))
	assert.InDelta(t, 10.0, e.TotalSpaces("A ST", "B ST"), 1e-9)
}

func TestAverageOccupancy_NoMatch(t *testing.T) {
	e := newEngine(fixture())

	avg, ok := e.AverageOccupancy("PIKE ST", "3RD AVE")
	assert.False(t, ok)
	assert.Zero(t, avg)
}

func TestFreeSpaceProbability_EightOfTen(t *testing.T) {
	var data []domain.Observation
	for i := range 10 {
		vehicles := 3.0
		if i >= 8 {
			vehicles = 10
		}
		ts := fmt.Sprintf("2014-06-%02dT17:%02d:00", i+1, i*5)
		data = append(data, obs(int64(i), "R", "PIKE ST AND 3RD AVE", ts, 10, vehicles))
	}
	e := newEngine(data)

	label, err := e.FreeSpaceProbability("PIKE ST", "3RD AVE", "17:30")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, label)
}

func TestFreeSpaceProbability_EmptyHourIsHigh(t *testing.T) {
	var data []domain.Observation
	for i := range 50 {
		data = append(data, obs(int64(i), "R", "PIKE ST AND 3RD AVE", "2014-06-03T09:00:00", 10, 10))
	}
	e := newEngine(data)

	label, err := e.FreeSpaceProbability("PIKE ST", "3RD AVE", "03:00")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, label)

	label, err = e.FreeSpaceProbability("PIKE ST", "3RD AVE", "09:00")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceVeryLow, label)
}

func TestFreeSpaceProbability_UnknownIntersectionIsHigh(t *testing.T) {
	e := newEngine(fixture())

	label, err := e.FreeSpaceProbability("PIKE ST", "3RD AVE", "12:00")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, label)
}

func TestFreeSpaceProbability_InvalidClock(t *testing.T) {
	e := newEngine(fixture())

	for _, in := range []string{"", "25:00", "7pm", "12:60", "back"} {
		_, err := e.FreeSpaceProbability("WESTLAKE", "MERCER", in)
		require.ErrorIs(t, err, domain.ErrInvalidClock, in)
	}
}

func TestFreeSpaceProbability_HourVersusWindow(t *testing.T) {
	data := []domain.Observation{
		obs(1, "R", "PIKE ST AND 3RD AVE", "2014-06-03T16:50:00", 10, 2),
		obs(2, "R", "PIKE ST AND 3RD AVE", "2014-06-03T17:50:00", 10, 10),
	}

	hour := newEngine(data)
	label, err := hour.FreeSpaceProbability("PIKE ST", "3RD AVE", "17:10")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceVeryLow, label, "only the 17:50 row shares the hour")

	window := newEngine(data, WithWindowMatch(45*time.Minute))
	label, err = window.FreeSpaceProbability("PIKE ST", "3RD AVE", "17:10")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceMedium, label, "both rows fall within 45 minutes")
}

func TestSummary(t *testing.T) {
	e := newEngine(fixture())

	s, err := e.Summary("WESTLAKE", "MERCER", "5:30")
	require.NoError(t, err)

	assert.Equal(t, "05:30", s.Time)
	assert.Equal(t, "WESTLAKE", s.StreetA)
	assert.Equal(t, "MERCER", s.StreetB)
	assert.Equal(t, 3, s.Observations)
	assert.InDelta(t, 16.0, s.TotalSpaces, 1e-9)
	assert.InDelta(t, 16.0/3, s.AverageOccupancy, 1e-9)
	assert.Equal(t, 0, s.MatchedAtTime, "5:30 is read as 05:30")
	assert.Equal(t, domain.ConfidenceHigh, s.Confidence)

	s, err = e.Summary("MERCER", "WESTLAKE", "17:00")
	require.NoError(t, err)
	assert.Equal(t, 2, s.MatchedAtTime)
	assert.Equal(t, 1, s.AvailableAtTime)
	assert.Equal(t, domain.ConfidenceMedium, s.Confidence)
}

func TestSummary_MatchesIndividualQueries(t *testing.T) {
	e := newEngine(fixture())

	s, err := e.Summary("BELL ST", "1ST AVE", "12:15")
	require.NoError(t, err)

	avg, _ := e.AverageOccupancy("BELL ST", "1ST AVE")
	label, err := e.FreeSpaceProbability("BELL ST", "1ST AVE", "12:15")
	require.NoError(t, err)

	assert.InDelta(t, e.TotalSpaces("BELL ST", "1ST AVE"), s.TotalSpaces, 1e-9)
	assert.InDelta(t, avg, s.AverageOccupancy, 1e-9)
	assert.Equal(t, label, s.Confidence)
}

func TestIntersectionCache_OrderIndependent(t *testing.T) {
	e := newEngine(fixture(), WithCacheSize(4))

	e.IsValidIntersection("WESTLAKE", "MERCER")
	e.TotalSpaces("MERCER", "WESTLAKE")
	e.AverageOccupancy("WESTLAKE", "MERCER")

	assert.Equal(t, 1, e.cache.len())
	assert.Equal(t, intersectionKey("a", "b"), intersectionKey("b", "a"))
}

func TestWithin(t *testing.T) {
	e := newEngine(fixture(), WithCacheSize(8))
	scoped := e.Within(e.SelectRegion("Belltown"))

	assert.Equal(t, 2, scoped.Len())
	assert.False(t, scoped.IsValidStreet("WESTLAKE"))
	assert.True(t, e.IsValidStreet("WESTLAKE"))
	assert.Equal(t, 8, scoped.cache.maxEntries)
}
