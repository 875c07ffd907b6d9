package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
	"github.com/couchcryptid/street-parking-odds/internal/query"
	"github.com/couchcryptid/street-parking-odds/internal/store"
)

type recordingPublisher struct {
	answers []domain.QueryAnswer
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, a domain.QueryAnswer) error {
	p.answers = append(p.answers, a)
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	mk := func(key int64, region, desc, ts string, spaces, vehicles float64) domain.Observation {
		at, err := domain.ParseTimestamp(ts)
		require.NoError(t, err)
		return domain.Observation{ElementKey: key, Region: region, ObservedAt: at, UnitDesc: desc, ParkingSpaces: spaces, VehicleCount: vehicles}
	}
	return store.FromObservations([]domain.Observation{
		mk(1, "South Lake Union", "WESTLAKE AVE N BETWEEN MERCER ST AND REPUBLICAN ST", "2014-06-03T17:10:00", 10, 2),
		mk(1, "South Lake Union", "WESTLAKE AVE N BETWEEN MERCER ST AND REPUBLICAN ST", "2014-06-04T17:40:00", 10, 4),
		mk(2, "South Lake Union", "MERCER ST BETWEEN WESTLAKE AVE N AND TERRY AVE N", "2014-06-03T09:00:00", 6, 6),
		mk(3, "Belltown", "1ST AVE BETWEEN BELL ST AND BATTERY ST", "2014-06-03T12:00:00", 8, 8),
	}, "test.csv")
}

func run(t *testing.T, input string, opts ...Option) (string, error) {
	t.Helper()
	st := testStore(t)
	engine := query.New(st.Observations(), observability.NewMetricsForTesting())
	var out bytes.Buffer
	c := New(engine, st.Regions(), strings.NewReader(input), &out, discardLogger(), opts...)
	err := c.Run(context.Background())
	return out.String(), err
}

func TestRun_FullQuery(t *testing.T) {
	pub := &recordingPublisher{}
	out, err := run(t, strings.Join([]string{
		"South Lake Union",
		"WESTLAKE",
		"MERCER",
		"17:30",
		"y",
	}, "\n"), WithPublisher(pub))
	require.NoError(t, err)

	assert.Contains(t, out, "There are about 16 parking spaces around WESTLAKE and MERCER.")
	assert.Contains(t, out, "On average 4.0 vehicles are parked there.")
	assert.Contains(t, out, "Chance of finding a free space at 17:30: VERY HIGH")
	assert.Contains(t, out, "(2 of 2 surveys around that time had an open space)")

	require.Len(t, pub.answers, 1)
	a := pub.answers[0]
	assert.Equal(t, "south lake union", a.Region)
	assert.Equal(t, domain.ConfidenceVeryHigh, a.Summary.Confidence)
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, a.SessionID)
}

func TestRun_UnknownRegionListsRegions(t *testing.T) {
	out, err := run(t, "Capitol Hill\nBelltown\n1ST AVE\nBELL ST\n12:00\nyes\n")
	require.NoError(t, err)

	assert.Contains(t, out, "Could not find that region")
	assert.Contains(t, out, "0: south lake union\n1: belltown\n")
	assert.Contains(t, out, "VERY LOW")
}

func TestRun_RegionFallsBackToCaseInsensitive(t *testing.T) {
	out, err := run(t, "belltown\n1ST AVE\nBELL ST\n12:00\ny\n")
	require.NoError(t, err)
	assert.NotContains(t, out, "Could not find that region")
}

func TestRun_StreetRetriedUpperCase(t *testing.T) {
	pub := &recordingPublisher{}
	out, err := run(t, "Belltown\n1st ave\nbell st\n12:00\ny\n", WithPublisher(pub))
	require.NoError(t, err)

	assert.Contains(t, out, "around 1ST AVE and BELL ST")
	require.Len(t, pub.answers, 1)
	assert.Equal(t, "1ST AVE", pub.answers[0].Summary.StreetA)
}

func TestRun_StreetOutsideRegionRejected(t *testing.T) {
	out, err := run(t, "Belltown\nWESTLAKE\n1ST AVE\nBELL ST\n12:00\ny\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Could not find WESTLAKE in that region")
}

func TestRun_StreetsThatDoNotIntersect(t *testing.T) {
	out, err := run(t, "South Lake Union\nREPUBLICAN\nTERRY\nWESTLAKE\nMERCER\n17:00\ny\n")
	require.NoError(t, err)
	assert.Contains(t, out, "REPUBLICAN and TERRY do not intersect in that region")
	assert.Contains(t, out, "around WESTLAKE and MERCER")
}

func TestRun_EmptyStreetReprompts(t *testing.T) {
	out, err := run(t, "Belltown\n\n1ST AVE\nBELL ST\n12:00\ny\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Please enter a street name")
}

func TestRun_InvalidTimeReprompts(t *testing.T) {
	out, err := run(t, "Belltown\n1ST AVE\nBELL ST\n7pm\n25:00\n12:00\ny\n")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Please enter a 24-hour time like 17:30"))
	assert.Contains(t, out, "at 12:00: VERY LOW")
}

func TestRun_BackReturnsToStreetSelection(t *testing.T) {
	pub := &recordingPublisher{}
	out, err := run(t, "South Lake Union\nWESTLAKE\nMERCER\nback\nMERCER\nTERRY\n03:00\ny\n", WithPublisher(pub))
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "Please enter the primary street: "))
	assert.Contains(t, out, "(no surveys around that time)")
	assert.Contains(t, out, "at 03:00: HIGH")
	require.Len(t, pub.answers, 1)
	assert.Equal(t, "TERRY", pub.answers[0].Summary.StreetB)
}

func TestRun_LoopsUntilExit(t *testing.T) {
	pub := &recordingPublisher{}
	out, err := run(t, "Belltown\n1ST AVE\nBELL ST\n12:00\nn\nSouth Lake\nWESTLAKE\nMERCER\n09:00\nY\n", WithPublisher(pub))
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "Please enter the region you are trying to find parking in: "))
	require.Len(t, pub.answers, 2)
	assert.Equal(t, pub.answers[0].SessionID, pub.answers[1].SessionID)
}

func TestRun_EOFEndsSession(t *testing.T) {
	pub := &recordingPublisher{}
	_, err := run(t, "Belltown\n1ST AVE\n", WithPublisher(pub))
	require.NoError(t, err)
	assert.Empty(t, pub.answers)
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	out, err := run(t, "Belltown\n1ST AVE\nBELL ST\n12:00\ny\n", WithPublisher(pub))
	require.NoError(t, err)
	assert.Contains(t, out, "VERY LOW")
	assert.Len(t, pub.answers, 1)
}

func TestRun_ContextCancelled(t *testing.T) {
	st := testStore(t)
	engine := query.New(st.Observations(), observability.NewMetricsForTesting())
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	c := New(engine, st.Regions(), pr, io.Discard, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
