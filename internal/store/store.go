// Package store holds the in-memory occupancy dataset. A Store is built once,
// either from the source export or from a snapshot, and is read-only after.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
)

// cancelCheckEvery is how many rows are read between context checks.
const cancelCheckEvery = 4096

// LoadStats summarizes one dataset load.
type LoadStats struct {
	RowsRead int            `json:"rows_read"`
	RowsKept int            `json:"rows_kept"`
	Dropped  map[string]int `json:"dropped,omitempty"`
}

// Store is an immutable collection of observations plus the regions derived
// from them at construction time.
type Store struct {
	source       string
	observations []domain.Observation
	regions      []string
	stats        LoadStats
}

// FromObservations builds a Store over an already-parsed slice. The slice is
// owned by the Store afterwards and must not be modified by the caller.
func FromObservations(obs []domain.Observation, source string) *Store {
	return newStore(obs, source, LoadStats{RowsRead: len(obs), RowsKept: len(obs)})
}

// Restore rebuilds a Store from saved observations and the stats recorded
// when they were first loaded.
func Restore(obs []domain.Observation, source string, stats LoadStats) *Store {
	return newStore(obs, source, stats)
}

func newStore(obs []domain.Observation, source string, stats LoadStats) *Store {
	return &Store{
		source:       source,
		observations: obs,
		regions:      distinctRegions(obs),
		stats:        stats,
	}
}

// Source returns the path or URL the data was read from.
func (s *Store) Source() string { return s.source }

// Len returns the number of observations.
func (s *Store) Len() int { return len(s.observations) }

// Observations returns the rows in load order. Callers must treat the slice as read-only.
func (s *Store) Observations() []domain.Observation { return s.observations }

// Stats returns the counters recorded when the store was loaded.
func (s *Store) Stats() LoadStats { return s.stats }

// Regions returns the distinct region names in first-seen order, lower-cased.
// Names are compared before folding, so "Belltown" and "BELLTOWN" both appear.
func (s *Store) Regions() []string {
	out := make([]string, len(s.regions))
	copy(out, s.regions)
	return out
}

func distinctRegions(obs []domain.Observation) []string {
	seen := make(map[string]struct{})
	var regions []string
	for _, o := range obs {
		if _, ok := seen[o.Region]; ok {
			continue
		}
		seen[o.Region] = struct{}{}
		regions = append(regions, strings.ToLower(o.Region))
	}
	return regions
}

// Loader reads the source export into a Store.
type Loader struct {
	schema          domain.Schema
	client          *http.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewLoader creates a Loader. A zero fetchTimeout leaves remote requests
// without a deadline; maxElapsed bounds the total retry time.
func NewLoader(fetchTimeout, maxElapsed time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		schema:          domain.DefaultSchema,
		client:          &http.Client{Timeout: fetchTimeout},
		maxElapsed:      maxElapsed,
		initialInterval: defaultInitialInterval,
		logger:          logger,
		metrics:         metrics,
	}
}

// Load reads and cleans the dataset at source, a local path or HTTP(S) URL.
// Any failure is returned as a *LoadError.
func (l *Loader) Load(ctx context.Context, source string) (*Store, error) {
	start := time.Now()
	l.logger.Info("reading dataset", "source", source)

	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	defer rc.Close()

	st, err := l.Read(ctx, rc, source)
	if err != nil {
		return nil, err
	}

	l.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	return st, nil
}

// Read parses CSV data from r. The first record must be a header row.
func (l *Loader) Read(ctx context.Context, r io.Reader, source string) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty dataset")
		}
		return nil, &LoadError{Source: source, Err: fmt.Errorf("read header: %w", err)}
	}

	ix, fallbacks, err := l.schema.Resolve(header)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if len(fallbacks) > 0 {
		l.logger.Warn("columns not found by name, using documented positions", "columns", fallbacks)
	}

	l.logger.Info("cleaning data")
	stats := LoadStats{Dropped: make(map[string]int)}
	var obs []domain.Observation
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.RowsRead++
		if stats.RowsRead%cancelCheckEvery == 0 && ctx.Err() != nil {
			return nil, &LoadError{Source: source, Err: ctx.Err()}
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, &LoadError{Source: source, Err: fmt.Errorf("read row %d: %w", stats.RowsRead, err)}
			}
			l.drop(&stats, "malformed")
			continue
		}

		o, err := domain.ParseRow(row, ix)
		if err != nil {
			l.drop(&stats, domain.DropReason(err))
			continue
		}
		obs = append(obs, o)
	}

	stats.RowsKept = len(obs)
	l.metrics.RowsLoaded.Add(float64(stats.RowsKept))
	l.metrics.DatasetRows.Set(float64(stats.RowsKept))
	l.logger.Info("dataset loaded",
		"source", source,
		"rows_read", stats.RowsRead,
		"rows_kept", stats.RowsKept,
		"rows_dropped", stats.RowsRead-stats.RowsKept,
	)

	return newStore(obs, source, stats), nil
}

func (l *Loader) drop(stats *LoadStats, reason string) {
	stats.Dropped[reason]++
	l.metrics.RowsDropped.WithLabelValues(reason).Inc()
}
