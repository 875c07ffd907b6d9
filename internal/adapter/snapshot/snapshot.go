// Package snapshot persists a loaded store to a versioned SQLite file so later
// runs can skip fetching and cleaning the source export.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
	"github.com/couchcryptid/street-parking-odds/internal/store"
)

// ErrUnsupportedVersion is returned for snapshot files whose schema version is
// missing or differs from FormatVersion.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Cache reads and writes the snapshot file at a fixed path.
type Cache struct {
	path    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Cache for the snapshot file at path.
func New(path string, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{path: path, logger: logger, metrics: metrics}
}

// Path returns the snapshot file location.
func (c *Cache) Path() string { return c.path }

// Load reads the snapshot. ok is false when no snapshot file exists.
func (c *Cache) Load(ctx context.Context) (st *store.Store, ok bool, err error) {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		c.metrics.SnapshotLoads.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	st, meta, err := read(ctx, c.path)
	if err != nil {
		c.metrics.SnapshotLoads.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("read snapshot %s: %w", c.path, err)
	}

	c.metrics.SnapshotLoads.WithLabelValues("hit").Inc()
	c.logger.Info("snapshot loaded",
		"path", c.path,
		"rows", meta.Rows,
		"source", meta.Source,
		"saved_at", meta.SavedAt,
	)
	return st, true, nil
}

// Save writes st to the snapshot path, replacing any previous file only once
// the new one is complete.
func (c *Cache) Save(ctx context.Context, st *store.Store) error {
	if err := c.save(ctx, st); err != nil {
		c.metrics.SnapshotSaves.WithLabelValues("error").Inc()
		return err
	}
	c.metrics.SnapshotSaves.WithLabelValues("success").Inc()
	c.logger.Info("snapshot saved", "path", c.path, "rows", st.Len())
	return nil
}

func (c *Cache) save(ctx context.Context, st *store.Store) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	_ = os.Remove(tmp)

	if err := write(ctx, tmp, st, c.logger); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", c.path, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot %s: %w", c.path, err)
	}
	return nil
}

func write(ctx context.Context, path string, st *store.Store, logger *slog.Logger) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := migrate(ctx, db, logger); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := st.Stats()
	dropped, err := json.Marshal(stats.Dropped)
	if err != nil {
		return fmt.Errorf("encode drop counts: %w", err)
	}

	meta := domain.NewSnapshotMeta(FormatVersion, st.Source(), st.Len())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (id, format_version, source, saved_at, row_count, rows_read, dropped)
		VALUES (1, ?, ?, ?, ?, ?, ?)
	`, meta.FormatVersion, meta.Source, meta.SavedAt.Format(time.RFC3339Nano), meta.Rows,
		stats.RowsRead, string(dropped)); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (seq, element_key, region, observed_at, unit_desc, parking_spaces, vehicle_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range st.Observations() {
		if _, err := stmt.ExecContext(ctx,
			i, o.ElementKey, o.Region, o.ObservedAt.Format(time.RFC3339Nano), o.UnitDesc,
			nullCount(o.ParkingSpaces), nullCount(o.VehicleCount),
		); err != nil {
			return fmt.Errorf("insert observation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func read(ctx context.Context, path string) (*store.Store, domain.SnapshotMeta, error) {
	var meta domain.SnapshotMeta

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, meta, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	version, err := schemaVersion(ctx, db)
	if err != nil {
		return nil, meta, fmt.Errorf("schema version: %w", err)
	}
	if version != FormatVersion {
		return nil, meta, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var (
		savedAt, dropped string
		stats            store.LoadStats
	)
	err = db.QueryRowContext(ctx,
		"SELECT format_version, source, saved_at, row_count, rows_read, dropped FROM snapshot_meta WHERE id = 1",
	).Scan(&meta.FormatVersion, &meta.Source, &savedAt, &meta.Rows, &stats.RowsRead, &dropped)
	if err != nil {
		return nil, meta, fmt.Errorf("read meta: %w", err)
	}
	if meta.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, meta, fmt.Errorf("parse saved_at: %w", err)
	}
	if err := json.Unmarshal([]byte(dropped), &stats.Dropped); err != nil {
		return nil, meta, fmt.Errorf("parse drop counts: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT element_key, region, observed_at, unit_desc, parking_spaces, vehicle_count
		FROM observations
		ORDER BY seq
	`)
	if err != nil {
		return nil, meta, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	obs := make([]domain.Observation, 0, meta.Rows)
	for rows.Next() {
		var (
			o                domain.Observation
			ts               string
			spaces, vehicles sql.NullFloat64
		)
		if err := rows.Scan(&o.ElementKey, &o.Region, &ts, &o.UnitDesc, &spaces, &vehicles); err != nil {
			return nil, meta, fmt.Errorf("scan observation: %w", err)
		}
		o.ParkingSpaces = countOf(spaces)
		o.VehicleCount = countOf(vehicles)
		if o.ObservedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, meta, fmt.Errorf("parse observed_at: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, meta, err
	}
	if len(obs) != meta.Rows {
		return nil, meta, fmt.Errorf("snapshot truncated: %d of %d rows", len(obs), meta.Rows)
	}

	stats.RowsKept = len(obs)
	return store.Restore(obs, meta.Source, stats), meta, nil
}

// Missing counts are NaN in memory and NULL on disk.
func nullCount(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func countOf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
