// Command validate performs end-to-end integrity checks on an occupancy export:
// row cleaning, region derivation, query invariants over a sample set, and a
// snapshot round-trip. It exits non-zero if any phase fails.
//
// Usage:
//
//	go run ./cmd/validate -csv data/mock/occupancy.csv
//	go run ./cmd/validate -csv data/mock/occupancy.csv -snapshot resources/study.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/street-parking-odds/internal/adapter/snapshot"
	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
	"github.com/couchcryptid/street-parking-odds/internal/query"
	"github.com/couchcryptid/street-parking-odds/internal/store"
)

// sampleClocks are the times of day checked for every sample intersection.
var sampleClocks = []string{"00:00", "08:30", "12:00", "17:45", "23:59"}

// maxSamples bounds the number of intersections checked.
const maxSamples = 50

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type sample struct{ a, b string }

func main() {
	csvPath := flag.String("csv", "", "path or URL of the occupancy CSV export")
	snapPath := flag.String("snapshot", "", "existing snapshot to compare against (default: round-trip through a temp file)")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*csvPath, *snapPath))
}

func run(csvPath, snapPath string) int {
	// Fixed clock so snapshot metadata is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2014, time.June, 30, 0, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	fmt.Println("=== Parking Occupancy Integrity Validation ===")
	fmt.Println()

	st, err := store.NewLoader(0, time.Minute, logger, metrics).Load(ctx, csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load export: %v\n", err)
		return 1
	}

	samples := pickSamples(st.Observations())

	phases := []*phase{
		validateCleaning(st),
		validateRegions(st),
		validateQueries(st, samples, metrics),
		validateSnapshot(ctx, st, snapPath, samples, logger, metrics),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	stats := st.Stats()
	fmt.Println()
	fmt.Printf("Rows: %d read, %d kept, %d regions, %d sample intersections\n",
		stats.RowsRead, stats.RowsKept, len(st.Regions()), len(samples))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// pickSamples derives intersections from descriptors of the form
// "<street> BETWEEN <cross> AND <cross>".
func pickSamples(obs []domain.Observation) []sample {
	seen := map[sample]bool{}
	var samples []sample
	for _, o := range obs {
		street, rest, ok := strings.Cut(o.UnitDesc, " BETWEEN ")
		if !ok {
			continue
		}
		cross, _, _ := strings.Cut(rest, " AND ")
		p := sample{a: strings.TrimSpace(street), b: strings.TrimSpace(cross)}
		if p.a == "" || p.b == "" || seen[p] {
			continue
		}
		seen[p] = true
		samples = append(samples, p)
		if len(samples) == maxSamples {
			break
		}
	}
	return samples
}

func validateCleaning(st *store.Store) *phase {
	p := &phase{name: "Phase 1: Row cleaning"}

	stats := st.Stats()
	dropped := 0
	for _, n := range stats.Dropped {
		dropped += n
	}
	if stats.RowsKept+dropped != stats.RowsRead {
		p.errorf("kept %d + dropped %d != read %d", stats.RowsKept, dropped, stats.RowsRead)
	}
	if stats.RowsKept != st.Len() {
		p.errorf("stats report %d kept rows, store holds %d", stats.RowsKept, st.Len())
	}

	for i, o := range st.Observations() {
		if o.ObservedAt.IsZero() {
			p.errorf("row %d: zero timestamp", i)
		}
		if _, err := domain.ParseTimestamp(o.Timestamp()); err != nil {
			p.errorf("row %d: canonical timestamp %q does not reparse", i, o.Timestamp())
		}
		if o.ParkingSpaces < 0 || o.VehicleCount < 0 {
			p.errorf("row %d: negative count (spaces=%g vehicles=%g)", i, o.ParkingSpaces, o.VehicleCount)
		}
		if len(p.errors) > 20 {
			p.errorf("too many errors, stopping")
			break
		}
	}
	return p
}

func validateRegions(st *store.Store) *phase {
	p := &phase{name: "Phase 2: Region derivation"}

	seen := map[string]bool{}
	var want []string
	for _, o := range st.Observations() {
		if seen[o.Region] {
			continue
		}
		seen[o.Region] = true
		want = append(want, strings.ToLower(o.Region))
	}

	for _, r := range st.Regions() {
		if r != strings.ToLower(r) {
			p.errorf("region %q is not lower-cased", r)
		}
	}
	if diff := cmp.Diff(want, st.Regions(), cmpopts.EquateEmpty()); diff != "" {
		p.errorf("region list differs from observations (-want +got):\n%s", diff)
	}
	return p
}

func validateQueries(st *store.Store, samples []sample, metrics *observability.Metrics) *phase {
	p := &phase{name: "Phase 3: Query invariants"}
	if len(samples) == 0 {
		p.errorf("no sample intersections found in descriptors")
		return p
	}

	e := query.New(st.Observations(), metrics)
	valid := map[domain.Confidence]bool{
		domain.ConfidenceVeryHigh: true, domain.ConfidenceHigh: true, domain.ConfidenceMedium: true,
		domain.ConfidenceLow: true, domain.ConfidenceVeryLow: true,
	}

	for _, pr := range samples {
		if !e.IsValidStreet(pr.a) || !e.IsValidStreet(pr.b) {
			p.errorf("%s / %s: sample street not found", pr.a, pr.b)
		}
		if e.IsValidIntersection(pr.a, pr.b) != e.IsValidIntersection(pr.b, pr.a) {
			p.errorf("%s / %s: intersection not symmetric", pr.a, pr.b)
		}
		if e.TotalSpaces(pr.a, pr.b) != e.TotalSpaces(pr.b, pr.a) {
			p.errorf("%s / %s: total spaces not symmetric", pr.a, pr.b)
		}
		for _, clock := range sampleClocks {
			s, err := e.Summary(pr.a, pr.b, clock)
			if err != nil {
				p.errorf("%s / %s at %s: %v", pr.a, pr.b, clock, err)
				continue
			}
			if !valid[s.Confidence] {
				p.errorf("%s / %s at %s: unknown label %q", pr.a, pr.b, clock, s.Confidence)
			}
			if s.AvailableAtTime > s.MatchedAtTime || s.MatchedAtTime > s.Observations {
				p.errorf("%s / %s at %s: counts out of order (%d available, %d matched, %d total)",
					pr.a, pr.b, clock, s.AvailableAtTime, s.MatchedAtTime, s.Observations)
			}
			if s.MatchedAtTime == 0 && s.Confidence != domain.ConfidenceHigh {
				p.errorf("%s / %s at %s: empty sample labelled %s", pr.a, pr.b, clock, s.Confidence)
			}
		}
	}
	return p
}

func validateSnapshot(ctx context.Context, st *store.Store, snapPath string, samples []sample, logger *slog.Logger, metrics *observability.Metrics) *phase {
	p := &phase{name: "Phase 4: Snapshot round-trip"}

	if snapPath == "" {
		dir, err := os.MkdirTemp("", "parking-validate-*")
		if err != nil {
			p.errorf("create temp dir: %v", err)
			return p
		}
		defer os.RemoveAll(dir)
		snapPath = filepath.Join(dir, "study.db")
		if err := snapshot.New(snapPath, logger, metrics).Save(ctx, st); err != nil {
			p.errorf("save: %v", err)
			return p
		}
	}

	loaded, ok, err := snapshot.New(snapPath, logger, metrics).Load(ctx)
	if err != nil {
		p.errorf("load: %v", err)
		return p
	}
	if !ok {
		p.errorf("snapshot %s not found", snapPath)
		return p
	}

	if diff := cmp.Diff(st.Regions(), loaded.Regions()); diff != "" {
		p.errorf("regions differ (-export +snapshot):\n%s", diff)
	}
	if st.Len() != loaded.Len() {
		p.errorf("row count: export %d, snapshot %d", st.Len(), loaded.Len())
		return p
	}
	if !cmp.Equal(st.Observations(), loaded.Observations(), cmpopts.EquateNaNs()) {
		p.errorf("observations differ")
	}

	before := query.New(st.Observations(), metrics)
	after := query.New(loaded.Observations(), metrics)
	for _, pr := range samples {
		for _, clock := range sampleClocks {
			sb, _ := before.Summary(pr.a, pr.b, clock)
			sa, _ := after.Summary(pr.a, pr.b, clock)
			if diff := cmp.Diff(sb, sa); diff != "" {
				p.errorf("%s / %s at %s: answers differ:\n%s", pr.a, pr.b, clock, diff)
			}
		}
	}
	return p
}
