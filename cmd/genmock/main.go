// Command genmock writes a deterministic synthetic parking occupancy export in
// the source CSV layout, then reads it back through the store loader so the
// printed stats match what the application will see.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/occupancy.csv -zones 40 -days 5
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/street-parking-odds/internal/observability"
	"github.com/couchcryptid/street-parking-odds/internal/store"
)

const sentinelTimestamp = "1-00-00 00:00:00"

// exportLayout is the timestamp format used by the public export.
const exportLayout = "01/02/2006 03:04:05 PM"

var header = []string{
	"Elmntkey", "Study_Area", "Sub_Area", "Date Time", "Time_Stamp",
	"Unitdesc", "Side", "Parking_Spaces", "Total_Vehicle_Count",
}

var baseDate = time.Date(2014, time.June, 2, 0, 0, 0, 0, time.UTC)

type area struct {
	name    string
	avenues []string
	streets []string
}

var areas = []area{
	{
		name:    "Belltown",
		avenues: []string{"1ST AVE", "2ND AVE", "3RD AVE", "4TH AVE"},
		streets: []string{"BELL ST", "BATTERY ST", "BLANCHARD ST", "LENORA ST"},
	},
	{
		name:    "South Lake Union",
		avenues: []string{"WESTLAKE AVE N", "TERRY AVE N", "BOREN AVE N"},
		streets: []string{"MERCER ST", "REPUBLICAN ST", "HARRISON ST", "THOMAS ST"},
	},
	{
		name:    "Commercial Core",
		avenues: []string{"3RD AVE", "4TH AVE", "5TH AVE", "6TH AVE"},
		streets: []string{"PIKE ST", "PINE ST", "UNION ST", "UNIVERSITY ST"},
	},
	{
		name:    "Capitol Hill",
		avenues: []string{"BROADWAY", "10TH AVE", "11TH AVE"},
		streets: []string{"E PINE ST", "E OLIVE WAY", "E JOHN ST"},
	},
}

type zone struct {
	key    int64
	area   string
	sub    string
	desc   string
	side   string
	spaces int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the CSV export")
	zones := flag.Int("zones", 40, "number of curb zones")
	days := flag.Int("days", 5, "number of survey days")
	seed := flag.Uint64("seed", 1, "random seed")
	sentinelEvery := flag.Int("sentinel-every", 50, "emit a sentinel timestamp row every N rows (0 disables)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *zones <= 0 || *days <= 0 {
		return fmt.Errorf("-zones and -days must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	zs := buildZones(rng, *zones)

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	rows, sentinels, err := writeExport(f, rng, zs, *days, *sentinelEvery)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	log.Printf("wrote %s: %d rows (%d sentinel)", *out, rows, sentinels)

	return printStats(*out)
}

func buildZones(rng *rand.Rand, n int) []zone {
	zs := make([]zone, 0, n)
	for i := range n {
		a := areas[i%len(areas)]
		avenue := a.avenues[rng.IntN(len(a.avenues))]
		j := rng.IntN(len(a.streets) - 1)
		desc := fmt.Sprintf("%s BETWEEN %s AND %s", avenue, a.streets[j], a.streets[j+1])
		side := "E"
		if rng.IntN(2) == 0 {
			side = "W"
		}
		zs = append(zs, zone{
			key:    int64(10000 + i*7),
			area:   a.name,
			sub:    fmt.Sprintf("%s %d", a.name, 1+i%3),
			desc:   desc,
			side:   side,
			spaces: 4 + rng.IntN(12),
		})
	}
	return zs
}

// demand approximates the share of stalls taken at a given hour: low overnight,
// a midday peak, and a busier evening.
func demand(hour int) float64 {
	h := float64(hour)
	midday := math.Exp(-math.Pow(h-12.5, 2) / 8)
	evening := 0.8 * math.Exp(-math.Pow(h-19, 2)/6)
	return 0.15 + 0.8*math.Max(midday, evening)
}

func writeExport(w io.Writer, rng *rand.Rand, zs []zone, days, sentinelEvery int) (rows, sentinels int, err error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, 0, err
	}

	surveyHours := []int{8, 10, 12, 14, 16, 18, 20}
	for d := range days {
		day := baseDate.AddDate(0, 0, d)
		for _, hour := range surveyHours {
			for _, z := range zs {
				at := day.Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(60))*time.Minute)

				p := math.Min(1, math.Max(0, demand(hour)+rng.NormFloat64()*0.15))
				vehicles := int(math.Round(p * float64(z.spaces)))

				stamp := at.Format(exportLayout)
				rows++
				if sentinelEvery > 0 && rows%sentinelEvery == 0 {
					stamp = sentinelTimestamp
					sentinels++
				}

				record := []string{
					strconv.FormatInt(z.key, 10),
					z.area,
					z.sub,
					stamp,
					at.Format("1504"),
					z.desc,
					z.side,
					strconv.Itoa(z.spaces),
					strconv.Itoa(vehicles),
				}
				if err := cw.Write(record); err != nil {
					return rows, sentinels, err
				}
			}
		}
	}

	cw.Flush()
	return rows, sentinels, cw.Error()
}

func printStats(path string) error {
	loader := store.NewLoader(0, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	st, err := loader.Load(context.Background(), path)
	if err != nil {
		return err
	}

	stats := st.Stats()
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Rows read: %d, kept: %d\n", stats.RowsRead, stats.RowsKept)

	reasons := make([]string, 0, len(stats.Dropped))
	for r := range stats.Dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  dropped %s: %d\n", r, stats.Dropped[r])
	}

	perRegion := map[string]int{}
	for _, o := range st.Observations() {
		perRegion[o.Region]++
	}
	fmt.Printf("Regions (%d):\n", len(st.Regions()))
	for _, a := range areas {
		fmt.Printf("  %s=%d\n", a.name, perRegion[a.name])
	}
	return nil
}
