package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is returned when a schema column cannot be located in a header.
var ErrMissingColumn = errors.New("missing column")

// Column names one retained field of the source export and its documented position.
type Column struct {
	Header   string
	Position int
}

// Schema describes the six columns the engine reads from the source export.
type Schema struct {
	ElementKey    Column
	Region        Column
	Timestamp     Column
	UnitDesc      Column
	ParkingSpaces Column
	VehicleCount  Column
}

// DefaultSchema matches the Seattle annual parking study export.
var DefaultSchema = Schema{
	ElementKey:    Column{Header: "Elmntkey", Position: 0},
	Region:        Column{Header: "Study_Area", Position: 1},
	Timestamp:     Column{Header: "Date Time", Position: 3},
	UnitDesc:      Column{Header: "Unitdesc", Position: 5},
	ParkingSpaces: Column{Header: "Parking_Spaces", Position: 7},
	VehicleCount:  Column{Header: "Total_Vehicle_Count", Position: 8},
}

// Columns lists the schema columns in export order.
func (s Schema) Columns() []Column {
	return []Column{s.ElementKey, s.Region, s.Timestamp, s.UnitDesc, s.ParkingSpaces, s.VehicleCount}
}

// MinWidth is the number of fields a row needs to hold every documented position.
func (s Schema) MinWidth() int {
	width := 0
	for _, c := range s.Columns() {
		if c.Position+1 > width {
			width = c.Position + 1
		}
	}
	return width
}

// ColumnIndex holds resolved field positions for one source file.
type ColumnIndex struct {
	ElementKey    int
	Region        int
	Timestamp     int
	UnitDesc      int
	ParkingSpaces int
	VehicleCount  int
}

// Width is the minimum row length that covers every resolved position.
func (ix ColumnIndex) Width() int {
	width := 0
	for _, p := range []int{ix.ElementKey, ix.Region, ix.Timestamp, ix.UnitDesc, ix.ParkingSpaces, ix.VehicleCount} {
		if p+1 > width {
			width = p + 1
		}
	}
	return width
}

// Resolve locates each schema column in a header row. Columns are matched by
// name, ignoring case, spaces and underscores. A column whose name is absent
// falls back to its documented position when the header is wide enough; those
// headers are returned in fallbacks so callers can log them.
func (s Schema) Resolve(header []string) (ix ColumnIndex, fallbacks []string, err error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := byName[key]; !seen {
			byName[key] = i
		}
	}

	resolve := func(c Column) (int, error) {
		if i, ok := byName[normalizeHeader(c.Header)]; ok {
			return i, nil
		}
		if len(header) >= s.MinWidth() {
			fallbacks = append(fallbacks, c.Header)
			return c.Position, nil
		}
		return 0, fmt.Errorf("%w %q: header has %d fields, need %d", ErrMissingColumn, c.Header, len(header), s.MinWidth())
	}

	targets := []struct {
		col Column
		dst *int
	}{
		{s.ElementKey, &ix.ElementKey},
		{s.Region, &ix.Region},
		{s.Timestamp, &ix.Timestamp},
		{s.UnitDesc, &ix.UnitDesc},
		{s.ParkingSpaces, &ix.ParkingSpaces},
		{s.VehicleCount, &ix.VehicleCount},
	}
	for _, t := range targets {
		pos, err := resolve(t.col)
		if err != nil {
			return ColumnIndex{}, nil, err
		}
		*t.dst = pos
	}
	return ix, fallbacks, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}
