package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the canonical string form of an observation time.
const TimestampLayout = "2006-01-02T15:04:05"

// Observation is one surveyed count of a curb-parking zone. Counts missing
// from the export are NaN; a missing zone key is NoElementKey.
type Observation struct {
	ElementKey    int64
	Region        string
	ObservedAt    time.Time
	UnitDesc      string
	ParkingSpaces float64
	VehicleCount  float64
}

// Timestamp returns the observation time in canonical form.
func (o Observation) Timestamp() string {
	return o.ObservedAt.Format(TimestampLayout)
}

// HasFreeSpace reports whether at least one stall was open at survey time.
// A missing count is never free.
func (o Observation) HasFreeSpace() bool {
	if math.IsNaN(o.ParkingSpaces) || math.IsNaN(o.VehicleCount) {
		return false
	}
	return o.ParkingSpaces-o.VehicleCount >= 1
}

// IntersectionSummary bundles the answers for one intersection and time of day.
type IntersectionSummary struct {
	StreetA          string     `json:"street_a"`
	StreetB          string     `json:"street_b"`
	Time             string     `json:"time"`
	Observations     int        `json:"observations"`
	TotalSpaces      float64    `json:"total_spaces"`
	AverageOccupancy float64    `json:"average_occupancy"`
	MatchedAtTime    int        `json:"matched_at_time"`
	AvailableAtTime  int        `json:"available_at_time"`
	Confidence       Confidence `json:"confidence"`
}

// QueryAnswer is the audit record of one answered intersection query.
type QueryAnswer struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"session_id"`
	Region     string              `json:"region"`
	Summary    IntersectionSummary `json:"summary"`
	AnsweredAt time.Time           `json:"answered_at"`
}

// NewQueryAnswer stamps a summary with a fresh ID and the package clock.
func NewQueryAnswer(sessionID, region string, summary IntersectionSummary) QueryAnswer {
	return QueryAnswer{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Region:     region,
		Summary:    summary,
		AnsweredAt: clock.Now().UTC(),
	}
}

// SnapshotMeta describes a persisted copy of the loaded dataset.
type SnapshotMeta struct {
	FormatVersion int
	Source        string
	SavedAt       time.Time
	Rows          int
}

// NewSnapshotMeta records the save time using the package clock.
func NewSnapshotMeta(formatVersion int, source string, rows int) SnapshotMeta {
	return SnapshotMeta{
		FormatVersion: formatVersion,
		Source:        source,
		SavedAt:       clock.Now().UTC(),
		Rows:          rows,
	}
}
