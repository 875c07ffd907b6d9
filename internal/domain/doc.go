// Package domain models street-parking occupancy observations.
//
// # Data Source
//
// Observations come from a city parking-occupancy study published as a CSV
// export (by default the Seattle annual study at data.seattle.gov). Each row is
// one surveyor count of a curb zone at a point in time. The export has more
// columns than the engine needs; six are retained (see [DefaultSchema]).
//
// # Column Conventions
//
// Element key ("Elmntkey"):
//
//	Integer identifier of a physical curb-parking zone. The same key appears
//	once per survey pass, so it is used to deduplicate capacity totals.
//
// Region ("Study_Area"):
//
//	Free-text neighborhood label, e.g. "Commercial Core" or "South Lake Union".
//	Matching is substring based; casing follows the source data.
//
// Timestamp ("Date Time"):
//
//	Survey time. Seen in several layouts across exports:
//	  "04/26/2018 08:00:00 AM"    US layout with meridiem
//	  "2018-04-26 08:00:00"       ISO-ish with a space
//	  "2018-04-26T08:00:00"       ISO without zone
//	"1-00-00 00:00:00" is the export's sentinel for a missing value and, like
//	blank or unparsable values, drops the row. This is the only reason a
//	well-formed CSV record is dropped. Kept rows are normalized to the
//	canonical form "2006-01-02T15:04:05" (see [Observation.Timestamp]).
//
// Street descriptor ("Unitdesc"):
//
//	Names the block face, e.g. "TERRY AVE N BETWEEN HARRISON ST AND REPUBLICAN ST".
//	Intersections are detected by two street names co-occurring in one descriptor.
//
// Counts ("Parking_Spaces", "Total_Vehicle_Count"):
//
//	Stall capacity and stalls occupied. Fractional values appear in some
//	exports and are kept as-is. Blank, negative, or non-numeric counts are kept
//	as NaN: such a row still names a street and counts as a survey without a
//	free stall, but is skipped by capacity totals and occupancy averages.
//	A blank key likewise keeps the row, with [NoElementKey].
//	Occupied may exceed capacity (double parking); this is not enforced.
//
// # Confidence Labels
//
// The share of observations at an intersection and hour with at least one free
// stall maps to a label:
//
//	>=90% VERY HIGH | >=75% HIGH | >=50% MEDIUM | >=25% LOW | <25% VERY LOW
//
// When no observation falls in the requested hour the label is HIGH: surveys
// are not run in hours where curb demand is low (e.g. 01:00).
package domain
