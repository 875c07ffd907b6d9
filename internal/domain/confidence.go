package domain

// Confidence is a categorical estimate of finding an open stall.
type Confidence string

const (
	ConfidenceVeryHigh Confidence = "VERY HIGH"
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceMedium   Confidence = "MEDIUM"
	ConfidenceLow      Confidence = "LOW"
	ConfidenceVeryLow  Confidence = "VERY LOW"
)

// Percentage thresholds, checked in descending order.
const (
	thresholdVeryHigh = 90.0
	thresholdHigh     = 75.0
	thresholdMedium   = 50.0
	thresholdLow      = 25.0
)

// ConfidenceFor maps available/total observations to a label. An empty sample
// yields HIGH: no survey at that hour is taken as a low-demand hour.
func ConfidenceFor(available, total int) Confidence {
	if total <= 0 {
		return ConfidenceHigh
	}

	pct := float64(available) / float64(total) * 100
	switch {
	case pct >= thresholdVeryHigh:
		return ConfidenceVeryHigh
	case pct >= thresholdHigh:
		return ConfidenceHigh
	case pct >= thresholdMedium:
		return ConfidenceMedium
	case pct >= thresholdLow:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
