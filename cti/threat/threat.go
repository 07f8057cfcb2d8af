// Package threat buckets numeric threat scores into risk levels.
//
// Every view of a score (single scan, history rows, aggregates, archive
// statistics) goes through Classify so the thresholds stay consistent.
package threat

// Level is a risk bucket.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Levels lists buckets from most to least severe.
var Levels = []Level{LevelHigh, LevelMedium, LevelLow}

// Lower bounds, inclusive.
const (
	HighThreshold   = 70
	MediumThreshold = 40
)

// Classification is a bucket plus its presentation metadata.
type Classification struct {
	Level Level  `json:"level"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// LevelFor returns the bucket for score.
func LevelFor(score int) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Classify returns the bucket and presentation metadata for score.
func Classify(score int) Classification {
	switch LevelFor(score) {
	case LevelHigh:
		return Classification{Level: LevelHigh, Label: "HIGH RISK", Icon: "🚨"}
	case LevelMedium:
		return Classification{Level: LevelMedium, Label: "MEDIUM RISK", Icon: "⚠️"}
	default:
		return Classification{Level: LevelLow, Label: "LOW RISK", Icon: "✅"}
	}
}

// ClassifyOptional treats a missing score as 0.
func ClassifyOptional(score *int) Classification {
	if score == nil {
		return Classify(0)
	}
	return Classify(*score)
}

// SourceQuality rates how many providers contributed to an assessment.
func SourceQuality(available int) string {
	switch {
	case available >= 3:
		return "High"
	case available == 2:
		return "Medium"
	default:
		return "Basic"
	}
}
