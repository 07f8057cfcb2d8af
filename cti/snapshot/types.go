package snapshot

import (
	"time"

	"github.com/CTIDashboard/go-api/cti/aggregate"
)

// RiskSnapshot is a point-in-time record of the history's risk posture.
type RiskSnapshot struct {
	SnapshotID string                       `json:"snapshot_id"` // YYYY-MM-DD-HHMMSS
	Timestamp  time.Time                    `json:"timestamp"`
	Counts     RiskCounts                   `json:"counts"`
	ByCountry  []aggregate.CountryAggregate `json:"by_country"`
	Metadata   Metadata                     `json:"metadata"`
}

// RiskCounts counts scans per risk bucket.
type RiskCounts struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Metadata describes the history the snapshot was taken from.
type Metadata struct {
	Countries          int                `json:"countries"`
	AverageScore       float64            `json:"average_score"`
	ProviderRates      map[string]float64 `json:"provider_success_rates"`
	SnapshotDurationMs int64              `json:"snapshot_duration_ms"`
}
