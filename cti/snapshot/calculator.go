package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/aggregate"
	"github.com/CTIDashboard/go-api/cti/store"
	"github.com/CTIDashboard/go-api/cti/threat"
)

const keyPrefix = "cti:snapshot:"

// idLayout formats snapshot IDs, e.g. 2025-11-03-143025.
const idLayout = "2006-01-02-150405"

// ErrExists is returned by Save when the snapshot ID is already taken.
var ErrExists = errors.New("snapshot already exists")

// Calculator computes and stores risk snapshots.
type Calculator struct {
	kvStore store.KVStore
	now     func() time.Time
	// TopCountries bounds the per-country breakdown kept in each snapshot.
	TopCountries int
}

// NewCalculator creates a new Calculator instance
func NewCalculator(kvStore store.KVStore) *Calculator {
	return &Calculator{kvStore: kvStore, now: time.Now, TopCountries: 20}
}

// Calculate builds a snapshot from a history snapshot.
// snapshotID can be empty (a timestamp-based ID is generated).
func (sc *Calculator) Calculate(entries []cti.HistoryEntry, snapshotID string) *RiskSnapshot {
	startTime := time.Now()
	now := sc.now().UTC()

	if snapshotID == "" {
		snapshotID = now.Format(idLayout)
	}

	report := aggregate.Aggregate(entries)

	rates := make(map[string]float64, len(report.Providers))
	for p, pa := range report.Providers {
		rates[string(p)] = pa.SuccessRate
	}

	return &RiskSnapshot{
		SnapshotID: snapshotID,
		Timestamp:  now,
		Counts: RiskCounts{
			Total:  report.TotalScans,
			High:   report.RiskBands[threat.LevelHigh],
			Medium: report.RiskBands[threat.LevelMedium],
			Low:    report.RiskBands[threat.LevelLow],
		},
		ByCountry: report.TopCountries(sc.TopCountries),
		Metadata: Metadata{
			Countries:          len(report.Countries),
			AverageScore:       report.AverageScore,
			ProviderRates:      rates,
			SnapshotDurationMs: time.Since(startTime).Milliseconds(),
		},
	}
}

// Save stores snapshot in the KV store. It never overwrites an existing
// snapshot.
func (sc *Calculator) Save(ctx context.Context, snapshot *RiskSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	ok, err := sc.kvStore.SetValueNX(ctx, keyPrefix+snapshot.SnapshotID, string(data))
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, snapshot.SnapshotID)
	}
	return nil
}
