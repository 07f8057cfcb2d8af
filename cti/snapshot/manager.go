// Package snapshot records point-in-time risk snapshots of the scan history
// for trend views. Snapshots are historical records: live views still
// recompute from the history itself.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/store"
)

// Retention limits.
const (
	MaxSnapshots = 30
	MaxTrend     = 10
)

// maxIDSuffix bounds the "-NN" suffixes tried when a generated ID is taken.
const maxIDSuffix = 99

// Manager handles snapshot CRUD operations and lifecycle management
type Manager struct {
	kvStore    store.KVStore
	calculator *Calculator
}

// NewManager creates a new Manager instance
func NewManager(kvStore store.KVStore) *Manager {
	return &Manager{
		kvStore:    kvStore,
		calculator: NewCalculator(kvStore),
	}
}

// Calculator returns the calculator used by Create.
func (sm *Manager) Calculator() *Calculator { return sm.calculator }

// Create computes, stores and returns a snapshot of entries. A generated ID
// that is already taken gets a "-02", "-03", ... suffix; an explicit one
// fails with ErrExists.
func (sm *Manager) Create(ctx context.Context, entries []cti.HistoryEntry, snapshotID string) (*RiskSnapshot, error) {
	snapshot := sm.calculator.Calculate(entries, snapshotID)

	base := snapshot.SnapshotID
	err := sm.calculator.Save(ctx, snapshot)
	for n := 2; snapshotID == "" && errors.Is(err, ErrExists) && n <= maxIDSuffix; n++ {
		snapshot.SnapshotID = fmt.Sprintf("%s-%02d", base, n)
		err = sm.calculator.Save(ctx, snapshot)
	}
	if err != nil {
		return nil, err
	}

	// Cleanup old snapshots after creating new one
	if err := sm.Cleanup(ctx); err != nil {
		slog.Warn("Failed to cleanup old snapshots", "error", err)
	}

	slog.Debug("Snapshot created", "id", snapshot.SnapshotID, "total", snapshot.Counts.Total)
	return snapshot, nil
}

// Get retrieves a specific snapshot by snapshot ID
func (sm *Manager) Get(ctx context.Context, snapshotID string) (*RiskSnapshot, error) {
	value, err := sm.kvStore.GetValue(ctx, keyPrefix+snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot not found for ID %s: %w", snapshotID, err)
	}

	var snapshot RiskSnapshot
	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// List retrieves all snapshot IDs, most recent first.
func (sm *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := sm.kvStore.ListKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, keyPrefix); id != "" && id != key {
			ids = append(ids, id)
		}
	}

	// The ID layout sorts chronologically.
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// Trend returns up to limit of the most recent snapshots (at most MaxTrend).
// Snapshots that fail to load are skipped.
func (sm *Manager) Trend(ctx context.Context, limit int) ([]*RiskSnapshot, error) {
	if limit <= 0 || limit > MaxTrend {
		limit = MaxTrend
	}

	ids, err := sm.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	snapshots := make([]*RiskSnapshot, 0, len(ids))
	for _, id := range ids {
		snapshot, err := sm.Get(ctx, id)
		if err != nil {
			slog.Debug("Skipping unreadable snapshot", "id", id, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// Cleanup keeps only the MaxSnapshots most recent snapshots.
func (sm *Manager) Cleanup(ctx context.Context) error {
	ids, err := sm.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) <= MaxSnapshots {
		return nil
	}

	for _, id := range ids[MaxSnapshots:] {
		key := keyPrefix + id
		if err := sm.kvStore.DeleteValue(ctx, key); err != nil {
			slog.Warn("Failed to delete old snapshot", "key", key, "error", err)
		}
	}
	return nil
}

// Latest retrieves the most recent snapshot.
func (sm *Manager) Latest(ctx context.Context) (*RiskSnapshot, error) {
	ids, err := sm.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no snapshots available")
	}
	return sm.Get(ctx, ids[0])
}
