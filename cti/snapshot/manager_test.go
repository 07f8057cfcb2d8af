package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/store"
)

func testEntries() []cti.HistoryEntry {
	return []cti.HistoryEntry{
		{Input: "1.1.1.1", ThreatScore: 85, Location: cti.Location{Country: "Russia"}},
		{Input: "2.2.2.2", ThreatScore: 45, Location: cti.Location{Country: "Germany"}},
		{Input: "3.3.3.3", ThreatScore: 10, Location: cti.Location{Country: "Germany"}},
		{Input: "example.com", ThreatScore: 0},
	}
}

func TestManagerCreateAndRetrieve(t *testing.T) {
	t.Log("\n🔍 Testing Manager create and retrieve...")

	manager := NewManager(store.NewMemoryStore())
	ctx := context.Background()

	created, err := manager.Create(ctx, testEntries(), "2025-11-03-143025")
	if err != nil {
		t.Fatalf("❌ Failed to create snapshot: %v", err)
	}

	retrieved, err := manager.Get(ctx, "2025-11-03-143025")
	if err != nil {
		t.Fatalf("❌ Failed to retrieve snapshot: %v", err)
	}

	if retrieved.Counts != created.Counts {
		t.Errorf("❌ Counts mismatch: got %+v, want %+v", retrieved.Counts, created.Counts)
	}
	if retrieved.Counts.Total != 4 || retrieved.Counts.High != 1 || retrieved.Counts.Medium != 1 || retrieved.Counts.Low != 2 {
		t.Errorf("❌ Unexpected counts: %+v", retrieved.Counts)
	}
	if len(retrieved.ByCountry) != 3 || retrieved.ByCountry[0].Country != "Germany" {
		t.Errorf("❌ Unexpected country breakdown: %+v", retrieved.ByCountry)
	}
	if retrieved.Metadata.Countries != 3 {
		t.Errorf("❌ Expected 3 countries (including Unknown), got %d", retrieved.Metadata.Countries)
	}

	t.Log("✅ Snapshot create and retrieve working")
}

func TestCalculatorGeneratesTimestampID(t *testing.T) {
	calc := NewCalculator(store.NewMemoryStore())
	calc.now = func() time.Time { return time.Date(2025, 11, 3, 14, 30, 25, 0, time.UTC) }

	snap := calc.Calculate(nil, "")
	if snap.SnapshotID != "2025-11-03-143025" {
		t.Errorf("❌ Expected generated ID 2025-11-03-143025, got %s", snap.SnapshotID)
	}
	if snap.Counts.Total != 0 {
		t.Errorf("❌ Expected empty counts, got %+v", snap.Counts)
	}
}

func TestManagerListAndTrend(t *testing.T) {
	t.Log("\n🔍 Testing snapshot listing and trend data...")

	manager := NewManager(store.NewMemoryStore())
	ctx := context.Background()

	for day := 1; day <= 12; day++ {
		id := fmt.Sprintf("2025-01-%02d-000000", day)
		if _, err := manager.Create(ctx, testEntries(), id); err != nil {
			t.Fatalf("❌ Failed to create snapshot %s: %v", id, err)
		}
	}

	ids, err := manager.List(ctx)
	if err != nil {
		t.Fatalf("❌ Failed to list snapshots: %v", err)
	}
	if len(ids) != 12 || ids[0] != "2025-01-12-000000" {
		t.Errorf("❌ Expected 12 snapshots newest first, got %v", ids)
	}

	trend, err := manager.Trend(ctx, 50)
	if err != nil {
		t.Fatalf("❌ Failed to get trend: %v", err)
	}
	if len(trend) != MaxTrend {
		t.Errorf("❌ Expected %d trend snapshots, got %d", MaxTrend, len(trend))
	}

	latest, err := manager.Latest(ctx)
	if err != nil || latest.SnapshotID != "2025-01-12-000000" {
		t.Errorf("❌ Unexpected latest snapshot: %v %v", latest, err)
	}

	t.Log("✅ Listing and trend data working")
}

func TestManagerCleanup(t *testing.T) {
	kv := store.NewMemoryStore()
	manager := NewManager(kv)
	ctx := context.Background()

	for i := 0; i < MaxSnapshots+5; i++ {
		id := fmt.Sprintf("2025-02-01-%06d", i)
		if _, err := manager.Create(ctx, nil, id); err != nil {
			t.Fatalf("❌ Failed to create snapshot: %v", err)
		}
	}

	ids, _ := manager.List(ctx)
	if len(ids) != MaxSnapshots {
		t.Errorf("❌ Expected %d snapshots after cleanup, got %d", MaxSnapshots, len(ids))
	}
	if _, err := manager.Get(ctx, "2025-02-01-000000"); err == nil {
		t.Error("❌ Oldest snapshot should have been deleted")
	}
}

func TestManagerLatestEmpty(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())
	if _, err := manager.Latest(context.Background()); err == nil {
		t.Error("❌ Expected error with no snapshots")
	}
}

func TestTrendSkipsCorruptSnapshots(t *testing.T) {
	kv := store.NewMemoryStore()
	manager := NewManager(kv)
	ctx := context.Background()

	if _, err := manager.Create(ctx, testEntries(), "2025-03-01-000000"); err != nil {
		t.Fatal(err)
	}
	_ = kv.SetValue(ctx, keyPrefix+"2025-03-02-000000", "{not json")

	trend, err := manager.Trend(ctx, 5)
	if err != nil {
		t.Fatalf("❌ Trend failed: %v", err)
	}
	if len(trend) != 1 {
		t.Errorf("❌ Expected corrupt snapshot to be skipped, got %d", len(trend))
	}
}

func TestManagerGeneratedIDsDoNotCollide(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())
	manager.Calculator().now = func() time.Time { return time.Date(2025, 11, 3, 14, 30, 25, 0, time.UTC) }
	ctx := context.Background()

	var got []string
	for i := 0; i < 3; i++ {
		snap, err := manager.Create(ctx, testEntries(), "")
		if err != nil {
			t.Fatalf("❌ Failed to create snapshot %d: %v", i, err)
		}
		got = append(got, snap.SnapshotID)
	}
	want := []string{"2025-11-03-143025", "2025-11-03-143025-02", "2025-11-03-143025-03"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("❌ Expected IDs %v, got %v", want, got)
	}

	ids, _ := manager.List(ctx)
	if len(ids) != 3 || ids[0] != "2025-11-03-143025-03" {
		t.Errorf("❌ Expected 3 snapshots newest first, got %v", ids)
	}
}

func TestManagerExplicitIDConflict(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := manager.Create(ctx, testEntries(), "weekly"); err != nil {
		t.Fatal(err)
	}
	_, err := manager.Create(ctx, nil, "weekly")
	if !errors.Is(err, ErrExists) {
		t.Errorf("❌ Expected ErrExists for a reused ID, got %v", err)
	}
	snap, _ := manager.Get(ctx, "weekly")
	if snap == nil || snap.Counts.Total != 4 {
		t.Errorf("❌ Original snapshot should be untouched, got %+v", snap)
	}
}

func TestManagerListsIDsWithSlashes(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := manager.Create(ctx, nil, "team/a"); err != nil {
		t.Fatal(err)
	}
	ids, err := manager.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "team/a" {
		t.Errorf("❌ Expected [team/a], got %v", ids)
	}
	latest, err := manager.Latest(ctx)
	if err != nil || latest.SnapshotID != "team/a" {
		t.Errorf("❌ Unexpected latest snapshot: %v %v", latest, err)
	}
}
