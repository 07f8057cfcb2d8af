package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/archive"
	"github.com/CTIDashboard/go-api/cti/postgres"
	"github.com/google/uuid"
)

func main() {
	log.Println("Starting archive PostgreSQL connection test...")

	db, err := postgres.Connect(os.Getenv("CTI_POSTGRES_DSN"))
	if err != nil {
		log.Fatalf("❌ Failed to establish database connection: %v", err)
	}

	var result int
	if err := db.Raw("SELECT 1").Scan(&result).Error; err != nil {
		log.Fatalf("❌ Failed to execute query: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	arc := archive.New(db)
	probe := cti.HistoryEntry{
		ScanID:    "connection-test-" + uuid.NewString(),
		Input:     "127.0.0.1",
		Type:      cti.TargetIP,
		Timestamp: cti.Epoch(time.Now()),
		Location:  cti.Location{Country: cti.UnknownCountry},
		Status:    "completed",
	}
	if err := arc.Save(ctx, probe); err != nil {
		log.Fatalf("❌ Failed to write probe record: %v", err)
	}
	if _, err := arc.Get(ctx, probe.ScanID); err != nil {
		log.Fatalf("❌ Failed to read probe record back: %v", err)
	}
	if err := db.Exec("DELETE FROM scan_records WHERE scan_id = ?", probe.ScanID).Error; err != nil {
		log.Fatalf("❌ Failed to remove probe record: %v", err)
	}

	stats, err := arc.Stats(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to compute archive stats: %v", err)
	}

	fmt.Println("✅ Archive PostgreSQL connection test successful!")
	fmt.Printf("✅ %d scans archived (%d high risk)\n", stats.Total, stats.ByLevel["HIGH"])
}
