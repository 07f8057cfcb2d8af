// Package postgres opens the archive database.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/CTIDashboard/go-api/cti/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultDSN points at a local development database.
const DefaultDSN = "host=localhost user=postgres password=password dbname=cti port=5432 sslmode=disable"

// Connect opens the database at dsn and migrates the archive schema.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	slog.Debug("Connected to archive database")
	return db, nil
}

// Migrate creates or updates the archive tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ScanRecord{}); err != nil {
		return fmt.Errorf("error migrating database schema: %w", err)
	}
	return nil
}
