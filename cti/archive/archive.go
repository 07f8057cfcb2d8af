// Package archive keeps a long-term, queryable copy of scan history in
// PostgreSQL.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/postgres/models"
	"github.com/CTIDashboard/go-api/cti/threat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filters narrows an archive query.
type Filters struct {
	Limit     int
	Offset    int
	InputType cti.TargetType
	Level     threat.Level
	Country   string
	StartTime *time.Time
	EndTime   *time.Time
}

// Stats is the archive-wide rollup.
type Stats struct {
	Total     int            `json:"total"`
	ByLevel   map[string]int `json:"by_level"`
	ByType    map[string]int `json:"by_type"`
	ByCountry map[string]int `json:"by_country"`
}

// Archive reads and writes archived scan records.
type Archive struct {
	db *gorm.DB
}

// New creates a new Archive over db.
func New(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// Save archives entry. Saving a scan ID twice is a no-op.
func (a *Archive) Save(ctx context.Context, entry cti.HistoryEntry) error {
	record := ToRecord(entry)
	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "scan_id"}}, DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to archive scan %s: %w", entry.ScanID, err)
	}
	return nil
}

// Append lets the archive act as a history journal.
func (a *Archive) Append(ctx context.Context, entry cti.HistoryEntry) error {
	return a.Save(ctx, entry)
}

// Load returns the most recent MaxLimit archived entries, oldest first.
func (a *Archive) Load(ctx context.Context) ([]cti.HistoryEntry, error) {
	entries, _, err := a.Query(ctx, Filters{Limit: MaxLimit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Query returns matching entries, newest first, plus the total match count
// before pagination.
func (a *Archive) Query(ctx context.Context, filters Filters) ([]cti.HistoryEntry, int, error) {
	filters = NormalizeFilters(filters)

	query := a.db.WithContext(ctx).Model(&models.ScanRecord{})
	if filters.InputType != "" {
		query = query.Where("input_type = ?", string(filters.InputType))
	}
	if filters.Level != "" {
		query = query.Where("threat_level = ?", string(filters.Level))
	}
	if filters.Country != "" {
		query = query.Where("country = ?", filters.Country)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count scan records: %w", err)
	}

	var records []models.ScanRecord
	err := query.
		Order("timestamp DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query scan records: %w", err)
	}

	entries := make([]cti.HistoryEntry, len(records))
	for i, r := range records {
		entries[i] = ToEntry(r)
	}
	return entries, int(total), nil
}

// Get returns one archived entry by scan ID.
func (a *Archive) Get(ctx context.Context, scanID string) (cti.HistoryEntry, error) {
	var record models.ScanRecord
	err := a.db.WithContext(ctx).Where("scan_id = ?", scanID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cti.HistoryEntry{}, fmt.Errorf("scan not found: %s", scanID)
		}
		return cti.HistoryEntry{}, fmt.Errorf("failed to get scan: %w", err)
	}
	return ToEntry(record), nil
}

// Stats counts archived scans per risk band, input type and country.
func (a *Archive) Stats(ctx context.Context) (*Stats, error) {
	db := a.db.WithContext(ctx)
	stats := &Stats{
		ByLevel:   make(map[string]int),
		ByType:    make(map[string]int),
		ByCountry: make(map[string]int),
	}

	var total int64
	if err := db.Model(&models.ScanRecord{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count scan records: %w", err)
	}
	stats.Total = int(total)

	var bands struct {
		High   int
		Medium int
		Low    int
	}
	if err := db.Model(&models.ScanRecord{}).Select(bandSelect()).Scan(&bands).Error; err != nil {
		return nil, fmt.Errorf("failed to count by level: %w", err)
	}
	stats.ByLevel[string(threat.LevelHigh)] = bands.High
	stats.ByLevel[string(threat.LevelMedium)] = bands.Medium
	stats.ByLevel[string(threat.LevelLow)] = bands.Low

	if err := groupCount(db, "input_type", stats.ByType); err != nil {
		return nil, err
	}
	if err := groupCount(db, "country", stats.ByCountry); err != nil {
		return nil, err
	}
	return stats, nil
}

func groupCount(db *gorm.DB, column string, into map[string]int) error {
	var rows []struct {
		Key   string
		Count int
	}
	err := db.Model(&models.ScanRecord{}).
		Select(column + " as key, COUNT(*) as count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to count by %s: %w", column, err)
	}
	for _, r := range rows {
		into[r.Key] = r.Count
	}
	return nil
}

// bandSelect buckets threat_score with the same thresholds as threat.Classify.
func bandSelect() string {
	return fmt.Sprintf(`
		COALESCE(SUM(CASE WHEN threat_score >= %[1]d THEN 1 ELSE 0 END), 0) as high,
		COALESCE(SUM(CASE WHEN threat_score >= %[2]d AND threat_score < %[1]d THEN 1 ELSE 0 END), 0) as medium,
		COALESCE(SUM(CASE WHEN threat_score < %[2]d THEN 1 ELSE 0 END), 0) as low
	`, threat.HighThreshold, threat.MediumThreshold)
}

// NormalizeFilters applies the default and maximum limits.
func NormalizeFilters(f Filters) Filters {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Level = threat.Level(strings.ToUpper(string(f.Level)))
	return f
}

// ToRecord converts a history entry into its archive row.
func ToRecord(e cti.HistoryEntry) models.ScanRecord {
	sources := make(models.Flags, len(e.Sources))
	for p, ok := range e.Sources {
		sources[string(p)] = ok
	}
	return models.ScanRecord{
		ScanID:         e.ScanID,
		Input:          e.Input,
		InputType:      string(e.Type),
		ThreatScore:    e.ThreatScore,
		ThreatLevel:    string(threat.LevelFor(e.ThreatScore)),
		Confidence:     e.Confidence,
		Country:        e.CountryOrUnknown(),
		City:           e.Location.City,
		CountryCode:    e.Location.CountryCode,
		Sources:        sources,
		Status:         e.Status,
		ProcessingTime: e.ProcessingTime,
		Timestamp:      e.Time().UTC(),
	}
}

// ToEntry converts an archive row back into a history entry.
func ToEntry(r models.ScanRecord) cti.HistoryEntry {
	sources := make(map[cti.Provider]bool, len(r.Sources))
	for p, ok := range r.Sources {
		sources[cti.Provider(p)] = ok
	}
	return cti.HistoryEntry{
		ScanID:      r.ScanID,
		Input:       r.Input,
		Type:        cti.ParseTargetType(r.InputType),
		ThreatScore: r.ThreatScore,
		Confidence:  r.Confidence,
		Timestamp:   cti.Epoch(r.Timestamp),
		Location: cti.Location{
			Country:     r.Country,
			City:        r.City,
			CountryCode: r.CountryCode,
		},
		Sources:        sources,
		Status:         r.Status,
		ProcessingTime: r.ProcessingTime,
	}
}
