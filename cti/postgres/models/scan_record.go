package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScanRecord is one archived history entry.
type ScanRecord struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID         string    `gorm:"uniqueIndex;not null;size:64" json:"scan_id"`
	Input          string    `gorm:"not null;size:500;index:idx_scan_records_input" json:"input"`
	InputType      string    `gorm:"not null;size:16;index:idx_scan_records_type" json:"input_type"`
	ThreatScore    int       `gorm:"not null;index:idx_scan_records_score" json:"threat_score"`
	ThreatLevel    string    `gorm:"not null;size:10;index:idx_scan_records_level" json:"threat_level"`
	Confidence     int       `gorm:"not null;default:0" json:"confidence"`
	Country        string    `gorm:"not null;size:100;index:idx_scan_records_country" json:"country"`
	City           string    `gorm:"size:100" json:"city"`
	CountryCode    string    `gorm:"size:8" json:"country_code"`
	Sources        Flags     `gorm:"type:jsonb" json:"sources"`
	Status         string    `gorm:"not null;size:20" json:"status"`
	ProcessingTime string    `gorm:"size:32" json:"processing_time,omitempty"`
	Timestamp      time.Time `gorm:"not null;index:idx_scan_records_timestamp,sort:desc" json:"timestamp"`
	CreatedAt      time.Time `gorm:"not null;default:NOW()" json:"created_at"`
}

// TableName specifies the table name for the ScanRecord model
func (ScanRecord) TableName() string {
	return "scan_records"
}

// Flags is a string-to-bool map stored as jsonb.
type Flags map[string]bool

// Value implements driver.Valuer.
func (f Flags) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *Flags) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*f = Flags{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Flags", value)
	}
	out := Flags{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*f = out
	return nil
}
