package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/CTIDashboard/go-api/cti"
	_ "modernc.org/sqlite"
)

// SQLite journals entries into a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the journal database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id TEXT NOT NULL,
			timestamp REAL NOT NULL,
			body TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_scan_id ON history_entries(scan_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite journal: %w", err)
		}
	}
	return nil
}

// Append stores entry at the end of the journal.
func (s *SQLite) Append(ctx context.Context, entry cti.HistoryEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history_entries (scan_id, timestamp, body) VALUES (?, ?, ?)`,
		entry.ScanID, entry.Timestamp, string(body))
	if err != nil {
		return fmt.Errorf("failed to journal history entry: %w", err)
	}
	return nil
}

// Load returns every journaled entry in insertion order.
func (s *SQLite) Load(ctx context.Context) ([]cti.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM history_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sqlite journal: %w", err)
	}
	defer rows.Close()

	entries := make([]cti.HistoryEntry, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e cti.HistoryEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
