// Package history keeps the append-only log of past scans and computes sorted
// and paginated views over it.
package history

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/CTIDashboard/go-api/cti"
)

// Field names a sortable history column.
type Field string

const (
	FieldTimestamp   Field = "timestamp"
	FieldInput       Field = "input"
	FieldType        Field = "input_type"
	FieldThreatScore Field = "threat_score"
	FieldConfidence  Field = "confidence"
	FieldCountry     Field = "country"
	FieldCity        Field = "city"
	FieldStatus      Field = "status"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ErrUnknownField is returned for a sort on a column that does not exist.
var ErrUnknownField = errors.New("unknown sort field")

// Journal persists entries beyond the life of the process.
type Journal interface {
	Append(ctx context.Context, entry cti.HistoryEntry) error
	Load(ctx context.Context) ([]cti.HistoryEntry, error)
}

// Store is the ordered, append-only collection of history entries. Sorted
// views are computed on a copy; insertion order is never changed.
type Store struct {
	mu      sync.RWMutex
	entries []cti.HistoryEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// NewFrom creates a Store holding entries in the given order.
func NewFrom(entries []cti.HistoryEntry) *Store {
	s := New()
	for _, e := range entries {
		s.Append(e)
	}
	return s
}

// Append adds entry at the end of the log. It is the only mutator.
func (s *Store) Append(entry cti.HistoryEntry) {
	entry.Sources = copySources(entry.Sources)

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the entries in insertion order.
func (s *Store) Snapshot() []cti.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]cti.HistoryEntry, len(s.entries))
	for i, e := range s.entries {
		e.Sources = copySources(e.Sources)
		out[i] = e
	}
	return out
}

// Contains reports whether an entry with scanID was appended.
func (s *Store) Contains(scanID string) bool {
	if scanID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ScanID == scanID {
			return true
		}
	}
	return false
}

// Sorted returns a snapshot ordered by field. The sort is stable in both
// directions: entries with equal keys keep their insertion order.
func (s *Store) Sorted(field Field, dir Direction) ([]cti.HistoryEntry, error) {
	items := s.Snapshot()
	if err := SortEntries(items, field, dir); err != nil {
		return nil, err
	}
	return items, nil
}

// SortEntries stably sorts items in place.
func SortEntries(items []cti.HistoryEntry, field Field, dir Direction) error {
	compare, err := comparator(field)
	if err != nil {
		return err
	}
	switch dir {
	case Asc, "":
	case Desc:
		asc := compare
		compare = func(a, b cti.HistoryEntry) int { return -asc(a, b) }
	default:
		return fmt.Errorf("unknown sort direction %q", dir)
	}
	slices.SortStableFunc(items, compare)
	return nil
}

func comparator(field Field) (func(a, b cti.HistoryEntry) int, error) {
	switch field {
	case FieldTimestamp:
		return func(a, b cti.HistoryEntry) int { return cmp.Compare(a.Timestamp, b.Timestamp) }, nil
	case FieldInput:
		return func(a, b cti.HistoryEntry) int { return strings.Compare(a.Input, b.Input) }, nil
	case FieldType:
		return func(a, b cti.HistoryEntry) int { return strings.Compare(string(a.Type), string(b.Type)) }, nil
	case FieldThreatScore:
		return func(a, b cti.HistoryEntry) int { return cmp.Compare(a.ThreatScore, b.ThreatScore) }, nil
	case FieldConfidence:
		return func(a, b cti.HistoryEntry) int { return cmp.Compare(a.Confidence, b.Confidence) }, nil
	case FieldCountry:
		return func(a, b cti.HistoryEntry) int { return strings.Compare(a.Location.Country, b.Location.Country) }, nil
	case FieldCity:
		return func(a, b cti.HistoryEntry) int { return strings.Compare(a.Location.City, b.Location.City) }, nil
	case FieldStatus:
		return func(a, b cti.HistoryEntry) int { return strings.Compare(a.Status, b.Status) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func copySources(src map[cti.Provider]bool) map[cti.Provider]bool {
	if src == nil {
		return nil
	}
	dst := make(map[cti.Provider]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
