// Package session ties the scan client, the history store and the optional
// persistence and broker layers into the operations a front end drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/queue"
	"github.com/CTIDashboard/go-api/cti/target"
)

// ErrBusy is returned by Submit while another scan is in flight.
var ErrBusy = errors.New("a scan is already in progress")

// EventSource tags events published by this process.
const EventSource = "cti-go-api"

// subscriberBuffer is the per-subscriber channel capacity. Slow subscribers
// miss entries rather than block appends.
const subscriberBuffer = 32

// Scanner is the subset of scan.Client the session uses.
type Scanner interface {
	Scan(ctx context.Context, t cti.ScanTarget) (cti.ScanResult, error)
	History(ctx context.Context, limit int) ([]cti.HistoryEntry, error)
	Stats(ctx context.Context) (cti.RemoteStats, error)
	GeoIntelligence(ctx context.Context) (map[string]any, error)
}

// Session owns one history store and serializes scan submissions.
type Session struct {
	scanner   Scanner
	store     *history.Store
	journal   history.Journal
	publisher queue.Publisher
	logger    *slog.Logger

	busy atomic.Bool

	// appendMu orders the dedupe check and append across Submit and Ingest.
	appendMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan cti.HistoryEntry
	nextSub int
}

// Option customizes a Session.
type Option func(*Session)

// WithJournal persists every appended entry to j.
func WithJournal(j history.Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithPublisher announces every scanned entry on p.
func WithPublisher(p queue.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithStore uses an existing store instead of an empty one.
func WithStore(st *history.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a Session around scanner.
func New(scanner Scanner, opts ...Option) *Session {
	s := &Session{
		scanner:   scanner,
		store:     history.New(),
		publisher: queue.Nop{},
		logger:    slog.Default(),
		subs:      make(map[int]chan cti.HistoryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the live history store.
func (s *Session) Store() *history.Store { return s.store }

// Busy reports whether a scan is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

// Submit validates raw, runs one scan and records the result. Nothing is
// appended when the scan fails.
func (s *Session) Submit(ctx context.Context, raw string) (cti.ScanResult, error) {
	t, err := target.New(raw)
	if err != nil {
		return cti.ScanResult{}, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return cti.ScanResult{}, ErrBusy
	}
	defer s.busy.Store(false)

	result, err := s.scanner.Scan(ctx, t)
	if err != nil {
		s.logger.Warn("Scan failed", "input", t.RawInput, "error", err)
		return cti.ScanResult{}, err
	}

	entry := history.FromResult(result)
	s.appendMu.Lock()
	s.store.Append(entry)
	s.appendMu.Unlock()

	s.persist(ctx, entry)
	if err := s.publisher.Publish(ctx, queue.NewScanEvent(EventSource, entry)); err != nil {
		s.logger.Warn("Failed to publish scan event", "scan_id", entry.ScanID, "error", err)
	}
	s.broadcast(entry)
	return result, nil
}

// Ingest appends an entry produced elsewhere, for example by another process
// on the broker. It reports false when the scan ID is already present.
func (s *Session) Ingest(ctx context.Context, entry cti.HistoryEntry) bool {
	s.appendMu.Lock()
	if s.store.Contains(entry.ScanID) {
		s.appendMu.Unlock()
		return false
	}
	s.store.Append(entry)
	s.appendMu.Unlock()

	s.persist(ctx, entry)
	s.broadcast(entry)
	return true
}

// Restore replays the journal into the store and returns the number of
// entries added.
func (s *Session) Restore(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	entries, err := s.journal.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore history: %w", err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	added := 0
	for _, e := range entries {
		if s.store.Contains(e.ScanID) {
			continue
		}
		s.store.Append(e)
		added++
	}
	s.logger.Info("History restored", "entries", added)
	return added, nil
}

func (s *Session) persist(ctx context.Context, entry cti.HistoryEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, entry); err != nil {
		s.logger.Warn("Failed to journal history entry", "scan_id", entry.ScanID, "error", err)
	}
}
