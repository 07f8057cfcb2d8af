package session

import (
	"context"
	"sync"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/aggregate"
	"github.com/CTIDashboard/go-api/cti/history"
	"golang.org/x/sync/errgroup"
)

// HistoryPage is one page of the sorted local history.
type HistoryPage struct {
	Entries []cti.HistoryEntry `json:"entries"`
	Page    int                `json:"page"`
	Pages   int                `json:"pages"`
	Size    int                `json:"size"`
	Total   int                `json:"total"`
}

// GeoView pairs the collaborator's geo rollup, when available, with the
// locally computed report. Advisory explains a missing Remote.
type GeoView struct {
	Remote   map[string]any   `json:"remote,omitempty"`
	Local    aggregate.Report `json:"local"`
	Advisory error            `json:"-"`
}

// Dashboard is the combined remote view. Each failed half is left empty and
// its error is listed in Advisories.
type Dashboard struct {
	History    []cti.HistoryEntry `json:"history"`
	Stats      cti.RemoteStats    `json:"stats"`
	Advisories []error            `json:"-"`
}

// Report aggregates the live history.
func (s *Session) Report() aggregate.Report {
	return aggregate.Aggregate(s.store.Snapshot())
}

// HistoryPage sorts the live history by field and returns the requested page.
// The page number is clamped to the available range.
func (s *Session) HistoryPage(field history.Field, dir history.Direction, size, page int) (HistoryPage, error) {
	sorted, err := s.store.Sorted(field, dir)
	if err != nil {
		return HistoryPage{}, err
	}
	total := len(sorted)
	page = history.ClampPage(page, total, size)
	return HistoryPage{
		Entries: history.Page(sorted, size, page),
		Page:    page,
		Pages:   history.PageCount(total, size),
		Size:    size,
		Total:   total,
	}, nil
}

// RemoteHistory returns the collaborator's history. On failure it returns an
// empty list together with the error, which callers show as an advisory.
func (s *Session) RemoteHistory(ctx context.Context, limit int) ([]cti.HistoryEntry, error) {
	entries, err := s.scanner.History(ctx, limit)
	if err != nil {
		return []cti.HistoryEntry{}, err
	}
	return entries, nil
}

// RemoteStats returns the collaborator's counters, or zero values and the
// error.
func (s *Session) RemoteStats(ctx context.Context) (cti.RemoteStats, error) {
	stats, err := s.scanner.Stats(ctx)
	if err != nil {
		return cti.RemoteStats{}, err
	}
	return stats, nil
}

// Geo returns the remote geo rollup when the collaborator offers one and the
// local report in every case.
func (s *Session) Geo(ctx context.Context) GeoView {
	view := GeoView{Local: s.Report()}
	remote, err := s.scanner.GeoIntelligence(ctx)
	if err != nil {
		view.Advisory = err
		return view
	}
	view.Remote = remote
	return view
}

// Dashboard fetches remote history and stats concurrently.
func (s *Session) Dashboard(ctx context.Context, limit int) Dashboard {
	var (
		d  Dashboard
		mu sync.Mutex
	)
	advise := func(err error) {
		mu.Lock()
		d.Advisories = append(d.Advisories, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.RemoteHistory(gctx, limit)
		if err != nil {
			advise(err)
		}
		d.History = entries
		return nil
	})
	g.Go(func() error {
		stats, err := s.RemoteStats(gctx)
		if err != nil {
			advise(err)
		}
		d.Stats = stats
		return nil
	})
	_ = g.Wait()
	return d
}
