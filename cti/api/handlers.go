package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/aggregate"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/snapshot"
	"github.com/CTIDashboard/go-api/cti/threat"
	"github.com/go-chi/chi/v5"
)

// DefaultTopCountries bounds the country lists returned by geo and stats.
const DefaultTopCountries = 10

type scanRequest struct {
	Input string `json:"input"`
}

type scanResponse struct {
	Result         cti.ScanResult        `json:"result"`
	Classification threat.Classification `json:"classification"`
	Contributions  []threat.Contribution `json:"contributions"`
	SourceQuality  string                `json:"source_quality"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.session.Submit(r.Context(), req.Input)
	if err != nil {
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Result:         result,
		Classification: threat.Classify(result.Threat.Score),
		Contributions:  threat.Contributions(result.Sources),
		SourceQuality:  threat.SourceQuality(result.Sources.AvailableCount()),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := history.Field(q.Get("sort"))
	if field == "" {
		field = history.FieldTimestamp
	}
	dir := history.Direction(q.Get("dir"))
	switch dir {
	case "":
		dir = history.Desc
	case history.Asc, history.Desc:
	default:
		writeError(w, http.StatusBadRequest, "dir must be asc or desc")
		return
	}

	size, err := intParam(q.Get("size"), s.pageSize)
	if err != nil || size <= 0 {
		writeError(w, http.StatusBadRequest, "size must be a positive integer")
		return
	}
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}

	view, err := s.session.HistoryPage(field, dir, size, page)
	if errors.Is(err, history.ErrUnknownField) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) geo(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r.URL.Query().Get("top"), DefaultTopCountries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "top must be an integer")
		return
	}

	view := s.session.Geo(r.Context())
	resp := map[string]any{
		"top_countries":       view.Local.TopCountries(top),
		"top_cities":          view.Local.TopCities(top),
		"high_risk_countries": view.Local.HighRiskCountries(),
		"total_scans":         view.Local.TotalScans,
	}
	if view.Remote != nil {
		resp["remote"] = view.Remote
	}
	if view.Advisory != nil {
		resp["advisory"] = view.Advisory.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	report := s.session.Report()
	entries := s.session.Store().Snapshot()
	since := cti.Epoch(s.now()) - aggregate.RecentWindow
	writeJSON(w, http.StatusOK, map[string]any{
		"report":        report,
		"top_countries": report.TopCountries(DefaultTopCountries),
		"recent_scans":  aggregate.RecentCount(entries, since),
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": []any{}})
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	trend, err := s.snapshots.Trend(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": trend})
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return
	}
	snap, err := s.snapshots.Create(r.Context(), s.session.Store().Snapshot(), "")
	if errors.Is(err, snapshot.ErrExists) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return
	}
	snap, err := s.snapshots.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
