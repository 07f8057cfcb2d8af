// Package api serves the local dashboard over HTTP: scan submission, the
// sorted history, geographic and risk rollups, snapshots and a websocket
// stream of new entries.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/CTIDashboard/go-api/cti/snapshot"
	"github.com/CTIDashboard/go-api/cti/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultPageSize is used when a history request has no size.
const DefaultPageSize = 10

// Server exposes a session over HTTP.
type Server struct {
	session   *session.Session
	snapshots *snapshot.Manager
	apiKeys   store.KVStore
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithSnapshots enables the snapshot endpoints.
func WithSnapshots(m *snapshot.Manager) Option {
	return func(s *Server) { s.snapshots = m }
}

// WithAPIKeys requires a valid X-API-Key on every /api/v1 request, checked
// against the keys issued in kv.
func WithAPIKeys(kv store.KVStore) Option {
	return func(s *Server) { s.apiKeys = kv }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPageSize sets the default history page size.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a Server for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session:  sess,
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "history": s.session.Store().Len()})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if s.apiKeys != nil {
			r.Use(s.requireAPIKey)
		}
		r.Post("/scans", s.submitScan)
		r.Get("/history", s.history)
		r.Get("/geo", s.geo)
		r.Get("/stats", s.stats)
		r.Get("/snapshots", s.listSnapshots)
		r.Post("/snapshots", s.createSnapshot)
		r.Get("/snapshots/{id}", s.getSnapshot)
		r.Get("/stream", s.stream)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// APIKeyHeader carries the dashboard API key.
const APIKeyHeader = "X-API-Key"

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		meta, err := store.ValidateAPIKey(r.Context(), s.apiKeys, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("API key lookup failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		s.logger.Debug("Authenticated request", "key", meta.Prefix, "label", meta.Label)
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Status: "error"})
}

// statusFor maps a scan error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cti.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, cti.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, cti.ErrUnreachable), errors.Is(err, cti.ErrAnalysisFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if errors.Is(err, session.ErrBusy) {
		return err.Error()
	}
	return cti.UserMessage(err)
}
