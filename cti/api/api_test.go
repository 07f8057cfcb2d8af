package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/CTIDashboard/go-api/cti/snapshot"
	"github.com/CTIDashboard/go-api/cti/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	err error
}

func (s stubScanner) Scan(_ context.Context, t cti.ScanTarget) (cti.ScanResult, error) {
	if s.err != nil {
		return cti.ScanResult{}, s.err
	}
	r := cti.ScanResult{
		ScanID:     "id-" + t.RawInput,
		Input:      t.RawInput,
		TargetType: t.Type,
		Threat:     cti.ThreatAssessment{Score: 85, Confidence: 90},
		Timestamp:  1700000000,
	}
	r.Sources.Geolocation.Available = true
	r.Sources.Geolocation.Country = "United States"
	r.Sources.Geolocation.CountryCode = "US"
	return r, nil
}

func (stubScanner) History(context.Context, int) ([]cti.HistoryEntry, error) {
	return nil, cti.ErrUnreachable
}

func (stubScanner) Stats(context.Context) (cti.RemoteStats, error) {
	return cti.RemoteStats{}, cti.ErrUnreachable
}

func (stubScanner) GeoIntelligence(context.Context) (map[string]any, error) {
	return nil, fmt.Errorf("geo: %w", cti.ErrCollaboratorAbsent)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, scanner session.Scanner) (*session.Session, http.Handler) {
	t.Helper()
	sess := session.New(scanner, session.WithLogger(quiet()))
	srv := New(sess,
		WithLogger(quiet()),
		WithSnapshots(snapshot.NewManager(store.NewMemoryStore())),
		WithPageSize(2))
	return sess, srv.Router()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, stubScanner{})
	rr := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestSubmitScan(t *testing.T) {
	sess, h := newTestServer(t, stubScanner{})
	rr := do(h, http.MethodPost, "/api/v1/scans", `{"input":"8.8.8.8"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	classification := body["classification"].(map[string]any)
	assert.Equal(t, "HIGH", classification["level"])
	assert.Equal(t, "Basic", body["source_quality"])
	assert.Equal(t, 1, sess.Store().Len())
}

func TestSubmitScanErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		input  string
		status int
	}{
		{"invalid input", nil, "  ", http.StatusBadRequest},
		{"timeout", cti.ErrTimeout, "1.1.1.1", http.StatusGatewayTimeout},
		{"unreachable", cti.ErrUnreachable, "1.1.1.1", http.StatusBadGateway},
		{"analysis failed", &cti.AnalysisFailedError{StatusCode: 500, Message: "boom"}, "1.1.1.1", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, h := newTestServer(t, stubScanner{err: tt.err})
			rr := do(h, http.MethodPost, "/api/v1/scans", fmt.Sprintf(`{"input":%q}`, tt.input))
			assert.Equal(t, tt.status, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, 0, sess.Store().Len())
		})
	}
}

func TestStatusForBusy(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrBusy))
	assert.Equal(t, session.ErrBusy.Error(), errorMessage(session.ErrBusy))
}

func TestHistoryPaging(t *testing.T) {
	sess, h := newTestServer(t, stubScanner{})
	for i, score := range []int{10, 90, 50} {
		sess.Ingest(context.Background(), cti.HistoryEntry{
			ScanID: fmt.Sprintf("s%d", i), Input: fmt.Sprintf("10.0.0.%d", i),
			ThreatScore: score, Timestamp: float64(i), Status: history.StatusCompleted,
		})
	}

	rr := do(h, http.MethodGet, "/api/v1/history?sort=threat_score&dir=desc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page session.HistoryPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 90, page.Entries[0].ThreatScore)
	assert.Equal(t, 50, page.Entries[1].ThreatScore)

	rr = do(h, http.MethodGet, "/api/v1/history?sort=threat_score&dir=desc&page=7", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 10, page.Entries[0].ThreatScore)
}

func TestHistoryRejectsBadParams(t *testing.T) {
	_, h := newTestServer(t, stubScanner{})
	for _, q := range []string{"sort=bogus", "dir=up", "size=0", "page=x"} {
		rr := do(h, http.MethodGet, "/api/v1/history?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestGeoFallsBackToLocalReport(t *testing.T) {
	sess, h := newTestServer(t, stubScanner{})
	_, err := sess.Submit(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	rr := do(h, http.MethodGet, "/api/v1/geo?top=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Nil(t, body["remote"])
	assert.Contains(t, body["advisory"], "not available")
	top := body["top_countries"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "United States", top[0].(map[string]any)["country"])
}

func TestSnapshotsLifecycle(t *testing.T) {
	sess, h := newTestServer(t, stubScanner{})
	_, err := sess.Submit(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	rr := do(h, http.MethodPost, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := decode(t, rr)["snapshot_id"].(string)

	rr = do(h, http.MethodGet, "/api/v1/snapshots/"+id, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodGet, "/api/v1/snapshots", "")
	assert.Len(t, decode(t, rr)["snapshots"], 1)

	rr = do(h, http.MethodGet, "/api/v1/snapshots/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSnapshotsCreatedInOneSecondAreKept(t *testing.T) {
	_, h := newTestServer(t, stubScanner{})

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		rr := do(h, http.MethodPost, "/api/v1/snapshots", "")
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		ids[decode(t, rr)["snapshot_id"].(string)] = true
	}
	assert.Len(t, ids, 3)

	rr := do(h, http.MethodGet, "/api/v1/snapshots", "")
	assert.Len(t, decode(t, rr)["snapshots"], 3)
}

func TestStreamRequiresUpgrade(t *testing.T) {
	_, h := newTestServer(t, stubScanner{})
	rr := do(h, http.MethodGet, "/api/v1/stream", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStreamDeliversNewEntries(t *testing.T) {
	sess, h := newTestServer(t, stubScanner{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame streamFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame.Type)

	_, err = sess.Submit(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "scan", frame.Type)
	require.NotNil(t, frame.Entry)
	assert.Equal(t, "8.8.8.8", frame.Entry.Input)
	assert.Equal(t, 1, frame.Total)
}

func TestAPIKeyRequired(t *testing.T) {
	kv := store.NewMemoryStore()
	raw, _, err := store.IssueAPIKey(context.Background(), kv, "test")
	require.NoError(t, err)

	sess := session.New(stubScanner{}, session.WithLogger(quiet()))
	h := New(sess, WithLogger(quiet()), WithAPIKeys(kv)).Router()

	rr := do(h, http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set(APIKeyHeader, "cti_bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set(APIKeyHeader, raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
}
