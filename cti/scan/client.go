// Package scan talks to the lookup service: it submits scans and fetches the
// collaborator's history, statistics and geographic rollups.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CTIDashboard/go-api/cti"
)

// History limits applied by the lookup service.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Client issues requests to the lookup service. It never retries.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the receipt clock used to timestamp results.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new Client with the given configuration.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return *c.config }

type lookupRequest struct {
	Input string `json:"input"`
}

// Scan submits one lookup for target. Failures are reported as cti.ErrTimeout,
// cti.ErrUnreachable or *cti.AnalysisFailedError; a malformed success payload
// is normalized to defaults instead of failing.
func (c *Client) Scan(ctx context.Context, target cti.ScanTarget) (cti.ScanResult, error) {
	if strings.TrimSpace(target.RawInput) == "" {
		return cti.ScanResult{}, fmt.Errorf("scan: %w", cti.ErrInvalidInput)
	}

	start := time.Now()
	status, body, err := c.doJSON(ctx, http.MethodPost, "/api/lookup", nil, lookupRequest{Input: target.RawInput})
	if err != nil {
		c.logger.Warn("Scan request failed", "input", target.RawInput, "error", err)
		return cti.ScanResult{}, err
	}
	if status < 200 || status > 299 {
		return cti.ScanResult{}, declaredError(status, body)
	}

	w, err := decodeResult(body)
	if err != nil {
		c.logger.Debug("Absorbing malformed scan payload", "input", target.RawInput, "error", err)
	}
	if strings.EqualFold(w.Status.Value, "error") {
		msg := w.Error.Value
		if msg == "" {
			msg = "Analysis failed"
		}
		return cti.ScanResult{}, &cti.AnalysisFailedError{StatusCode: status, Message: msg}
	}

	result := normalizeResult(w, target, c.now())
	c.logger.Info("Scan completed",
		"input", result.Input,
		"type", result.TargetType,
		"score", result.Threat.Score,
		"sources", result.Sources.AvailableCount(),
		"elapsed", time.Since(start))
	return result, nil
}

// History fetches up to limit recent entries recorded by the lookup service.
// limit <= 0 selects DefaultHistoryLimit; values above MaxHistoryLimit are
// capped.
func (c *Client) History(ctx context.Context, limit int) ([]cti.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	status, body, err := c.doJSON(ctx, http.MethodGet, "/api/history", q, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, declaredError(status, body)
	}
	return c.decodeHistory(body), nil
}

// Stats fetches the lookup service's global counters.
func (c *Client) Stats(ctx context.Context) (cti.RemoteStats, error) {
	status, body, err := c.doJSON(ctx, http.MethodGet, "/api/stats", nil, nil)
	if err != nil {
		return cti.RemoteStats{}, err
	}
	if status < 200 || status > 299 {
		return cti.RemoteStats{}, declaredError(status, body)
	}
	return normalizeStats(body), nil
}

// GeoIntelligence fetches the lookup service's geographic rollups. Services
// without the endpoint yield cti.ErrCollaboratorAbsent.
func (c *Client) GeoIntelligence(ctx context.Context) (map[string]any, error) {
	status, body, err := c.doJSON(ctx, http.MethodGet, "/api/geo-intelligence", nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return nil, fmt.Errorf("geo-intelligence: %w", cti.ErrCollaboratorAbsent)
	}
	if status < 200 || status > 299 {
		return nil, declaredError(status, body)
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("geo-intelligence: %w: %v", cti.ErrMalformedPayload, err)
	}
	return out, nil
}

// Health reports whether the lookup service answers on its root endpoint.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.doJSON(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return declaredError(status, body)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u := c.config.endpoint(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	limit := c.config.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultConfig().MaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return resp.StatusCode, nil, classifyTransportError(err)
	}
	if int64(len(body)) > limit {
		body = body[:limit]
		c.logger.Warn("Lookup service response truncated",
			"method", method, "path", path, "status", resp.StatusCode, "limit", limit)
	}
	c.logger.Debug("Lookup service response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, body, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", cti.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", cti.ErrUnreachable, err)
}

func declaredError(status int, body []byte) error {
	var payload struct {
		Error   flexString `json:"error"`
		Message flexString `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Error.Value
	if msg == "" {
		msg = payload.Message.Value
	}
	if msg == "" {
		msg = fmt.Sprintf("Server error: %d", status)
	}
	return &cti.AnalysisFailedError{StatusCode: status, Message: msg}
}
