// Package nvd looks up CVE records in the NVD CVE API 2.0 to enrich the
// vulnerabilities reported for a scanned host.
package nvd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultBaseURL is the public CVE API endpoint.
const DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// ErrNotFound is returned when the API knows no record for the ID.
var ErrNotFound = errors.New("cve not found")

var cveID = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// Client queries the CVE API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a Client against DefaultBaseURL. apiKey may be empty.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ValidID reports whether id looks like a CVE identifier.
func ValidID(id string) bool {
	return cveID.MatchString(strings.ToUpper(strings.TrimSpace(id)))
}

// GetCVE fetches one CVE record.
func (c *Client) GetCVE(ctx context.Context, id string) (CVE, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !cveID.MatchString(id) {
		return CVE{}, fmt.Errorf("invalid CVE id %q", id)
	}

	q := url.Values{}
	q.Set("cveId", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return CVE{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apiKey", c.APIKey)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return CVE{}, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CVE{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return CVE{}, fmt.Errorf("received status code %d from NVD API", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CVE{}, fmt.Errorf("failed to read response body: %w", err)
	}
	var doc Response
	if err := json.Unmarshal(body, &doc); err != nil {
		return CVE{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if len(doc.Vulnerabilities) == 0 {
		return CVE{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return doc.Vulnerabilities[0].CVE, nil
}

// Summarize looks up at most limit of ids and returns the summaries that
// resolved. Lookup failures are logged and skipped.
func (c *Client) Summarize(ctx context.Context, ids []string, limit int) []Summary {
	out := make([]Summary, 0, min(len(ids), max(limit, 0)))
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if !ValidID(id) {
			continue
		}
		cve, err := c.GetCVE(ctx, id)
		if err != nil {
			slog.Debug("CVE lookup failed", "id", id, "error", err)
			continue
		}
		out = append(out, cve.Summary())
	}
	return out
}
