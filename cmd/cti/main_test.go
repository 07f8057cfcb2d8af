package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CTI_JOURNAL", "none")
	var out bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	tests := map[string]string{
		"8.8.8.8":             "ip\tIP Address",
		"example.com":         "domain\tDomain",
		"https://example.com": "url\tURL/Website",
		"hello":               "unknown\tUnknown",
	}
	for input, want := range tests {
		out, err := run(t, "classify", input)
		require.NoError(t, err)
		assert.Equal(t, want+"\n", out, input)
	}
}

func TestScanCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
		  "scan_id": "s-1", "input": "8.8.8.8", "input_type": "ip",
		  "threat_analysis": {"score": 85, "confidence": 90, "risk_factors": ["Known malicious"]},
		  "intelligence_sources": {
		    "virustotal": {"malicious_count": 12, "total_engines": 90},
		    "shodan": {"error": "quota exceeded"}
		  },
		  "scan_metadata": {"processing_time": "1.50 seconds"}
		}`)
	}))
	defer srv.Close()

	out, err := run(t, "--api-url", srv.URL, "scan", "8.8.8.8")
	require.NoError(t, err)
	assert.Contains(t, out, "HIGH RISK")
	assert.Contains(t, out, "score 85/100")
	assert.Contains(t, out, "Known malicious")
	assert.Contains(t, out, "Shodan       unavailable (quota exceeded)")
	assert.Contains(t, out, "Processed in:  1.50 seconds")
}

func TestScanCommandRejectsEmptyInput(t *testing.T) {
	_, err := run(t, "scan", "  ")
	require.ErrorIs(t, err, cti.ErrInvalidInput)
	assert.Contains(t, errorLine(err), "Please enter an IP address, domain, or URL")
}

func TestHistoryCommandSortsRemoteEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		io.WriteString(w, `{"scans": [
		  {"scan_id": "a", "input": "1.1.1.1", "input_type": "ip", "threat_score": 10, "timestamp": 1},
		  {"scan_id": "b", "input": "evil.example", "input_type": "domain", "threat_score": 95, "timestamp": 2},
		  {"scan_id": "c", "input": "2.2.2.2", "input_type": "ip", "threat_score": 50, "timestamp": 3}
		]}`)
	}))
	defer srv.Close()

	out, err := run(t, "--api-url", srv.URL, "history", "--sort", "threat_score", "--dir", "desc", "--size", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.Contains(t, lines[1], "evil.example")
	assert.Contains(t, lines[2], "2.2.2.2")
	assert.Contains(t, lines[3], "page 1 of 2, 3 entries")
}

func TestHistoryCommandUnknownField(t *testing.T) {
	_, err := run(t, "history", "--local", "--sort", "colour")
	assert.Error(t, err)
}

func TestErrorLine(t *testing.T) {
	assert.Equal(t, "Error: Analysis timed out. Please try again.", errorLine(fmt.Errorf("x: %w", cti.ErrTimeout)))
	assert.Equal(t, "Error: boom", errorLine(&cti.AnalysisFailedError{StatusCode: 500, Message: "boom"}))
	assert.Equal(t, "Error: config broken", errorLine(errors.New("config broken")))
}

func TestAdvisoryText(t *testing.T) {
	assert.Contains(t, advisoryText(cti.ErrCollaboratorAbsent), "showing local data")
	assert.Contains(t, advisoryText(cti.ErrUnreachable), "Cannot connect to server")
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, session.HistoryPage{Entries: []cti.HistoryEntry{}, Page: 1})
	assert.Equal(t, "No scan history yet.\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
