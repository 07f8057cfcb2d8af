package archive

import (
	"strings"
	"testing"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/threat"
	"github.com/stretchr/testify/assert"
)

var _ history.Journal = (*Archive)(nil)

func TestNormalizeFilters(t *testing.T) {
	tests := []struct {
		name string
		in   Filters
		want Filters
	}{
		{"defaults", Filters{}, Filters{Limit: DefaultLimit}},
		{"capped", Filters{Limit: 10_000}, Filters{Limit: MaxLimit}},
		{"negative offset", Filters{Limit: 5, Offset: -3}, Filters{Limit: 5}},
		{"level upper-cased", Filters{Limit: 5, Level: "high"}, Filters{Limit: 5, Level: threat.LevelHigh}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFilters(tt.in))
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	entry := cti.HistoryEntry{
		ScanID:      "scan-1",
		Input:       "8.8.8.8",
		Type:        cti.TargetIP,
		ThreatScore: 72,
		Confidence:  85,
		Timestamp:   1700000000,
		Location:    cti.Location{Country: "United States", City: "Mountain View", CountryCode: "US"},
		Sources: map[cti.Provider]bool{
			cti.ProviderVirusTotal: true,
			cti.ProviderShodan:     false,
		},
		Status:         "completed",
		ProcessingTime: "1.20 seconds",
	}

	record := ToRecord(entry)
	assert.Equal(t, string(threat.LevelHigh), record.ThreatLevel)
	assert.Equal(t, "ip", record.InputType)
	assert.False(t, record.Sources["shodan"])

	assert.Equal(t, entry, ToEntry(record))
}

func TestToRecordUnknownCountry(t *testing.T) {
	record := ToRecord(cti.HistoryEntry{ScanID: "x", Input: "example.com", ThreatScore: 40})
	assert.Equal(t, cti.UnknownCountry, record.Country)
	assert.Equal(t, string(threat.LevelMedium), record.ThreatLevel)
}

func TestBandSelectUsesClassifierThresholds(t *testing.T) {
	sel := bandSelect()
	assert.True(t, strings.Contains(sel, "threat_score >= 70 THEN"))
	assert.True(t, strings.Contains(sel, "threat_score >= 40 AND threat_score < 70"))
	assert.True(t, strings.Contains(sel, "threat_score < 40 THEN"))
}
