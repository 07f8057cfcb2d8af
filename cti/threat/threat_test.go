package threat

import (
	"testing"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/stretchr/testify/assert"
)

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{-5, LevelLow},
		{0, LevelLow},
		{39, LevelLow},
		{40, LevelMedium},
		{69, LevelMedium},
		{70, LevelHigh},
		{85, LevelHigh},
		{100, LevelHigh},
	}

	for _, tt := range tests {
		got := Classify(tt.score)
		if got.Level != tt.want {
			t.Errorf("❌ Classify(%d) = %s, want %s", tt.score, got.Level, tt.want)
		}
		if got != Classify(tt.score) {
			t.Errorf("❌ Classify(%d) is not deterministic", tt.score)
		}
	}
}

func TestClassifyPresentation(t *testing.T) {
	assert.Equal(t, Classification{Level: LevelHigh, Label: "HIGH RISK", Icon: "🚨"}, Classify(70))
	assert.Equal(t, "⚠️", Classify(40).Icon)
	assert.Equal(t, "✅", Classify(39).Icon)
}

func TestClassifyOptionalDefaultsToZero(t *testing.T) {
	assert.Equal(t, LevelLow, ClassifyOptional(nil).Level)
	score := 72
	assert.Equal(t, LevelHigh, ClassifyOptional(&score).Level)
}

func TestSourceQuality(t *testing.T) {
	assert.Equal(t, "High", SourceQuality(4))
	assert.Equal(t, "High", SourceQuality(3))
	assert.Equal(t, "Medium", SourceQuality(2))
	assert.Equal(t, "Basic", SourceQuality(1))
	assert.Equal(t, "Basic", SourceQuality(0))
}

func TestContributionsSkipUnavailableProviders(t *testing.T) {
	var sources cti.ProviderResults
	sources.VirusTotal = cti.VirusTotal{
		Availability:   cti.Availability{Available: true},
		MaliciousCount: 10,
		TotalEngines:   80,
	}
	sources.AbuseIPDB = cti.AbuseIPDB{Availability: cti.Availability{Available: true}, AbuseConfidence: 100}
	sources.Geolocation = cti.Geolocation{Availability: cti.Availability{Available: true}, CountryCode: "ru"}
	sources.Shodan = cti.Shodan{Availability: cti.Availability{Error: "quota exceeded"}, Vulnerabilities: []string{"CVE-1"}}

	got := Contributions(sources)
	assert.Len(t, got, 4)

	assert.Equal(t, cti.ProviderVirusTotal, got[0].Provider)
	assert.InDelta(t, 5.0, got[0].Value, 0.0001)
	assert.InDelta(t, 30.0, got[1].Value, 0.0001)
	assert.InDelta(t, 15.0, got[2].Value, 0.0001)

	shodan := got[3]
	assert.False(t, shodan.Available)
	assert.Zero(t, shodan.Value)
}

func TestSuspiciousServices(t *testing.T) {
	shodan := cti.Shodan{
		Availability: cti.Availability{Available: true},
		ServiceTags:  []string{"http", "Tor-Exit", "self-signed", "botnet-c2"},
	}
	assert.Equal(t, []string{"Tor-Exit", "botnet-c2"}, SuspiciousServices(shodan))

	shodan.Available = false
	assert.Nil(t, SuspiciousServices(shodan))
}
