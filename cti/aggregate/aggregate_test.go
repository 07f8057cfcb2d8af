package aggregate

import (
	"testing"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/threat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan(country, city string, score int) cti.HistoryEntry {
	return cti.HistoryEntry{
		Input:       country + "/" + city,
		Type:        cti.TargetIP,
		ThreatScore: score,
		Location:    cti.Location{Country: country, City: city},
		Sources: map[cti.Provider]bool{
			cti.ProviderVirusTotal:  true,
			cti.ProviderAbuseIPDB:   true,
			cti.ProviderGeolocation: true,
			cti.ProviderShodan:      true,
		},
		ProcessingTime: "2.00 seconds",
	}
}

func TestAggregateCountryCountsSumToTotal(t *testing.T) {
	entries := []cti.HistoryEntry{
		scan("Germany", "Berlin", 80),
		scan("Germany", "Munich", 20),
		scan("", "", 50),
		scan(cti.UnknownCountry, "Unknown", 10),
		scan("Brazil", "Recife", 45),
	}

	r := Aggregate(entries)

	sum := 0
	for _, n := range r.CountryCounts {
		sum += n
	}
	assert.Equal(t, len(entries), sum)
	assert.Equal(t, 2, r.CountryCounts[cti.UnknownCountry])
	assert.Equal(t, 2, r.CountryCounts["Germany"])
	assert.NotContains(t, r.CityCounts, "Unknown")
	assert.Equal(t, 1, r.CityCounts["Berlin"])
}

func TestAggregateCountryAverageIsPlainMean(t *testing.T) {
	r := Aggregate([]cti.HistoryEntry{
		scan("Germany", "Berlin", 80),
		scan("Germany", "Berlin", 20),
		scan("Germany", "Berlin", 35),
	})

	de := r.Countries["Germany"]
	assert.Equal(t, 3, de.Count)
	assert.Equal(t, 135, de.TotalScore)
	assert.InDelta(t, 45.0, de.AvgScore, 1e-9)

	risk, ok := r.CountryRisk("Germany")
	require.True(t, ok)
	assert.Equal(t, threat.LevelMedium, risk.Level)

	_, ok = r.CountryRisk("Atlantis")
	assert.False(t, ok)
}

func TestAggregateRiskBandsUseClassifierThresholds(t *testing.T) {
	r := Aggregate([]cti.HistoryEntry{
		scan("A", "", 39),
		scan("A", "", 40),
		scan("A", "", 69),
		scan("A", "", 70),
		scan("A", "", 100),
	})

	assert.Equal(t, 1, r.RiskBands[threat.LevelLow])
	assert.Equal(t, 2, r.RiskBands[threat.LevelMedium])
	assert.Equal(t, 2, r.RiskBands[threat.LevelHigh])
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate(nil)
	assert.Zero(t, r.TotalScans)
	assert.Zero(t, r.AverageScore)
	assert.Empty(t, r.TopCountries(5))
	assert.Equal(t, 0, r.RiskBands[threat.LevelHigh])
}

func TestTopCountriesTieBreakByName(t *testing.T) {
	r := Aggregate([]cti.HistoryEntry{
		scan("Chile", "", 10),
		scan("Austria", "", 10),
		scan("Brazil", "", 10),
		scan("Denmark", "", 10),
		scan("Denmark", "", 10),
	})

	top := r.TopCountries(3)
	require.Len(t, top, 3)
	assert.Equal(t, "Denmark", top[0].Country)
	assert.Equal(t, "Austria", top[1].Country)
	assert.Equal(t, "Brazil", top[2].Country)

	assert.Len(t, r.TopCountries(0), 4)
	assert.Len(t, r.TopCountries(10), 4)
}

func TestTopCities(t *testing.T) {
	r := Aggregate([]cti.HistoryEntry{
		scan("X", "Oslo", 1),
		scan("X", "Bergen", 1),
		scan("X", "Oslo", 1),
	})
	assert.Equal(t, []CityCount{{City: "Oslo", Count: 2}, {City: "Bergen", Count: 1}}, r.TopCities(5))
}

func TestAbsentProviderIsUnavailableNotZeroRisk(t *testing.T) {
	withShodan := scan("US", "", 90)
	noShodan := scan("US", "", 90)
	noShodan.Sources[cti.ProviderShodan] = false
	missingKey := scan("US", "", 90)
	delete(missingKey.Sources, cti.ProviderShodan)

	r := Aggregate([]cti.HistoryEntry{withShodan, noShodan, missingKey})

	shodan := r.Providers[cti.ProviderShodan]
	assert.Equal(t, 1, shodan.Available)
	assert.Equal(t, 2, shodan.Unavailable)
	assert.InDelta(t, 100.0/3, shodan.SuccessRate, 1e-9)

	// Scores are untouched by provider absence.
	assert.InDelta(t, 90.0, r.Countries["US"].AvgScore, 1e-9)
	assert.Equal(t, 3, r.RiskBands[threat.LevelHigh])
}

func TestHighRiskCountries(t *testing.T) {
	r := Aggregate([]cti.HistoryEntry{
		scan("Russia", "", 90),
		scan("", "", 95),
		scan("Norway", "", 10),
	})
	high := r.HighRiskCountries()
	require.Len(t, high, 1)
	assert.Equal(t, "Russia", high[0].Country)
}

func TestRecentCountAndTypes(t *testing.T) {
	a := scan("X", "", 0)
	a.Timestamp = 100
	b := scan("X", "", 0)
	b.Timestamp = 200
	b.Type = cti.TargetDomain
	c := scan("X", "", 0)
	c.Type = ""

	assert.Equal(t, 1, RecentCount([]cti.HistoryEntry{a, b}, 150))

	r := Aggregate([]cti.HistoryEntry{a, b, c})
	assert.Equal(t, 1, r.TypeCounts[cti.TargetIP])
	assert.Equal(t, 1, r.TypeCounts[cti.TargetDomain])
	assert.Equal(t, 1, r.TypeCounts[cti.TargetUnknown])
	assert.InDelta(t, 2.0, r.AvgProcessing, 1e-9)
}

func TestParseProcessingTime(t *testing.T) {
	v, ok := ParseProcessingTime("3.25 seconds")
	assert.True(t, ok)
	assert.InDelta(t, 3.25, v, 1e-9)

	_, ok = ParseProcessingTime("N/A")
	assert.False(t, ok)
	_, ok = ParseProcessingTime("fast seconds")
	assert.False(t, ok)
}
