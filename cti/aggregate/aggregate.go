// Package aggregate derives geographic and statistical rollups from a history
// snapshot. Everything here is a pure function of its input and is recomputed
// for every view.
package aggregate

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/threat"
)

// RecentWindow is the span counted by RecentCount in the dashboard.
const RecentWindow = 86400.0

// CountryAggregate is one country's volume and mean risk.
type CountryAggregate struct {
	Country    string  `json:"country"`
	Count      int     `json:"count"`
	TotalScore int     `json:"total_score"`
	AvgScore   float64 `json:"avg_score"`
}

// CityCount is one city's volume.
type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// ProviderAvailability counts how often a provider contributed data.
type ProviderAvailability struct {
	Available   int     `json:"available"`
	Unavailable int     `json:"unavailable"`
	SuccessRate float64 `json:"success_rate"`
}

// Report is the full set of rollups over one snapshot.
type Report struct {
	TotalScans    int                                   `json:"total_scans"`
	AverageScore  float64                               `json:"average_score"`
	CountryCounts map[string]int                        `json:"country_counts"`
	CityCounts    map[string]int                        `json:"city_counts"`
	Countries     map[string]CountryAggregate           `json:"countries"`
	RiskBands     map[threat.Level]int                  `json:"risk_bands"`
	TypeCounts    map[cti.TargetType]int                `json:"type_counts"`
	Providers     map[cti.Provider]ProviderAvailability `json:"providers"`
	AvgProcessing float64                               `json:"average_processing_seconds"`
}

// Aggregate computes every rollup over entries. Entries without a country are
// counted under cti.UnknownCountry; they are never dropped or merged into a
// named country.
func Aggregate(entries []cti.HistoryEntry) Report {
	r := Report{
		TotalScans:    len(entries),
		CountryCounts: map[string]int{},
		CityCounts:    map[string]int{},
		Countries:     map[string]CountryAggregate{},
		RiskBands:     map[threat.Level]int{},
		TypeCounts:    map[cti.TargetType]int{},
		Providers:     map[cti.Provider]ProviderAvailability{},
	}
	for _, level := range threat.Levels {
		r.RiskBands[level] = 0
	}

	var totalScore, processingSum float64
	var processingCount int

	for _, e := range entries {
		country := e.CountryOrUnknown()
		r.CountryCounts[country]++

		agg := r.Countries[country]
		agg.Country = country
		agg.Count++
		agg.TotalScore += e.ThreatScore
		r.Countries[country] = agg

		if city := e.Location.City; city != "" && city != "Unknown" {
			r.CityCounts[city]++
		}

		r.RiskBands[threat.LevelFor(e.ThreatScore)]++
		r.TypeCounts[cti.ParseTargetType(string(e.Type))]++
		totalScore += float64(e.ThreatScore)

		// A provider missing from the entry is unavailable, never zero-risk.
		for _, p := range cti.Providers {
			pa := r.Providers[p]
			if e.Sources[p] {
				pa.Available++
			} else {
				pa.Unavailable++
			}
			r.Providers[p] = pa
		}

		if secs, ok := ParseProcessingTime(e.ProcessingTime); ok {
			processingSum += secs
			processingCount++
		}
	}

	for country, agg := range r.Countries {
		agg.AvgScore = float64(agg.TotalScore) / float64(agg.Count)
		r.Countries[country] = agg
	}
	for p, pa := range r.Providers {
		if total := pa.Available + pa.Unavailable; total > 0 {
			pa.SuccessRate = float64(pa.Available) / float64(total) * 100
		}
		r.Providers[p] = pa
	}
	if len(entries) > 0 {
		r.AverageScore = totalScore / float64(len(entries))
	}
	if processingCount > 0 {
		r.AvgProcessing = processingSum / float64(processingCount)
	}
	return r
}

// TopCountries returns the n busiest countries, ties broken by name ascending.
// n <= 0 returns every country.
func (r Report) TopCountries(n int) []CountryAggregate {
	out := make([]CountryAggregate, 0, len(r.Countries))
	for _, agg := range r.Countries {
		out = append(out, agg)
	}
	slices.SortFunc(out, func(a, b CountryAggregate) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Country, b.Country)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopCities returns the n busiest cities, ties broken by name ascending.
func (r Report) TopCities(n int) []CityCount {
	out := make([]CityCount, 0, len(r.CityCounts))
	for city, count := range r.CityCounts {
		out = append(out, CityCount{City: city, Count: count})
	}
	slices.SortFunc(out, func(a, b CityCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.City, b.City)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CountryRisk classifies a country by its mean score. ok is false for a
// country with no entries.
func (r Report) CountryRisk(country string) (threat.Classification, bool) {
	agg, ok := r.Countries[country]
	if !ok {
		return threat.Classification{}, false
	}
	return threat.Classify(int(agg.AvgScore)), true
}

// HighRiskCountries returns named countries whose mean score lands in the HIGH
// bucket, busiest first.
func (r Report) HighRiskCountries() []CountryAggregate {
	var out []CountryAggregate
	for _, agg := range r.TopCountries(0) {
		if agg.Country == cti.UnknownCountry {
			continue
		}
		if threat.LevelFor(int(agg.AvgScore)) == threat.LevelHigh {
			out = append(out, agg)
		}
	}
	return out
}

// RecentCount counts entries with a timestamp strictly after since.
func RecentCount(entries []cti.HistoryEntry, since float64) int {
	n := 0
	for _, e := range entries {
		if e.Timestamp > since {
			n++
		}
	}
	return n
}

// ParseProcessingTime reads a "1.23 seconds" duration string.
func ParseProcessingTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "seconds") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "seconds")), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
