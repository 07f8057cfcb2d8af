package scan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/google/uuid"
)

const (
	unknown            = "Unknown"
	unknownCountryCode = "XX"
	notReported        = "not reported"
	malformedProvider  = "malformed provider payload"
	providerError      = "provider reported an error"
)

// decodeResult decodes the top level of a scan payload. On error the returned
// wireResult is empty and normalizes to a fully-defaulted result.
func decodeResult(body []byte) (wireResult, error) {
	var w wireResult
	if !decodeObject(body, &w) {
		return wireResult{}, fmt.Errorf("%w: top level is not an object", cti.ErrMalformedPayload)
	}
	return w, nil
}

func normalizeResult(w wireResult, target cti.ScanTarget, received time.Time) cti.ScanResult {
	r := cti.ScanResult{
		ScanID:     w.ScanID.or(uuid.NewString()),
		Input:      w.Input.or(target.RawInput),
		TargetType: target.Type,
		ResolvedIP: w.TargetIP.or(""),
		Threat:     normalizeThreat(w.ThreatAnalysis),
		Sources:    normalizeSources(w.IntelligenceSources),
		Metadata:   normalizeMetadata(w.ScanMetadata),
		Insights:   normalizeInsights(w.ProfessionalInsight),
		Timestamp:  cti.Epoch(received),
	}
	if w.InputType.Set {
		r.TargetType = cti.ParseTargetType(strings.ToLower(w.InputType.Value))
	}
	if r.TargetType == "" {
		r.TargetType = cti.TargetUnknown
	}
	return r
}

func normalizeThreat(raw json.RawMessage) cti.ThreatAssessment {
	var w wireThreat
	decodeObject(raw, &w)
	return cti.ThreatAssessment{
		Score:       clampPercent(w.Score.or(0)),
		Confidence:  clampPercent(w.Confidence.or(0)),
		RiskFactors: nonNil(w.RiskFactors),
		Level:       w.ThreatLevel.or(""),
	}
}

func normalizeMetadata(raw json.RawMessage) cti.ScanMetadata {
	var w wireMetadata
	decodeObject(raw, &w)
	return cti.ScanMetadata{
		ProcessingTime: w.ProcessingTime.or("N/A"),
		DataSources:    w.DataSources.or(0),
	}
}

func normalizeInsights(raw json.RawMessage) cti.Insights {
	var w wireInsights
	decodeObject(raw, &w)
	return cti.Insights{
		ExecutiveSummary:        w.ExecutiveSummary.or(""),
		TechnicalAnalysis:       nonNil(w.TechnicalAnalysis),
		SecurityRecommendations: nonNil(w.SecurityRecommendations),
		BusinessImpact:          w.BusinessImpact.or(""),
		DataQualityAssessment:   w.DataQualityAssessment.or(""),
	}
}

func normalizeSources(raw json.RawMessage) cti.ProviderResults {
	providers := map[string]json.RawMessage{}
	decodeObject(raw, &providers)
	return cti.ProviderResults{
		VirusTotal:  normalizeVirusTotal(providers[string(cti.ProviderVirusTotal)]),
		AbuseIPDB:   normalizeAbuseIPDB(providers[string(cti.ProviderAbuseIPDB)]),
		Geolocation: normalizeGeolocation(providers[string(cti.ProviderGeolocation)]),
		Shodan:      normalizeShodan(providers[string(cti.ProviderShodan)]),
	}
}

// decodeProvider decodes one provider record into dst. A missing record, a
// non-object and a truthy "error" value all make the provider unavailable.
func decodeProvider(raw json.RawMessage, dst any) (cti.Availability, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return cti.Availability{Error: notReported}, false
	}
	var marker struct {
		Error json.RawMessage `json:"error"`
	}
	if !decodeObject(raw, &marker) {
		return cti.Availability{Error: malformedProvider}, false
	}
	if msg, failed := errorMarker(marker.Error); failed {
		return cti.Availability{Error: msg}, false
	}
	decodeObject(raw, dst)
	return cti.Availability{Available: true}, true
}

// errorMarker reports whether an "error" value is set. null, false, "", 0,
// {} and [] are not; anything else is, whatever its type. The returned text
// is the message to show.
func errorMarker(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		return providerError, e
	case string:
		return e, e != ""
	case float64:
		return strings.TrimSpace(string(raw)), e != 0
	case []any:
		return strings.TrimSpace(string(raw)), len(e) > 0
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg, true
		}
		return strings.TrimSpace(string(raw)), len(e) > 0
	}
	return providerError, true
}

func normalizeVirusTotal(raw json.RawMessage) cti.VirusTotal {
	out := cti.VirusTotal{Country: unknown, Tags: []string{}}
	var w wireVirusTotal
	var ok bool
	if out.Availability, ok = decodeProvider(raw, &w); !ok {
		return out
	}
	out.Reputation = w.Reputation.or(0)
	out.MaliciousCount = nonNegative(w.MaliciousCount.or(0))
	out.SuspiciousCount = nonNegative(w.SuspiciousCount.or(0))
	out.CleanCount = nonNegative(w.CleanCount.or(0))
	out.UndetectedCount = nonNegative(w.UndetectedCount.or(0))
	out.TotalEngines = nonNegative(w.TotalEngines.or(0))
	out.Country = w.Country.or(unknown)
	out.ASN = w.ASN.or(unknown)
	out.ASOwner = w.ASOwner.or(unknown)
	out.Tags = nonNil(w.Tags)
	return out
}

func normalizeAbuseIPDB(raw json.RawMessage) cti.AbuseIPDB {
	out := cti.AbuseIPDB{CountryCode: unknownCountryCode}
	var w wireAbuseIPDB
	var ok bool
	if out.Availability, ok = decodeProvider(raw, &w); !ok {
		return out
	}
	out.AbuseConfidence = clampPercent(w.AbuseConfidence.or(0))
	out.TotalReports = nonNegative(w.TotalReports.or(0))
	out.NumDistinctUsers = nonNegative(w.NumDistinctUsers.or(0))
	out.CountryCode = w.CountryCode.or(unknownCountryCode)
	out.UsageType = w.UsageType.or(unknown)
	out.ISP = w.ISP.or(unknown)
	out.Domain = w.Domain.or(unknown)
	out.IsPublic = w.IsPublic.Value
	out.IsWhitelisted = w.IsWhitelisted.Value
	return out
}

func normalizeGeolocation(raw json.RawMessage) cti.Geolocation {
	out := cti.Geolocation{
		Country:      unknown,
		CountryCode:  unknownCountryCode,
		Region:       unknown,
		City:         unknown,
		Continent:    unknown,
		Timezone:     unknown,
		ISP:          unknown,
		Organization: unknown,
		ASN:          unknown,
		ASNName:      unknown,
	}
	var w wireGeolocation
	var ok bool
	if out.Availability, ok = decodeProvider(raw, &w); !ok {
		return out
	}
	out.Country = w.Country.or(unknown)
	out.CountryCode = w.CountryCode.or(unknownCountryCode)
	out.Region = w.Region.or(unknown)
	out.City = w.City.or(unknown)
	out.Continent = w.Continent.or(unknown)
	out.Latitude = w.Latitude.Value
	out.Longitude = w.Longitude.Value
	out.Timezone = w.Timezone.or(unknown)
	out.ISP = w.ISP.or(unknown)
	out.Organization = w.Organization.or(unknown)
	out.ASN = w.ASN.or(unknown)
	out.ASNName = w.ASNName.or(unknown)
	out.IsMobile = w.IsMobile.Value
	out.IsProxy = w.IsProxy.Value
	out.IsHosting = w.IsHosting.Value
	return out
}

func normalizeShodan(raw json.RawMessage) cti.Shodan {
	out := cti.Shodan{
		OpenPorts:       []int{},
		Vulnerabilities: []string{},
		ServiceTags:     []string{},
		CPEInfo:         []string{},
		Hostnames:       []string{},
	}
	var w wireShodan
	var ok bool
	if out.Availability, ok = decodeProvider(raw, &w); !ok {
		return out
	}
	if w.OpenPorts != nil {
		out.OpenPorts = w.OpenPorts
	}
	out.Vulnerabilities = nonNil(w.Vulnerabilities)
	out.ServiceTags = nonNil(w.ServiceTags)
	out.CPEInfo = nonNil(w.CPEInfo)
	out.Hostnames = nonNil(w.Hostnames)
	return out
}

func normalizeHistoryEntry(raw json.RawMessage) (cti.HistoryEntry, bool) {
	var w wireHistoryEntry
	if !decodeObject(raw, &w) {
		return cti.HistoryEntry{}, false
	}

	var loc wireLocation
	decodeObject(w.Location, &loc)

	flags := map[string]flexBool{}
	decodeObject(w.Sources, &flags)
	sources := make(map[cti.Provider]bool, len(cti.Providers))
	for _, p := range cti.Providers {
		sources[p] = flags[string(p)].Value
	}

	return cti.HistoryEntry{
		ScanID:      w.ScanID.or(""),
		Input:       w.Input.or(""),
		Type:        cti.ParseTargetType(strings.ToLower(w.InputType.or(""))),
		ThreatScore: clampPercent(w.ThreatScore.or(0)),
		Confidence:  clampPercent(w.Confidence.or(0)),
		Timestamp:   w.Timestamp.Value,
		Location: cti.Location{
			Country:     loc.Country.or(cti.UnknownCountry),
			City:        loc.City.or(unknown),
			CountryCode: loc.CountryCode.or(unknownCountryCode),
		},
		Sources:        sources,
		Status:         w.Status.or("completed"),
		ProcessingTime: w.ProcessingTime.or("N/A"),
	}, true
}

func (c *Client) decodeHistory(body []byte) []cti.HistoryEntry {
	var envelope struct {
		Scans json.RawMessage `json:"scans"`
	}
	var items []json.RawMessage
	if decodeObject(body, &envelope) {
		_ = json.Unmarshal(envelope.Scans, &items)
	} else {
		// Accept a bare array as well.
		_ = json.Unmarshal(body, &items)
	}

	out := make([]cti.HistoryEntry, 0, len(items))
	for i, raw := range items {
		entry, ok := normalizeHistoryEntry(raw)
		if !ok {
			c.logger.Debug("Skipping malformed history entry", "index", i)
			continue
		}
		out = append(out, entry)
	}
	return out
}

func normalizeStats(body []byte) cti.RemoteStats {
	var w wireStats
	decodeObject(body, &w)

	raw := map[string]any{}
	decodeObject(body, &raw)

	stats := cti.RemoteStats{
		TotalScans:         w.TotalScans.or(0),
		RecentScans:        w.RecentScans.or(0),
		ThreatDistribution: intMap(w.ThreatDistribution),
		ScanTypes:          intMap(w.ScanTypes),
		APISuccessRates:    map[string]string{},
		TopCountries:       map[string]int{},
		Raw:                raw,
	}

	rates := map[string]flexString{}
	decodeObject(w.APIPerformance, &rates)
	for k, v := range rates {
		if v.Set {
			stats.APISuccessRates[strings.TrimSuffix(k, "_success_rate")] = v.Value
		}
	}

	var perf struct {
		CacheHitRate          flexString `json:"cache_hit_rate"`
		AverageProcessingTime flexString `json:"average_processing_time"`
	}
	decodeObject(w.PerformanceMetrics, &perf)
	stats.CacheHitRate = perf.CacheHitRate.or("")
	stats.AverageProcessingTime = perf.AverageProcessingTime.or("")

	var geo struct {
		TopCountries json.RawMessage `json:"top_countries"`
	}
	decodeObject(w.GeographicStats, &geo)
	stats.TopCountries = intMap(geo.TopCountries)
	return stats
}

func intMap(raw json.RawMessage) map[string]int {
	values := map[string]flexInt{}
	decodeObject(raw, &values)
	out := make(map[string]int, len(values))
	for k, v := range values {
		if v.Set {
			out[k] = v.Value
		}
	}
	return out
}

func clampPercent(v int) int {
	return min(max(v, 0), 100)
}

func nonNegative(v int) int {
	return max(v, 0)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
