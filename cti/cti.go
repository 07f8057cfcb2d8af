// Package cti holds the shared value types of the threat-intelligence lookup
// client: scan targets, normalized scan results and history entries.
package cti

import (
	"math"
	"time"
)

// TargetType tags what kind of indicator a raw input represents.
type TargetType string

const (
	TargetIP      TargetType = "ip"
	TargetDomain  TargetType = "domain"
	TargetURL     TargetType = "url"
	TargetUnknown TargetType = "unknown"
)

// ParseTargetType maps a wire value onto a TargetType. Anything unrecognised is
// TargetUnknown.
func ParseTargetType(s string) TargetType {
	switch TargetType(s) {
	case TargetIP, TargetDomain, TargetURL:
		return TargetType(s)
	default:
		return TargetUnknown
	}
}

// ScanTarget is one user submission, scoped to a single scan request.
type ScanTarget struct {
	RawInput string     `json:"input"`
	Type     TargetType `json:"input_type"`
}

// Provider names an upstream intelligence source.
type Provider string

const (
	ProviderVirusTotal  Provider = "virustotal"
	ProviderAbuseIPDB   Provider = "abuseipdb"
	ProviderGeolocation Provider = "geolocation"
	ProviderShodan      Provider = "shodan"
)

// Providers lists every known provider in display order.
var Providers = []Provider{ProviderVirusTotal, ProviderAbuseIPDB, ProviderGeolocation, ProviderShodan}

// UnknownCountry is the bucket used for results without a usable country.
const UnknownCountry = "Unknown"

// ThreatAssessment is the collaborator's verdict. Score alone drives the
// risk bucket.
type ThreatAssessment struct {
	Score       int      `json:"score"`
	Confidence  int      `json:"confidence"`
	RiskFactors []string `json:"risk_factors"`
	// Level is the collaborator's own label. Display code classifies Score
	// instead of trusting it.
	Level string `json:"threat_level,omitempty"`
}

// Availability is embedded in every provider record. A provider that was
// missing from the payload or answered with an error marker is unavailable.
type Availability struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// IsAvailable reports whether the provider contributed data.
func (a Availability) IsAvailable() bool { return a.Available }

type VirusTotal struct {
	Availability
	Reputation      int      `json:"reputation"`
	MaliciousCount  int      `json:"malicious_count"`
	SuspiciousCount int      `json:"suspicious_count"`
	CleanCount      int      `json:"clean_count"`
	UndetectedCount int      `json:"undetected_count"`
	TotalEngines    int      `json:"total_engines"`
	Country         string   `json:"country"`
	ASN             string   `json:"asn"`
	ASOwner         string   `json:"as_owner"`
	Tags            []string `json:"tags"`
}

type AbuseIPDB struct {
	Availability
	AbuseConfidence  int    `json:"abuse_confidence"`
	TotalReports     int    `json:"total_reports"`
	NumDistinctUsers int    `json:"num_distinct_users"`
	CountryCode      string `json:"country_code"`
	UsageType        string `json:"usage_type"`
	ISP              string `json:"isp"`
	Domain           string `json:"domain"`
	IsPublic         bool   `json:"is_public"`
	IsWhitelisted    bool   `json:"is_whitelisted"`
}

type Geolocation struct {
	Availability
	Country      string  `json:"country"`
	CountryCode  string  `json:"country_code"`
	Region       string  `json:"region"`
	City         string  `json:"city"`
	Continent    string  `json:"continent"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timezone     string  `json:"timezone"`
	ISP          string  `json:"isp"`
	Organization string  `json:"organization"`
	ASN          string  `json:"asn"`
	ASNName      string  `json:"asn_name"`
	IsMobile     bool    `json:"is_mobile"`
	IsProxy      bool    `json:"is_proxy"`
	IsHosting    bool    `json:"is_hosting"`
}

type Shodan struct {
	Availability
	OpenPorts       []int    `json:"open_ports"`
	Vulnerabilities []string `json:"vulnerabilities"`
	ServiceTags     []string `json:"service_tags"`
	CPEInfo         []string `json:"cpe_info"`
	Hostnames       []string `json:"hostnames"`
}

// ProviderResults carries one normalized record per provider. Every record is
// total: fields of an unavailable provider hold their defaults.
type ProviderResults struct {
	VirusTotal  VirusTotal  `json:"virustotal"`
	AbuseIPDB   AbuseIPDB   `json:"abuseipdb"`
	Geolocation Geolocation `json:"geolocation"`
	Shodan      Shodan      `json:"shodan"`
}

// Available reports whether the named provider contributed data.
func (p ProviderResults) Available(name Provider) bool {
	switch name {
	case ProviderVirusTotal:
		return p.VirusTotal.Available
	case ProviderAbuseIPDB:
		return p.AbuseIPDB.Available
	case ProviderGeolocation:
		return p.Geolocation.Available
	case ProviderShodan:
		return p.Shodan.Available
	}
	return false
}

// Status returns the availability of every known provider.
func (p ProviderResults) Status() map[Provider]bool {
	status := make(map[Provider]bool, len(Providers))
	for _, name := range Providers {
		status[name] = p.Available(name)
	}
	return status
}

// AvailableCount returns how many providers contributed data.
func (p ProviderResults) AvailableCount() int {
	n := 0
	for _, name := range Providers {
		if p.Available(name) {
			n++
		}
	}
	return n
}

type ScanMetadata struct {
	ProcessingTime string `json:"processing_time"`
	DataSources    int    `json:"data_sources"`
}

// Insights is the collaborator's narrative analysis. It is display-only.
type Insights struct {
	ExecutiveSummary        string   `json:"executive_summary"`
	TechnicalAnalysis       []string `json:"technical_analysis"`
	SecurityRecommendations []string `json:"security_recommendations"`
	BusinessImpact          string   `json:"business_impact"`
	DataQualityAssessment   string   `json:"data_quality_assessment"`
}

// ScanResult is the normalized outcome of one successful scan.
type ScanResult struct {
	ScanID     string           `json:"scan_id"`
	Input      string           `json:"input"`
	TargetType TargetType       `json:"input_type"`
	ResolvedIP string           `json:"target_ip,omitempty"`
	Threat     ThreatAssessment `json:"threat_analysis"`
	Sources    ProviderResults  `json:"intelligence_sources"`
	Metadata   ScanMetadata     `json:"scan_metadata"`
	Insights   Insights         `json:"professional_insights"`
	// Timestamp is epoch seconds at result receipt.
	Timestamp float64 `json:"timestamp"`
}

// Location is the reduced geography carried by a history entry.
type Location struct {
	Country     string `json:"country"`
	City        string `json:"city"`
	CountryCode string `json:"country_code,omitempty"`
}

// HistoryEntry is the renderable projection of a ScanResult kept in history.
type HistoryEntry struct {
	ScanID         string            `json:"scan_id"`
	Input          string            `json:"input"`
	Type           TargetType        `json:"input_type"`
	ThreatScore    int               `json:"threat_score"`
	Confidence     int               `json:"confidence"`
	Timestamp      float64           `json:"timestamp"`
	Location       Location          `json:"location"`
	Sources        map[Provider]bool `json:"sources,omitempty"`
	Status         string            `json:"status"`
	ProcessingTime string            `json:"processing_time,omitempty"`
}

// Time converts the entry's epoch timestamp.
func (e HistoryEntry) Time() time.Time {
	return EpochTime(e.Timestamp)
}

// CountryOrUnknown returns the entry's country, or UnknownCountry when absent.
func (e HistoryEntry) CountryOrUnknown() string {
	if e.Location.Country == "" {
		return UnknownCountry
	}
	return e.Location.Country
}

// Epoch converts t to fractional epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// EpochTime converts fractional epoch seconds back to a time.Time.
func EpochTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// RemoteStats is the collaborator's global counters. They are rendered as
// reported, never recomputed locally.
type RemoteStats struct {
	TotalScans            int               `json:"total_scans"`
	RecentScans           int               `json:"recent_scans"`
	ThreatDistribution    map[string]int    `json:"threat_distribution"`
	ScanTypes             map[string]int    `json:"scan_types"`
	APISuccessRates       map[string]string `json:"api_success_rates"`
	CacheHitRate          string            `json:"cache_hit_rate,omitempty"`
	AverageProcessingTime string            `json:"average_processing_time,omitempty"`
	TopCountries          map[string]int    `json:"top_countries,omitempty"`
	Raw                   map[string]any    `json:"-"`
}
