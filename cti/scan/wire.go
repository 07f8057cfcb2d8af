package scan

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The flex types decode a single payload field without ever failing: a value
// of the wrong JSON type leaves Set false so the normalizer substitutes its
// default. This keeps one bad field from discarding the rest of the payload.

type flexString struct {
	Value string
	Set   bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		f.Value, f.Set = x, true
	case float64:
		f.Value, f.Set = strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		f.Value, f.Set = strconv.FormatBool(x), true
	}
	return nil
}

// or returns the value, or def when unset or blank.
func (f flexString) or(def string) string {
	if !f.Set || strings.TrimSpace(f.Value) == "" {
		return def
	}
	return f.Value
}

type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		f.Value, f.Set = x, true
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			f.Value, f.Set = n, true
		}
	}
	if f.Set && (math.IsNaN(f.Value) || math.IsInf(f.Value, 0)) {
		f.Value, f.Set = 0, false
	}
	return nil
}

type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n flexFloat
	_ = n.UnmarshalJSON(b)
	if n.Set && n.Value >= math.MinInt32 && n.Value <= math.MaxInt32 {
		f.Value, f.Set = int(n.Value), true
	}
	return nil
}

func (f flexInt) or(def int) int {
	if !f.Set {
		return def
	}
	return f.Value
}

type flexBool struct {
	Value bool
	Set   bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case bool:
		f.Value, f.Set = x, true
	case float64:
		f.Value, f.Set = x != 0, true
	case string:
		if p, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			f.Value, f.Set = p, true
		}
	}
	return nil
}

// flexStrings keeps the string and numeric members of an array.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	var items []flexString
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Set {
			out = append(out, it.Value)
		}
	}
	*f = out
	return nil
}

// flexInts keeps the integral members of an array.
type flexInts []int

func (f *flexInts) UnmarshalJSON(b []byte) error {
	var items []flexInt
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it.Set {
			out = append(out, it.Value)
		}
	}
	*f = out
	return nil
}

// flexCount reads either a number or the length of an array.
type flexCount struct {
	flexInt
}

func (f *flexCount) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil {
		f.Value, f.Set = len(arr), true
		return nil
	}
	return f.flexInt.UnmarshalJSON(b)
}

// decodeObject decodes raw into dst when raw is a JSON object. It reports
// whether raw was an object.
func decodeObject(raw json.RawMessage, dst any) bool {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

type wireResult struct {
	Status              flexString      `json:"status"`
	Error               flexString      `json:"error"`
	ScanID              flexString      `json:"scan_id"`
	Input               flexString      `json:"input"`
	InputType           flexString      `json:"input_type"`
	TargetIP            flexString      `json:"target_ip"`
	ThreatAnalysis      json.RawMessage `json:"threat_analysis"`
	IntelligenceSources json.RawMessage `json:"intelligence_sources"`
	ProfessionalInsight json.RawMessage `json:"professional_insights"`
	ScanMetadata        json.RawMessage `json:"scan_metadata"`
}

type wireThreat struct {
	Score       flexInt     `json:"score"`
	Confidence  flexInt     `json:"confidence"`
	ThreatLevel flexString  `json:"threat_level"`
	RiskFactors flexStrings `json:"risk_factors"`
}

type wireMetadata struct {
	ProcessingTime flexString `json:"processing_time"`
	DataSources    flexCount  `json:"data_sources"`
}

type wireInsights struct {
	ExecutiveSummary        flexString  `json:"executive_summary"`
	TechnicalAnalysis       flexStrings `json:"technical_analysis"`
	SecurityRecommendations flexStrings `json:"security_recommendations"`
	BusinessImpact          flexString  `json:"business_impact"`
	DataQualityAssessment   flexString  `json:"data_quality_assessment"`
}

type wireVirusTotal struct {
	Reputation      flexInt     `json:"reputation"`
	MaliciousCount  flexInt     `json:"malicious_count"`
	SuspiciousCount flexInt     `json:"suspicious_count"`
	CleanCount      flexInt     `json:"clean_count"`
	UndetectedCount flexInt     `json:"undetected_count"`
	TotalEngines    flexInt     `json:"total_engines"`
	Country         flexString  `json:"country"`
	ASN             flexString  `json:"asn"`
	ASOwner         flexString  `json:"as_owner"`
	Tags            flexStrings `json:"tags"`
}

type wireAbuseIPDB struct {
	AbuseConfidence  flexInt    `json:"abuse_confidence"`
	TotalReports     flexInt    `json:"total_reports"`
	NumDistinctUsers flexInt    `json:"num_distinct_users"`
	CountryCode      flexString `json:"country_code"`
	UsageType        flexString `json:"usage_type"`
	ISP              flexString `json:"isp"`
	Domain           flexString `json:"domain"`
	IsPublic         flexBool   `json:"is_public"`
	IsWhitelisted    flexBool   `json:"is_whitelisted"`
}

type wireGeolocation struct {
	Country      flexString `json:"country"`
	CountryCode  flexString `json:"country_code"`
	Region       flexString `json:"region"`
	City         flexString `json:"city"`
	Continent    flexString `json:"continent"`
	Latitude     flexFloat  `json:"latitude"`
	Longitude    flexFloat  `json:"longitude"`
	Timezone     flexString `json:"timezone"`
	ISP          flexString `json:"isp"`
	Organization flexString `json:"organization"`
	ASN          flexString `json:"asn"`
	ASNName      flexString `json:"asn_name"`
	IsMobile     flexBool   `json:"is_mobile"`
	IsProxy      flexBool   `json:"is_proxy"`
	IsHosting    flexBool   `json:"is_hosting"`
}

type wireShodan struct {
	OpenPorts       flexInts    `json:"open_ports"`
	Vulnerabilities flexStrings `json:"vulnerabilities"`
	ServiceTags     flexStrings `json:"service_tags"`
	CPEInfo         flexStrings `json:"cpe_info"`
	Hostnames       flexStrings `json:"hostnames"`
}

type wireHistoryEntry struct {
	ScanID         flexString      `json:"scan_id"`
	Input          flexString      `json:"input"`
	InputType      flexString      `json:"input_type"`
	Timestamp      flexFloat       `json:"timestamp"`
	ThreatScore    flexInt         `json:"threat_score"`
	Confidence     flexInt         `json:"confidence"`
	Status         flexString      `json:"status"`
	ProcessingTime flexString      `json:"processing_time"`
	Location       json.RawMessage `json:"location"`
	Sources        json.RawMessage `json:"sources"`
}

type wireLocation struct {
	Country     flexString `json:"country"`
	City        flexString `json:"city"`
	CountryCode flexString `json:"country_code"`
}

type wireStats struct {
	TotalScans         flexInt         `json:"total_scans"`
	RecentScans        flexInt         `json:"recent_scans"`
	ThreatDistribution json.RawMessage `json:"threat_distribution"`
	ScanTypes          json.RawMessage `json:"scan_types"`
	APIPerformance     json.RawMessage `json:"api_performance"`
	PerformanceMetrics json.RawMessage `json:"performance_metrics"`
	GeographicStats    json.RawMessage `json:"geographic_stats"`
}
