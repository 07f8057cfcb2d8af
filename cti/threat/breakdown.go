package threat

import (
	"math"
	"strings"

	"github.com/CTIDashboard/go-api/cti"
)

// Contribution is one provider's informational share of a score.
type Contribution struct {
	Provider  cti.Provider `json:"provider"`
	Category  string       `json:"category"`
	Available bool         `json:"available"`
	Value     float64      `json:"value,omitempty"`
	Max       float64      `json:"max"`
}

var highRiskCountries = map[string]bool{"CN": true, "RU": true, "KP": true, "IR": true}

var suspiciousTags = []string{"malware", "botnet", "tor", "scanner", "honeypot", "bruteforce"}

// Contributions breaks a result down per provider. Unavailable providers are
// reported with Available=false and no value; they are never counted as a
// zero-risk contribution.
func Contributions(sources cti.ProviderResults) []Contribution {
	out := make([]Contribution, 0, len(cti.Providers))

	vt := Contribution{Provider: cti.ProviderVirusTotal, Category: "malware reputation", Max: 40}
	if sources.VirusTotal.Available {
		vt.Available = true
		engines := math.Max(float64(sources.VirusTotal.TotalEngines), 1)
		vt.Value = math.Min(float64(sources.VirusTotal.MaliciousCount)/engines*40, 40)
	}
	out = append(out, vt)

	abuse := Contribution{Provider: cti.ProviderAbuseIPDB, Category: "abuse reports", Max: 30}
	if sources.AbuseIPDB.Available {
		abuse.Available = true
		abuse.Value = math.Min(float64(sources.AbuseIPDB.AbuseConfidence)/100*30, 30)
	}
	out = append(out, abuse)

	geo := Contribution{Provider: cti.ProviderGeolocation, Category: "geography", Max: 15}
	if sources.Geolocation.Available {
		geo.Available = true
		if highRiskCountries[strings.ToUpper(sources.Geolocation.CountryCode)] {
			geo.Value = 15
		}
	}
	out = append(out, geo)

	infra := Contribution{Provider: cti.ProviderShodan, Category: "infrastructure", Max: 15}
	if sources.Shodan.Available {
		infra.Available = true
		infra.Value = math.Min(float64(len(sources.Shodan.Vulnerabilities)), 15)
	}
	out = append(out, infra)

	return out
}

// SuspiciousServices returns the Shodan service tags that match a known
// suspicious keyword.
func SuspiciousServices(shodan cti.Shodan) []string {
	if !shodan.Available {
		return nil
	}
	var hits []string
	for _, tag := range shodan.ServiceTags {
		lower := strings.ToLower(tag)
		for _, sus := range suspiciousTags {
			if strings.Contains(lower, sus) {
				hits = append(hits, tag)
				break
			}
		}
	}
	return hits
}
