package history

import "github.com/CTIDashboard/go-api/cti"

// StatusCompleted is the status of every successfully scanned entry.
const StatusCompleted = "completed"

// FromResult projects a scan result onto its history entry.
func FromResult(r cti.ScanResult) cti.HistoryEntry {
	loc := cti.Location{
		Country:     cti.UnknownCountry,
		City:        "Unknown",
		CountryCode: "XX",
	}
	if geo := r.Sources.Geolocation; geo.Available {
		if geo.Country != "" {
			loc.Country = geo.Country
		}
		if geo.City != "" {
			loc.City = geo.City
		}
		if geo.CountryCode != "" {
			loc.CountryCode = geo.CountryCode
		}
	}

	return cti.HistoryEntry{
		ScanID:         r.ScanID,
		Input:          r.Input,
		Type:           r.TargetType,
		ThreatScore:    r.Threat.Score,
		Confidence:     r.Threat.Confidence,
		Timestamp:      r.Timestamp,
		Location:       loc,
		Sources:        r.Sources.Status(),
		Status:         StatusCompleted,
		ProcessingTime: r.Metadata.ProcessingTime,
	}
}
