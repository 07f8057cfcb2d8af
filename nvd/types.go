package nvd

// Response is the top-level CVE API 2.0 document.
type Response struct {
	ResultsPerPage  int    `json:"resultsPerPage"`
	StartIndex      int    `json:"startIndex"`
	TotalResults    int    `json:"totalResults"`
	Format          string `json:"format"`
	Version         string `json:"version"`
	Timestamp       string `json:"timestamp"`
	Vulnerabilities []Item `json:"vulnerabilities"`
}

// Item wraps one CVE in the "vulnerabilities" array.
type Item struct {
	CVE CVE `json:"cve"`
}

// CVE holds the parts of an NVD record used for enrichment.
type CVE struct {
	ID               string       `json:"id"`
	SourceIdentifier string       `json:"sourceIdentifier"`
	VulnStatus       string       `json:"vulnStatus"`
	Published        string       `json:"published"`
	LastModified     string       `json:"lastModified"`
	Descriptions     []LangString `json:"descriptions"`
	References       []Reference  `json:"references"`
	Metrics          Metrics      `json:"metrics,omitempty"`
	Weaknesses       []Weakness   `json:"weaknesses,omitempty"`

	CisaExploitAdd        *string `json:"cisaExploitAdd,omitempty"`
	CisaVulnerabilityName *string `json:"cisaVulnerabilityName,omitempty"`
}

type LangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type Reference struct {
	URL    string   `json:"url"`
	Source string   `json:"source,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// Metrics groups the CVSS versions NVD may report.
type Metrics struct {
	CvssMetricV31 []CvssV3 `json:"cvssMetricV31,omitempty"`
	CvssMetricV30 []CvssV3 `json:"cvssMetricV30,omitempty"`
	CvssMetricV2  []CvssV2 `json:"cvssMetricV2,omitempty"`
}

// CvssV3 covers both 3.0 and 3.1 metrics, which share a layout.
type CvssV3 struct {
	Source              string    `json:"source"`
	Type                string    `json:"type"`
	CvssData            CvssData3 `json:"cvssData"`
	ExploitabilityScore float64   `json:"exploitabilityScore,omitempty"`
	ImpactScore         float64   `json:"impactScore,omitempty"`
}

type CvssData3 struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
	AttackVector string  `json:"attackVector"`
}

type CvssV2 struct {
	Source       string    `json:"source"`
	Type         string    `json:"type"`
	CvssData     CvssData2 `json:"cvssData"`
	BaseSeverity *string   `json:"baseSeverity,omitempty"`
}

type CvssData2 struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
}

type Weakness struct {
	Source      string       `json:"source"`
	Type        string       `json:"type"`
	Description []LangString `json:"description"`
}

// Summary is the condensed view printed next to a scan's vulnerabilities.
type Summary struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	BaseScore      float64  `json:"base_score"`
	Severity       string   `json:"severity"`
	CVSSVersion    string   `json:"cvss_version,omitempty"`
	Published      string   `json:"published,omitempty"`
	Weaknesses     []string `json:"weaknesses,omitempty"`
	KnownExploited bool     `json:"known_exploited"`
}

// Summary condenses c. The newest CVSS version present wins.
func (c CVE) Summary() Summary {
	s := Summary{
		ID:             c.ID,
		Description:    c.englishDescription(),
		Published:      c.Published,
		KnownExploited: c.CisaExploitAdd != nil,
		Severity:       "UNKNOWN",
	}

	switch {
	case len(c.Metrics.CvssMetricV31) > 0:
		d := primaryV3(c.Metrics.CvssMetricV31).CvssData
		s.BaseScore, s.Severity, s.CVSSVersion = d.BaseScore, d.BaseSeverity, d.Version
	case len(c.Metrics.CvssMetricV30) > 0:
		d := primaryV3(c.Metrics.CvssMetricV30).CvssData
		s.BaseScore, s.Severity, s.CVSSVersion = d.BaseScore, d.BaseSeverity, d.Version
	case len(c.Metrics.CvssMetricV2) > 0:
		m := c.Metrics.CvssMetricV2[0]
		s.BaseScore, s.CVSSVersion = m.CvssData.BaseScore, m.CvssData.Version
		if m.BaseSeverity != nil {
			s.Severity = *m.BaseSeverity
		}
	}

	for _, w := range c.Weaknesses {
		for _, d := range w.Description {
			if d.Lang == "en" && d.Value != "" {
				s.Weaknesses = append(s.Weaknesses, d.Value)
			}
		}
	}
	return s
}

func (c CVE) englishDescription() string {
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(c.Descriptions) > 0 {
		return c.Descriptions[0].Value
	}
	return ""
}

// primaryV3 prefers the NVD's own "Primary" metric over secondary sources.
func primaryV3(metrics []CvssV3) CvssV3 {
	for _, m := range metrics {
		if m.Type == "Primary" {
			return m
		}
	}
	return metrics[0]
}
