package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/aggregate"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/CTIDashboard/go-api/cti/target"
	"github.com/CTIDashboard/go-api/cti/threat"
	"github.com/CTIDashboard/go-api/nvd"
	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

var (
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

func printBanner(w io.Writer) {
	fig := figure.NewFigure("CTI", "doom", true)
	_, _ = red.Fprintln(w, fig.String())
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
	_, _ = green.Fprintln(w, "    Cyber Threat Intelligence Lookup")
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}

func levelColor(l threat.Level) *color.Color {
	switch l {
	case threat.LevelHigh:
		return red
	case threat.LevelMedium:
		return yellow
	default:
		return green
	}
}

// errorLine renders a command error. Scan failures get their user-facing
// message; anything else is printed as is.
func errorLine(err error) string {
	msg := err.Error()
	var failed *cti.AnalysisFailedError
	if errors.Is(err, cti.ErrInvalidInput) || errors.Is(err, cti.ErrTimeout) ||
		errors.Is(err, cti.ErrUnreachable) || errors.As(err, &failed) {
		msg = cti.UserMessage(err)
	}
	return red.Sprint("Error: ") + msg
}

func printAdvisory(w io.Writer, err error) {
	if err == nil {
		return
	}
	_, _ = yellow.Fprintf(w, "⚠️  %s\n", advisoryText(err))
}

func advisoryText(err error) string {
	if errors.Is(err, cti.ErrCollaboratorAbsent) {
		return "The lookup service does not offer this view; showing local data."
	}
	return "Lookup service unavailable: " + cti.UserMessage(err)
}

func printResult(w io.Writer, r cti.ScanResult) {
	c := threat.Classify(r.Threat.Score)
	lc := levelColor(c.Level)

	_, _ = bold.Fprintf(w, "%s  (%s)\n", r.Input, target.Label(r.TargetType))
	if r.ResolvedIP != "" && r.ResolvedIP != r.Input {
		fmt.Fprintf(w, "Resolved IP:   %s\n", r.ResolvedIP)
	}
	_, _ = lc.Fprintf(w, "%s %s  score %d/100\n", c.Icon, c.Label, r.Threat.Score)
	fmt.Fprintf(w, "Confidence:    %d%%\n", r.Threat.Confidence)
	fmt.Fprintf(w, "Sources:       %d/%d (%s)\n",
		r.Sources.AvailableCount(), len(cti.Providers), threat.SourceQuality(r.Sources.AvailableCount()))
	if r.Metadata.ProcessingTime != "" {
		fmt.Fprintf(w, "Processed in:  %s\n", r.Metadata.ProcessingTime)
	}

	if len(r.Threat.RiskFactors) > 0 {
		_, _ = bold.Fprintln(w, "\nRisk factors")
		for _, f := range r.Threat.RiskFactors {
			fmt.Fprintf(w, "  • %s\n", f)
		}
	}

	_, _ = bold.Fprintln(w, "\nScore contributions")
	for _, ct := range threat.Contributions(r.Sources) {
		if !ct.Available {
			_, _ = faint.Fprintf(w, "  %-12s %-16s unavailable\n", ct.Provider, ct.Category)
			continue
		}
		fmt.Fprintf(w, "  %-12s %-16s %5.1f / %.0f\n", ct.Provider, ct.Category, ct.Value, ct.Max)
	}

	printSources(w, r.Sources)

	if r.Insights.ExecutiveSummary != "" {
		_, _ = bold.Fprintln(w, "\nSummary")
		fmt.Fprintf(w, "  %s\n", r.Insights.ExecutiveSummary)
	}
	if len(r.Insights.SecurityRecommendations) > 0 {
		_, _ = bold.Fprintln(w, "\nRecommendations")
		for _, rec := range r.Insights.SecurityRecommendations {
			fmt.Fprintf(w, "  • %s\n", rec)
		}
	}
}

func printSources(w io.Writer, s cti.ProviderResults) {
	_, _ = bold.Fprintln(w, "\nProviders")
	if vt := s.VirusTotal; vt.Available {
		fmt.Fprintf(w, "  VirusTotal   %d malicious, %d suspicious of %d engines\n",
			vt.MaliciousCount, vt.SuspiciousCount, vt.TotalEngines)
	} else {
		printUnavailable(w, "VirusTotal", vt.Error)
	}
	if ab := s.AbuseIPDB; ab.Available {
		fmt.Fprintf(w, "  AbuseIPDB    confidence %d%%, %d reports, ISP %s\n",
			ab.AbuseConfidence, ab.TotalReports, orDash(ab.ISP))
	} else {
		printUnavailable(w, "AbuseIPDB", ab.Error)
	}
	if geo := s.Geolocation; geo.Available {
		fmt.Fprintf(w, "  Geolocation  %s, %s (%s)\n", geo.City, geo.Country, geo.CountryCode)
	} else {
		printUnavailable(w, "Geolocation", geo.Error)
	}
	if sh := s.Shodan; sh.Available {
		fmt.Fprintf(w, "  Shodan       %d open ports, %d vulnerabilities\n", len(sh.OpenPorts), len(sh.Vulnerabilities))
		if svc := threat.SuspiciousServices(sh); len(svc) > 0 {
			_, _ = yellow.Fprintf(w, "               suspicious services: %s\n", strings.Join(svc, ", "))
		}
	} else {
		printUnavailable(w, "Shodan", sh.Error)
	}
}

func printUnavailable(w io.Writer, name, reason string) {
	if reason == "" {
		reason = "no data"
	}
	_, _ = faint.Fprintf(w, "  %-12s unavailable (%s)\n", name, reason)
}

func printCVEs(w io.Writer, summaries []nvd.Summary) {
	if len(summaries) == 0 {
		return
	}
	_, _ = bold.Fprintln(w, "\nVulnerabilities")
	for _, s := range summaries {
		line := fmt.Sprintf("  %-16s %4.1f %-8s", s.ID, s.BaseScore, s.Severity)
		switch {
		case s.BaseScore >= 9:
			_, _ = red.Fprint(w, line)
		case s.BaseScore >= 7:
			_, _ = yellow.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
		fmt.Fprintf(w, " %s\n", truncate(s.Description, 90))
	}
}

func printHistory(w io.Writer, page session.HistoryPage) {
	if page.Total == 0 {
		fmt.Fprintln(w, "No scan history yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tINPUT\tTYPE\tSCORE\tRISK\tCOUNTRY\tCITY")
	for _, e := range page.Entries {
		c := threat.Classify(e.ThreatScore)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Time().Local().Format(time.DateTime),
			truncate(e.Input, 40),
			e.Type,
			e.ThreatScore,
			levelColor(c.Level).Sprint(c.Level),
			e.CountryOrUnknown(),
			orDash(e.Location.City))
	}
	_ = tw.Flush()
	_, _ = faint.Fprintf(w, "page %d of %d, %d entries\n", page.Page, max(page.Pages, 1), page.Total)
}

func printRemoteStats(w io.Writer, s cti.RemoteStats) {
	_, _ = bold.Fprintln(w, "Lookup service")
	fmt.Fprintf(w, "  Total scans:       %d\n", s.TotalScans)
	fmt.Fprintf(w, "  Last 24h:          %d\n", s.RecentScans)
	if s.CacheHitRate != "" {
		fmt.Fprintf(w, "  Cache hit rate:    %s\n", s.CacheHitRate)
	}
	if s.AverageProcessingTime != "" {
		fmt.Fprintf(w, "  Avg processing:    %s\n", s.AverageProcessingTime)
	}
	if len(s.APISuccessRates) > 0 {
		_, _ = bold.Fprintln(w, "\nProvider success rates")
		for _, name := range sortedKeys(s.APISuccessRates) {
			fmt.Fprintf(w, "  %-14s %s\n", name, s.APISuccessRates[name])
		}
	}
	if len(s.ThreatDistribution) > 0 {
		_, _ = bold.Fprintln(w, "\nThreat distribution")
		for _, l := range threat.Levels {
			n, ok := s.ThreatDistribution[strings.ToLower(string(l))]
			if !ok {
				n = s.ThreatDistribution[string(l)]
			}
			_, _ = levelColor(l).Fprintf(w, "  %-8s %d\n", l, n)
		}
	}
}

func printReport(w io.Writer, r aggregate.Report, top int) {
	_, _ = bold.Fprintln(w, "Local history")
	fmt.Fprintf(w, "  Scans:          %d\n", r.TotalScans)
	fmt.Fprintf(w, "  Average score:  %.1f\n", r.AverageScore)
	for _, l := range threat.Levels {
		_, _ = levelColor(l).Fprintf(w, "  %-8s %d\n", l, r.RiskBands[l])
	}

	countries := r.TopCountries(top)
	if len(countries) == 0 {
		return
	}
	_, _ = bold.Fprintln(w, "\nTop countries")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTRY\tSCANS\tAVG SCORE\tRISK")
	for _, c := range countries {
		cl := threat.Classify(int(c.AvgScore))
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%s\n", c.Country, c.Count, c.AvgScore, levelColor(cl.Level).Sprint(cl.Level))
	}
	_ = tw.Flush()

	if cities := r.TopCities(top); len(cities) > 0 {
		_, _ = bold.Fprintln(w, "\nTop cities")
		for _, c := range cities {
			fmt.Fprintf(w, "  %-24s %d\n", c.City, c.Count)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
