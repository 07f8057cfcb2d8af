package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/target"
	"github.com/CTIDashboard/go-api/nvd"
	"github.com/spf13/cobra"
)

// maxEnrichedCVEs bounds NVD lookups per scan; the public API is rate limited.
const maxEnrichedCVEs = 5

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify INPUT",
		Short: "Show how an input would be classified, without scanning it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := target.Classify(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t, target.Label(t))
			return nil
		},
	}
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	var (
		enrich  bool
		asJSON  bool
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "scan INPUT",
		Short: "Analyze an IP address, domain or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, appOptions{journal: !noStore, publisher: !noStore})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.session.Submit(ctx, args[0])
			if err != nil {
				return err
			}

			var cves []nvd.Summary
			if enrich && len(result.Sources.Shodan.Vulnerabilities) > 0 {
				client := nvd.NewClient(opts.cfg.NVD.APIKey)
				cves = client.Summarize(ctx, result.Sources.Shodan.Vulnerabilities, maxEnrichedCVEs)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, map[string]any{"result": result, "cves": cves})
			}
			printResult(out, result)
			printCVEs(out, cves)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Look up reported CVEs in the NVD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the normalized result as JSON")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not journal or publish the result")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit int
		sort  string
		dir   string
		page  int
		size  int
		local bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past scans, sorted and paginated",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = opts.cfg.History.Limit
			}
			if !local {
				entries, err := a.session.RemoteHistory(ctx, limit)
				printAdvisory(cmd.ErrOrStderr(), err)
				for _, e := range entries {
					a.session.Ingest(ctx, e)
				}
			}
			if size <= 0 {
				size = opts.cfg.History.PageSize
			}
			view, err := a.session.HistoryPage(history.Field(sort), history.Direction(strings.ToLower(dir)), size, page)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Entries to request from the lookup service (default from config, max 100)")
	cmd.Flags().StringVar(&sort, "sort", string(history.FieldTimestamp), "Sort column: timestamp|input|input_type|threat_score|confidence|country|city|status")
	cmd.Flags().StringVar(&dir, "dir", string(history.Desc), "Sort direction: asc|desc")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, 1-based")
	cmd.Flags().IntVar(&size, "size", 0, "Page size (default from config)")
	cmd.Flags().BoolVar(&local, "local", false, "Only show locally journaled scans")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show lookup service counters and local risk rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.session.Dashboard(ctx, opts.cfg.History.Limit)
			for _, err := range d.Advisories {
				printAdvisory(cmd.ErrOrStderr(), err)
			}
			for _, e := range d.History {
				a.session.Ingest(ctx, e)
			}

			out := cmd.OutOrStdout()
			if len(d.Advisories) == 0 || d.Stats.TotalScans > 0 {
				printRemoteStats(out, d.Stats)
				fmt.Fprintln(out)
			}
			printReport(out, a.session.Report(), top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Countries and cities to list")
	return cmd
}

func newGeoCmd(opts *rootOptions) *cobra.Command {
	var (
		top    int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "geo",
		Short: "Show the geographic distribution of scanned targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.session.RemoteHistory(ctx, opts.cfg.History.Limit)
			printAdvisory(cmd.ErrOrStderr(), err)
			for _, e := range entries {
				a.session.Ingest(ctx, e)
			}

			view := a.session.Geo(ctx)
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, map[string]any{
					"remote":        view.Remote,
					"top_countries": view.Local.TopCountries(top),
					"top_cities":    view.Local.TopCities(top),
				})
			}
			if view.Remote == nil {
				printAdvisory(cmd.ErrOrStderr(), view.Advisory)
			}
			printReport(out, view.Local, top)
			if hr := view.Local.HighRiskCountries(); len(hr) > 0 {
				_, _ = red.Fprintln(out, "\nHigh-risk countries")
				for _, c := range hr {
					fmt.Fprintf(out, "  %-24s avg %.1f over %d scans\n", c.Country, c.AvgScore, c.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Countries and cities to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
				printBanner(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cti %s\n", version)
		},
	}
}
