package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/archive"
	"github.com/CTIDashboard/go-api/cti/history"
	"github.com/CTIDashboard/go-api/cti/session"
	"github.com/CTIDashboard/go-api/cti/threat"
	"github.com/spf13/cobra"
)

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Query the PostgreSQL scan archive",
	}
	cmd.AddCommand(newArchiveQueryCmd(opts), newArchiveStatsCmd(opts))
	return cmd
}

func newArchiveQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		f      archive.Filters
		typ    string
		level  string
		since  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List archived scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			arc, err := a.openArchive()
			if err != nil {
				return err
			}

			if typ != "" {
				f.InputType = cti.ParseTargetType(strings.ToLower(typ))
			}
			f.Level = threat.Level(level)
			if since > 0 {
				start := time.Now().Add(-since)
				f.StartTime = &start
			}

			entries, total, err := arc.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"entries": entries, "total": total})
			}
			f = archive.NormalizeFilters(f)
			printHistory(cmd.OutOrStdout(), session.HistoryPage{
				Entries: entries,
				Page:    f.Offset/f.Limit + 1,
				Pages:   history.PageCount(total, f.Limit),
				Size:    f.Limit,
				Total:   total,
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", archive.DefaultLimit, "Rows to return (max 500)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().StringVar(&typ, "type", "", "Input type: ip|domain|url")
	cmd.Flags().StringVar(&level, "level", "", "Risk level: high|medium|low")
	cmd.Flags().StringVar(&f.Country, "country", "", "Country name")
	cmd.Flags().DurationVar(&since, "since", 0, "Only scans newer than this (e.g. 24h)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newArchiveStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count archived scans by risk, type and country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			arc, err := a.openArchive()
			if err != nil {
				return err
			}
			stats, err := arc.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = bold.Fprintf(out, "Archived scans: %d\n", stats.Total)
			for _, l := range threat.Levels {
				_, _ = levelColor(l).Fprintf(out, "  %-8s %d\n", l, stats.ByLevel[string(l)])
			}
			_, _ = bold.Fprintln(out, "\nBy type")
			for _, k := range sortedKeys(stats.ByType) {
				fmt.Fprintf(out, "  %-8s %d\n", k, stats.ByType[k])
			}
			_, _ = bold.Fprintln(out, "\nBy country")
			for _, k := range sortedKeys(stats.ByCountry) {
				fmt.Fprintf(out, "  %-24s %d\n", k, stats.ByCountry[k])
			}
			return nil
		},
	}
}
