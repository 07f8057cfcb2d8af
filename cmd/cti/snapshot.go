package main

import (
	"fmt"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/config"
	"github.com/CTIDashboard/go-api/cti/snapshot"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record and inspect point-in-time risk snapshots",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if opts.cfg.Snapshots.Store != config.SnapshotValkey {
				return fmt.Errorf("snapshot commands need snapshots.store: valkey")
			}
			return nil
		},
	}
	cmd.AddCommand(newSnapshotCreateCmd(opts), newSnapshotListCmd(opts), newSnapshotShowCmd(opts))
	return cmd
}

func newSnapshotCreateCmd(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the current history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.session.Store().Snapshot()
			if len(entries) == 0 {
				var err error
				entries, err = a.session.RemoteHistory(ctx, opts.cfg.History.Limit)
				printAdvisory(cmd.ErrOrStderr(), err)
			}

			mgr, err := a.snapshotManager()
			if err != nil {
				return err
			}
			snap, err := mgr.Create(ctx, entries, id)
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Snapshot ID (default: current UTC time)")
	return cmd
}

func newSnapshotListCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			mgr, err := a.snapshotManager()
			if err != nil {
				return err
			}
			trend, err := mgr.Trend(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(trend) == 0 {
				fmt.Fprintln(out, "No snapshots recorded.")
				return nil
			}
			for _, s := range trend {
				fmt.Fprintf(out, "%s  total %-5d ", s.SnapshotID, s.Counts.Total)
				_, _ = red.Fprintf(out, "high %-4d ", s.Counts.High)
				_, _ = yellow.Fprintf(out, "medium %-4d ", s.Counts.Medium)
				_, _ = green.Fprintf(out, "low %-4d", s.Counts.Low)
				fmt.Fprintf(out, " avg %.1f\n", s.Metadata.AverageScore)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", snapshot.MaxTrend, "Snapshots to show")
	return cmd
}

func newSnapshotShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [ID]",
		Short: "Show one snapshot (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			mgr, err := a.snapshotManager()
			if err != nil {
				return err
			}
			var snap *snapshot.RiskSnapshot
			if len(args) == 1 {
				snap, err = mgr.Get(cmd.Context(), args[0])
			} else {
				snap, err = mgr.Latest(cmd.Context())
			}
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)
			return nil
		},
	}
}

func printSnapshot(cmd *cobra.Command, s *snapshot.RiskSnapshot) {
	out := cmd.OutOrStdout()
	_, _ = bold.Fprintf(out, "Snapshot %s\n", s.SnapshotID)
	fmt.Fprintf(out, "  Taken:    %s\n", s.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "  Scans:    %d (avg score %.1f, %d countries)\n", s.Counts.Total, s.Metadata.AverageScore, s.Metadata.Countries)
	_, _ = red.Fprintf(out, "  HIGH     %d\n", s.Counts.High)
	_, _ = yellow.Fprintf(out, "  MEDIUM   %d\n", s.Counts.Medium)
	_, _ = green.Fprintf(out, "  LOW      %d\n", s.Counts.Low)
	if len(s.ByCountry) == 0 {
		return
	}
	_, _ = bold.Fprintln(out, "\n  Countries")
	for _, c := range s.ByCountry {
		name := c.Country
		if name == "" {
			name = cti.UnknownCountry
		}
		fmt.Fprintf(out, "    %-24s %4d  avg %.1f\n", name, c.Count, c.AvgScore)
	}
}
