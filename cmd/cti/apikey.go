package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/CTIDashboard/go-api/cti/store"
	"github.com/spf13/cobra"
)

func newAPIKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage keys for the dashboard API (stored in valkey)",
	}

	var label string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a new key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			kv, err := a.valkey()
			if err != nil {
				return err
			}
			raw, meta, err := store.IssueAPIKey(cmd.Context(), kv, label)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, raw)
			_, _ = yellow.Fprintf(cmd.ErrOrStderr(), "Key %s issued. It will not be shown again.\n", meta.ID[:12])
			return nil
		},
	}
	create.Flags().StringVar(&label, "label", "", "Human-readable label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List issued keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			kv, err := a.valkey()
			if err != nil {
				return err
			}
			keys, err := store.ListAPIKeys(cmd.Context(), kv)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tLABEL\tCREATED\tLAST USED")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Prefix, orDash(k.Label), k.CreatedAt, orDash(k.LastUsedAt))
			}
			return tw.Flush()
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a key by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &app{cfg: opts.cfg}
			defer a.Close()
			kv, err := a.valkey()
			if err != nil {
				return err
			}
			if err := store.RevokeAPIKey(cmd.Context(), kv, args[0]); err != nil {
				return err
			}
			_, _ = green.Fprintln(cmd.OutOrStdout(), "✅ Key revoked")
			return nil
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
