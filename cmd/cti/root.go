package main

import (
	"os"

	"github.com/CTIDashboard/go-api/cti/config"
	"github.com/CTIDashboard/go-api/cti/slogger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	apiURL     string
	cfg        *config.Config
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cti",
		Short:         "Threat-intelligence lookups against the CTI analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.apiURL != "" {
				cfg.API.BaseURL = opts.apiURL
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			slogger.InitWith(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			opts.cfg = cfg
			return nil
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate("cti {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", getenvDefault("CTI_CONFIG", ""), "Path to config YAML")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Lookup service base URL (overrides config)")

	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newGeoCmd(opts))
	cmd.AddCommand(newSnapshotCmd(opts))
	cmd.AddCommand(newArchiveCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAPIKeyCmd(opts))
	cmd.AddCommand(newVersionCmd(version))
	return cmd
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
