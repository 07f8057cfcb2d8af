package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTIDashboard/go-api/cti/api"
	"github.com/CTIDashboard/go-api/cti/config"
	"github.com/CTIDashboard/go-api/cti/queue"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and live scan stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(ctx, cfg, appOptions{journal: true, publisher: true})
			if err != nil {
				return err
			}
			defer a.Close()

			snapshots, err := a.snapshotManager()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if err := a.consumeEvents(ctx); err != nil {
				return err
			}

			apiOpts := []api.Option{
				api.WithSnapshots(snapshots),
				api.WithPageSize(cfg.History.PageSize),
				api.WithLogger(slog.Default()),
			}
			if cfg.Server.RequireAPIKey {
				kv, err := a.valkey()
				if err != nil {
					return err
				}
				apiOpts = append(apiOpts, api.WithAPIKeys(kv))
			}
			server := api.New(a.session, apiOpts...)
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			printBanner(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "cti dashboard listening on %s (lookup service %s)\n", cfg.Server.Addr, cfg.API.BaseURL)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("Shutting down")
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// consumeEvents feeds scans announced by other processes on the broker into
// the session. The session drops scan IDs it already holds, including its own.
func (a *app) consumeEvents(ctx context.Context) error {
	ingest := func(e queue.ScanEvent) {
		if a.session.Ingest(ctx, e.Entry) {
			slog.Debug("Ingested remote scan", "scan_id", e.Entry.ScanID, "source", e.Source)
		}
	}

	b := a.cfg.Broker
	switch b.Driver {
	case config.BrokerAMQP:
		go queue.ListenEvents(ctx, b.URL, b.AMQPRoute(), ingest)
	case config.BrokerNATS:
		nc, err := a.natsConn()
		if err != nil {
			return err
		}
		go func() {
			if err := queue.SubscribeNATS(ctx, nc, b.Subject, ingest); err != nil {
				slog.Warn("NATS subscription ended", "error", err)
			}
		}()
	}
	return nil
}
