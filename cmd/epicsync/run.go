package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/epicsync/epicsync/internal/daemon"
	"github.com/epicsync/epicsync/internal/dashboard"
	"github.com/epicsync/epicsync/internal/sync"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the notes directory and sync continuously",
	Long: `Start the sync daemon.

The daemon performs a full baseline pass, then watches the notes
directory for markdown changes. Changes are debounced and synced in
batches. SIGINT/SIGTERM shut it down cleanly; any pass in flight
finishes first.

With a dashboard port configured, a WebSocket server streams pass
events and serves a JSON summary at /api/status.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := loadConfig()
		if err != nil {
			fatal(err)
		}

		var notifier sync.Notifier
		var dash *dashboard.Server
		if cfg.DashboardPort > 0 {
			dash = dashboard.NewServer(cfg.DashboardPort, logger)
			notifier = dashboard.NewNotifier(dash)
		}

		a, err := buildAppFrom(cfg, logger, notifier)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Fail fast on bad credentials before the watcher starts.
		if err := a.client.Myself(ctx); err != nil {
			fatal(fmt.Errorf("jira credential check: %w", err))
		}

		if dash != nil {
			if err := dash.Start(); err != nil {
				fatal(err)
			}
			defer func() {
				if err := dash.Stop(); err != nil {
					a.logger.Warn().Err(err).Msg("stopping dashboard")
				}
			}()
			fmt.Printf("Dashboard listening on http://%s\n", dash.Addr())
		}

		d, err := daemon.New(a.cfg, a.engine, a.logger)
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Watching %s (project %s)\n", a.cfg.WatchDir, a.cfg.JiraProjectKey)
		if err := d.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon exited: %v\n", err)
			os.Exit(1)
		}
	},
}
