package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/daemon"
	"github.com/jotdeck/jotdeck/internal/dashboard"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/ui"
)

// statsInterval is how often the dashboard pushes fresh statistics.
const statsInterval = 5 * time.Second

func (c *cli) daemonCmd() *cobra.Command {
	var (
		withDashboard bool
		port          int
	)
	cmd := &cobra.Command{
		Use:     "daemon",
		GroupID: "sync",
		Short:   "Run the background sync session (foreground)",
		Long: `Run a long-lived sync session in the foreground.

The daemon will:
  1. Load everything from the remote store
  2. Push the metadata snapshot periodically
  3. Rebuild the local cache and search index periodically
  4. With a dir remote, watch the folder and pick up edits made by other
     devices, never overwriting unsaved local edits
  5. On Ctrl+C, write out every unsaved edit before exiting

With --dashboard it also serves the live sync dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.verbose = true
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}

			cfg := daemon.DefaultConfig()
			cfg.SnapshotInterval = a.cfg.Sync.SnapshotInterval
			cfg.CacheResyncInterval = a.cfg.Sync.CacheResyncInterval
			cfg.Logger = a.logs.Logger("daemon")
			if dir, ok := a.store.(*remote.DirStore); ok {
				cfg.Watch = dir
			}
			d, err := daemon.NewWithConfig(a.eng, cfg)
			if err != nil {
				_ = a.close()
				return err
			}

			ctx := cmd.Context()
			if withDashboard {
				if !cmd.Flags().Changed("port") {
					port = a.cfg.Dashboard.Port
				}
				stop, err := c.serveDashboard(ctx, a, port, d.Stats)
				if err != nil {
					_ = a.close()
					return err
				}
				defer stop()
			}

			c.printf("%s Daemon running for %s. Press Ctrl+C to stop.\n", ui.RenderAccent("●"), describeIdentity(a.eng.Identity()))
			err = d.Start(ctx)
			if cerr := a.close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			c.success("Daemon stopped, all edits saved")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDashboard, "dashboard", false, "also serve the sync dashboard")
	cmd.Flags().IntVar(&port, "port", 8080, "dashboard port (default from config)")
	return cmd
}

func (c *cli) dashboardCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:     "dashboard",
		GroupID: "advanced",
		Short:   "Serve the live sync dashboard",
		Long: `Serve a WebSocket dashboard that broadcasts sync activity.

WebSocket messages include:
- status: sync state changed (idle, syncing, synced, error)
- entity_saved: a journal day, note or the task list was written
- save_failed: a write failed; the entity stays unsaved
- hydrated: the initial load finished
- stats: counts, unsaved edits and save totals

Example usage:
  jot dashboard                   # Start on the configured port
  jot dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.verbose = true
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Dashboard.Port
			}

			ctx := cmd.Context()
			stop, err := c.serveDashboard(ctx, a, port, nil)
			if err != nil {
				_ = a.close()
				return err
			}
			if err := a.eng.Load(ctx); err != nil {
				c.printf("%s %v\n", ui.RenderWarn("⚠"), err)
			}

			c.printf("\nPress Ctrl+C to stop...\n")
			<-ctx.Done()

			c.printf("\nShutting down dashboard server...\n")
			stop()
			return a.close()
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on (default from config)")
	return cmd
}

// serveDashboard starts the dashboard for a session and returns its stop
// function.
func (c *cli) serveDashboard(ctx context.Context, a *app, port int, stats func() daemon.Stats) (stop func(), err error) {
	server := dashboard.NewServer(&dashboard.Config{
		Port:   port,
		Logger: a.logs.Logger("dashboard"),
	})
	h := dashboard.NewHandler(server, a.eng, a.logs.Logger("dashboard"))
	h.DaemonStats = stats
	h.Attach()

	if err := server.Start(); err != nil {
		h.Detach()
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go h.Run(runCtx, statsInterval)

	addr := server.GetAddr()
	c.printf("Dashboard server started on http://%s\n", addr)
	c.printf("WebSocket endpoint: ws://%s/ws\n", addr)
	c.printf("Health check: http://%s/health\n", addr)

	return func() {
		cancel()
		h.Detach()
		if err := server.Stop(); err != nil {
			c.printf("%s failed to stop dashboard: %v\n", ui.RenderWarn("⚠"), err)
		}
	}, nil
}
