package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Pull remote changes and write out local ones",
		Long: `Bring this device up to date.

This performs a full sync:
  1. Downloads every journal entry, note and the task list
  2. Writes out anything edited locally but not yet saved
  3. Pushes the metadata snapshot (metadata.json)
  4. Rebuilds the local cache and the search index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var journal, tasks, notes int
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				c.printf("%s Syncing %s...\n", ui.RenderAccent("↻"), describeIdentity(a.eng.Identity()))
				if err := a.eng.RefreshAll(ctx); err != nil {
					return err
				}
				if err := a.eng.ForceFlushAll(ctx); err != nil {
					return describeFlushError(err)
				}
				if err := a.eng.PushSnapshot(ctx); err != nil {
					return err
				}
				if err := a.eng.SyncLocalCache(ctx); err != nil {
					return err
				}
				journal, tasks, notes = a.eng.Counts()
				return nil
			})
			if err != nil {
				return err
			}
			c.success("Sync complete in %v", time.Since(start).Round(time.Millisecond))
			c.printf("   Journal: %d\n   Tasks:   %d\n   Notes:   %d\n", journal, tasks, notes)
			return nil
		},
	}
}

func describeIdentity(id engine.Identity) string {
	if id.Demo() {
		return "demo data (this device only)"
	}
	return id.User
}

func (c *cli) statusCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show sync status",
		Long: `Show who is signed in, where data is stored and whether anything is
waiting to be written. With --offline only the local cache is read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				cfg, err := c.loadConfig(cmd)
				if err != nil {
					return err
				}
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					counts, err := db.CountsContext(ctx)
					if err != nil {
						return err
					}
					last, err := db.LastSync(ctx)
					if err != nil {
						return err
					}
					lines := []string{
						field("User", describeIdentity(engine.Identity{User: cfg.User})),
						field("Cache", db.Path()),
						field("Last sync", formatTime(last)),
						field("Journal", fmt.Sprint(counts.Journal)),
						field("Tasks", fmt.Sprint(counts.Tasks)),
						field("Notes", fmt.Sprint(counts.Notes)),
					}
					c.printf("%s\n", ui.Panel("Local cache", strings.Join(lines, "\n")))
					return nil
				})
			}

			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			_ = a.eng.Load(cmd.Context()) // reported through Status
			st := a.eng.Status()
			journal, tasks, notes := a.eng.Counts()
			remoteDesc := a.cfg.Remote.Kind
			switch {
			case st.Demo:
				remoteDesc = "none"
			case a.cfg.Remote.Kind == "dir":
				remoteDesc += " " + a.cfg.Remote.Dir
			}
			lines := []string{
				field("User", describeIdentity(a.eng.Identity())),
				field("Remote", remoteDesc),
				field("State", ui.RenderState(string(st.State))),
				field("Unsaved", fmt.Sprint(st.Dirty)),
				field("Last sync", formatTime(st.LastSync)),
				field("Journal", fmt.Sprint(journal)),
				field("Tasks", fmt.Sprint(tasks)),
				field("Notes", fmt.Sprint(notes)),
			}
			if st.LoadError != "" {
				lines = append(lines, field("Load error", ui.RenderFail(st.LoadError)))
			}
			if st.LastError != "" && st.LastError != st.LoadError {
				lines = append(lines, field("Last error", ui.RenderFail(st.LastError)))
			}
			c.printf("%s\n", ui.Panel("Sync status", strings.Join(lines, "\n")))
			return a.close()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

func field(name, value string) string {
	return ui.RenderMuted(fmt.Sprintf("%-11s", name+":")) + value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
