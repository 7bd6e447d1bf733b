package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "journal",
		Aliases: []string{"j"},
		GroupID: "entries",
		Short:   "Read and write daily journal entries",
		Long: `Read and write daily journal entries.

Dates are YYYY-MM-DD or phrases such as "today", "yesterday" or
"last friday". Each day is one file in the journal folder.`,
	}
	cmd.AddCommand(c.journalShowCmd(), c.journalListCmd(), c.journalWriteCmd(false), c.journalWriteCmd(true))
	return cmd
}

func (c *cli) journalShowCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "show [date]",
		Short: "Print the entry of a day (default today)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			render := func(e schema.JournalEntry, ok bool) {
				if !ok || e.Content == "" {
					c.printf("%s\n", ui.RenderMuted("No entry for "+date))
					return
				}
				c.printf("%s\n\n%s\n", ui.Header(date), strings.TrimRight(e.Content, "\n"))
			}
			if offline {
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					e, ok, err := db.GetJournal(ctx, date)
					if err != nil {
						return err
					}
					render(e, ok)
					return nil
				})
			}
			return c.withEngine(cmd, func(ctx context.Context, a *app) error {
				render(a.eng.Journal(date))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

func (c *cli) journalListCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List days with an entry, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			render := func(entries []schema.JournalEntry) {
				width := ui.Width()
				for i := len(entries) - 1; i >= 0; i-- {
					e := entries[i]
					if e.Content == "" {
						continue
					}
					preview := schema.Preview(e.Content, max(width-14, 20))
					c.printf("%s  %s\n", ui.RenderAccent(e.Date), preview)
				}
			}
			if offline {
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					entries, err := db.AllJournal(ctx)
					if err != nil {
						return err
					}
					render(entries)
					return nil
				})
			}
			return c.withEngine(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.eng.Contents().AllJournal(ctx)
				if err != nil {
					return err
				}
				render(entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

// journalWriteCmd builds "write" (replace the day) or "append".
func (c *cli) journalWriteCmd(appendMode bool) *cobra.Command {
	use, short := "write <date> [text...]", "Replace the entry of a day"
	if appendMode {
		use, short = "append <date> [text...]", "Add a paragraph to the entry of a day"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The text is taken from the arguments, or from stdin when none are given:

  jot journal append today "Walked to the lake"
  jot journal write 2024-01-15 < entry.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0], time.Now())
			if err != nil {
				return err
			}
			text, err := c.readText(args[1:])
			if err != nil {
				return err
			}
			err = c.withEngine(cmd, func(ctx context.Context, a *app) error {
				edit := a.eng.SetJournal
				if appendMode {
					edit = a.eng.AppendJournal
				}
				if err := edit(date, text); err != nil {
					return fmt.Errorf("failed to save journal %s: %w", date, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.success("Saved journal %s", date)
			return nil
		},
	}
}
