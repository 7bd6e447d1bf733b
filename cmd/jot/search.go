package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/search"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) searchCmd() *cobra.Command {
	var (
		types  []string
		folder string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "search <query...>",
		Aliases: []string{"s"},
		GroupID: "entries",
		Short:   "Search journal, tasks and notes (offline)",
		Long: `Search journal entries, tasks and notes.

Search reads only the local cache, so it works offline. Words are matched
by prefix and by fuzzy spelling; results that match every word rank first.
Run 'jot sync' to bring the cache up to date.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := search.Filters{Folder: folder, Status: status, Limit: limit}
			for _, t := range types {
				switch dt := search.DocType(t); dt {
				case search.TypeJournal, search.TypeTask, search.TypeNote:
					f.Types = append(f.Types, dt)
				default:
					return fmt.Errorf("invalid type %q (want journal, task or note)", t)
				}
			}
			query := strings.Join(args, " ")

			return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
				ix := search.New(0, c.consoleLogger("search"))
				defer ix.Close()
				if err := ix.Rebuild(ctx, db); err != nil {
					return err
				}
				c.printResults(ix.Search(query, f))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "journal, task or note (repeatable)")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "only notes in this folder")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only tasks in this column")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results (0 = all)")
	return cmd
}

func (c *cli) printResults(results []search.Result) {
	if len(results) == 0 {
		c.printf("%s\n", ui.RenderMuted("No matches"))
		return
	}
	width := ui.Width()
	for _, r := range results {
		c.printf("%s %s  %s\n", ui.RenderAccent(fmt.Sprintf("%-7s", r.Type)), ui.RenderBold(ui.Truncate(r.Title, max(width-30, 20))), ui.RenderMuted(r.ID))
		if r.Snippet != "" {
			c.printf("        %s\n", ui.Truncate(r.Snippet, max(width-8, 20)))
		}
	}
}
