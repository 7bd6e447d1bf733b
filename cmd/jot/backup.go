package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/backup"
	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) exportCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:     "export <file>",
		GroupID: "advanced",
		Short:   "Export everything to a JSON lines backup",
		Long: `Export every journal entry, task and note to a JSON lines file, one
record per line:

  {"kind":"journal","data":{...}}

By default the local cache is exported, which works offline. With --live
the data is loaded from the remote store first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *backup.ExportResult
			var err error
			if live {
				err = c.withEngine(cmd, func(ctx context.Context, a *app) error {
					res, err = backup.Export(ctx, a.eng.Contents(), args[0])
					return err
				})
			} else {
				err = c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					res, err = backup.Export(ctx, db, args[0])
					return err
				})
			}
			if err != nil {
				return err
			}
			c.success("Exported to %s", res.Path)
			c.printf("   Journal: %d\n   Tasks:   %d\n   Notes:   %d\n", res.Journal, res.Tasks, res.Notes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "load from the remote store instead of the local cache")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:     "import <file>",
		GroupID: "advanced",
		Short:   "Import a JSON lines backup",
		Long: `Import a backup written by 'jot export'.

Journal days and notes replace the entry with the same date or ID; tasks
are merged into the board by ID. Imported entities are written to the
remote store like any other edit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := backup.ImportOptions{From: args[0], DryRun: dryRun}
			var res *backup.ImportResult
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				res, err = backup.Import(ctx, a.eng, opts)
				return err
			})
			if err != nil {
				return err
			}

			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			c.success("%s %d journal entries, %d tasks, %d notes", verb, res.Journal, res.Tasks, res.Notes)
			for _, msg := range res.Errors {
				c.printf("   %s %s\n", ui.RenderWarn("⚠"), msg)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d records skipped", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and count without changing anything")
	return cmd
}
