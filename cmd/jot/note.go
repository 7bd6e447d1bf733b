package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "note",
		Aliases: []string{"n"},
		GroupID: "entries",
		Short:   "Manage notes",
		Long: `Manage notes.

Each note is one markdown file with a small header holding its title,
folder and timestamps.`,
	}
	cmd.AddCommand(c.noteNewCmd(), c.noteListCmd(), c.noteShowCmd(), c.noteEditCmd(), c.noteRmCmd())
	return cmd
}

func (c *cli) noteNewCmd() *cobra.Command {
	var folder string
	cmd := &cobra.Command{
		Use:   "new <title> [text...]",
		Short: "Create a note",
		Long: `Create a note. The body is taken from the remaining arguments, or
from stdin when none are given.

  jot note new "Ideas" --folder work "Ship the sync daemon"
  jot note new "Recipe" < pancakes.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.readText(args[1:])
			if err != nil {
				return err
			}
			var note schema.Note
			err = c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				note, err = a.eng.CreateNote(args[0], folder, body)
				return err
			})
			if err != nil {
				return err
			}
			c.success("Created note %s %s", ui.RenderMuted(note.ID), note.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "folder (default "+schema.DefaultFolder+")")
	return cmd
}

func (c *cli) noteListCmd() *cobra.Command {
	var (
		folder  string
		offline bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notes, most recently edited first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					var (
						notes []schema.Note
						err   error
					)
					if folder != "" {
						notes, err = db.NotesInFolder(ctx, folder)
					} else {
						notes, err = db.AllNotes(ctx)
					}
					if err != nil {
						return err
					}
					c.printNotes(notes)
					return nil
				})
			}
			return c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var notes []schema.Note
				for _, n := range a.eng.Notes() {
					if folder == "" || n.Folder == folder {
						notes = append(notes, n)
					}
				}
				c.printNotes(notes)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "only this folder")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

func (c *cli) printNotes(notes []schema.Note) {
	if len(notes) == 0 {
		c.printf("%s\n", ui.RenderMuted("No notes"))
		return
	}
	width := ui.Width()
	for _, n := range notes {
		c.printf("%s  %s  %s  %s\n",
			ui.RenderMuted(n.ID),
			ui.RenderAccent(n.Folder),
			ui.Truncate(n.Title, max(width-60, 20)),
			ui.RenderMuted(n.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
}

func (c *cli) noteShowCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := func(n schema.Note, ok bool) error {
				if !ok {
					return fmt.Errorf("no note with id %q", args[0])
				}
				c.printf("%s %s\n\n%s\n", ui.Header(n.Title), ui.RenderMuted("("+n.Folder+")"), strings.TrimRight(n.Content, "\n"))
				return nil
			}
			if offline {
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					notes, err := db.AllNotes(ctx)
					if err != nil {
						return err
					}
					for _, n := range notes {
						if n.ID == args[0] {
							return render(n, true)
						}
					}
					return render(schema.Note{}, false)
				})
			}
			return c.withEngine(cmd, func(ctx context.Context, a *app) error {
				return render(a.eng.Note(args[0]))
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

func (c *cli) noteEditCmd() *cobra.Command {
	var (
		title, folder string
		appendText    bool
		stdin         bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id> [text...]",
		Short: "Change the title, folder or body of a note",
		Long: `Change the title, folder or body of a note.

Text arguments replace the body, or are added to it with --append. Use
--stdin to read the body from stdin instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body    string
				hasBody = len(args) > 1 || stdin
			)
			if hasBody {
				var err error
				if body, err = c.readText(args[1:]); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if !hasBody && !flags.Changed("title") && !flags.Changed("folder") {
				return errors.New("nothing to change: give text, --stdin, --title or --folder")
			}

			var note schema.Note
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				note, err = a.eng.UpdateNote(args[0], func(n *schema.Note) {
					if flags.Changed("title") {
						n.Title = title
					}
					if flags.Changed("folder") {
						n.Folder = folder
					}
					switch {
					case hasBody && appendText && n.Content != "":
						n.Content = strings.TrimRight(n.Content, "\n") + "\n\n" + body
					case hasBody:
						n.Content = body
					}
				})
				return err
			})
			if errors.Is(err, engine.ErrNoSuchNote) {
				return fmt.Errorf("no note with id %q", args[0])
			}
			if err != nil {
				return err
			}
			c.success("Saved note %s", note.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "move to folder")
	cmd.Flags().BoolVarP(&appendText, "append", "a", false, "add the text to the end of the body")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the body from stdin")
	return cmd
}

func (c *cli) noteRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				return a.eng.DeleteNote(ctx, args[0])
			})
			if errors.Is(err, engine.ErrNoSuchNote) {
				return fmt.Errorf("no note with id %q", args[0])
			}
			if err != nil {
				return err
			}
			c.success("Deleted note %s", args[0])
			return nil
		},
	}
}
