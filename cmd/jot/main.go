// Command jot is the command-line client for the jotdeck journal, task
// board and notes.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cli holds the global flags and the output streams shared by every
// command.
type cli struct {
	configPath string
	user       string
	remoteKind string
	remoteDir  string
	verbose    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "jot",
		Short: "Journal, tasks and notes that sync to your own storage",
		Long: `jot keeps a daily journal, a task board and folders of notes.

Everything is stored as plain files in a remote folder you own (a Drive
account or a synced directory) and mirrored in a local cache for fast,
offline search. Edits are saved in the background; every command that
changes something writes it out before it exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default "+defaultConfigHint()+")")
	root.PersistentFlags().StringVar(&c.user, "user", "", "identity to use instead of the configured user")
	root.PersistentFlags().StringVar(&c.remoteKind, "remote", "", "remote store kind: drive, dir or memory")
	root.PersistentFlags().StringVar(&c.remoteDir, "remote-dir", "", "directory for the dir remote")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log sync activity to stderr")

	root.AddGroup(
		&cobra.Group{ID: "entries", Title: "Journal, tasks and notes:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	root.AddCommand(
		c.journalCmd(),
		c.taskCmd(),
		c.noteCmd(),
		c.searchCmd(),
		c.syncCmd(),
		c.statusCmd(),
		c.daemonCmd(),
		c.dashboardCmd(),
		c.configCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.loadtestCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
