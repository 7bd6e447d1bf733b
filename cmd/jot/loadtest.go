package main

import (
	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/loadtest"
)

func (c *cli) loadtestCmd() *cobra.Command {
	cfg := loadtest.DefaultConfig()
	cmd := &cobra.Command{
		Use:     "loadtest",
		GroupID: "advanced",
		Short:   "Run an edit storm against an in-memory store",
		Long: `Run an edit storm against an in-memory remote store with injected
latency and check that autosave never duplicates a file or loses an edit.

Each journal day is edited concurrently, many times in quick succession.
The report shows how many edits were coalesced into remote writes and the
write and settle latencies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				cfg.Logger = c.consoleLogger("engine")
			}
			res, err := loadtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			res.Print(c.out)
			return res.Verify()
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.Keys, "keys", "k", cfg.Keys, "journal days edited concurrently")
	f.IntVarP(&cfg.EditsPerKey, "edits", "e", cfg.EditsPerKey, "edits per day")
	f.DurationVar(&cfg.EditInterval, "interval", cfg.EditInterval, "mean pause between edits")
	f.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "autosave quiet period")
	f.DurationVar(&cfg.WriteLatency, "write-latency", cfg.WriteLatency, "latency of each remote write")
	f.DurationVar(&cfg.ReadLatency, "read-latency", cfg.ReadLatency, "latency of other remote calls")
	f.BoolVar(&cfg.Tasks, "tasks", false, "also add tasks during the storm")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "jitter seed")
	return cmd
}
