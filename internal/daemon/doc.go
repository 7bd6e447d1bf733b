// Package daemon keeps a sync session running in the background.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - FileWatcher: fsnotify-based monitoring of one user's journal, notes and
//     task files inside a directory remote
//   - Daemon: hydrates the engine, debounces watched changes into targeted
//     refreshes, pushes the metadata snapshot and resyncs the local cache on
//     timers, and flushes every unsaved edit on shutdown
//
// Refreshes go through the engine, which skips any entity with unsaved
// edits, so a file changed by another device never overwrites local work.
//
// # Usage
//
//	eng, _ := engine.New(cfg)
//	d, err := daemon.NewWithConfig(eng, &daemon.Config{
//	    SnapshotInterval: 5 * time.Minute,
//	    Watch:            dirStore, // nil for the drive remote
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
// Only files the engine syncs produce events: journal/<date>.md,
// notes/<id>.md and tasks.json. Temp files written during atomic saves,
// dotfiles and metadata.json are ignored. A kernel queue overflow triggers a
// full refresh instead.
package daemon
