package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/config"
	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/logging"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/search"
	"github.com/jotdeck/jotdeck/internal/ui"
)

// flushTimeout bounds the write-out before a command exits.
const flushTimeout = 30 * time.Second

func defaultConfigHint() string {
	return "$XDG_CONFIG_HOME/jotdeck/" + config.Filename
}

// loadConfig reads the config file and applies the global flag overrides.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.User = c.user
	}
	if flags.Changed("remote") {
		cfg.Remote.Kind = c.remoteKind
	}
	if flags.Changed("remote-dir") {
		cfg.Remote.Dir = c.remoteDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *cli) logs(cfg *config.Config) *logging.Logs {
	var console io.Writer
	if c.verbose {
		console = c.errOut
	}
	return logging.New(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, console)
}

// consoleLogger logs to stderr with --verbose and nowhere otherwise.
func (c *cli) consoleLogger(component string) *log.Logger {
	out := io.Discard
	if c.verbose {
		out = c.errOut
	}
	return log.New(out, "["+component+"] ", log.LstdFlags)
}

// app is one session: the remote store, the local cache, the search index
// and the engine that keeps them consistent.
type app struct {
	cfg   *config.Config
	logs  *logging.Logs
	store remote.Store
	db    *cache.DB
	index *search.Index
	eng   *engine.Engine
}

func (c *cli) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logs := c.logs(cfg)

	a := &app{cfg: cfg, logs: logs}
	id := engine.Identity{User: cfg.User}
	kind := remote.Kind(cfg.Remote.Kind)

	var auth remote.TokenSource
	if !id.Demo() {
		auth = cfg.TokenSource()
		a.store, err = remote.New(remote.Options{
			Kind:    kind,
			BaseURL: cfg.Remote.BaseURL,
			Token:   auth,
			Timeout: cfg.Remote.Timeout,
			Dir:     cfg.Remote.Dir,
			Logger:  logs.Logger("remote"),
		})
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("failed to open remote store: %w", err)
		}
		if !kind.NeedsToken() {
			auth = nil
		}
	}

	a.db, err = cache.Open(cfg.CachePath())
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.index = search.New(cfg.Search.RebuildDelay, logs.Logger("search"))

	a.eng, err = engine.New(engine.Config{
		Store:               a.store,
		Auth:                auth,
		Identity:            id,
		Cache:               a.db,
		Index:               a.index,
		AppFolder:           cfg.Sync.AppFolder,
		Debounce:            cfg.Sync.Debounce,
		SaveWaitTimeout:     cfg.Sync.SaveWaitTimeout,
		PreviewLength:       cfg.Sync.PreviewLength,
		DownloadConcurrency: cfg.Sync.DownloadConcurrency,
		Logger:              logs.Logger("engine"),
	})
	if err != nil {
		a.index.Close()
		_ = a.db.Close()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

// close writes out every dirty entity, then releases the session.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := a.eng.Close(ctx)
	a.index.Close()
	if cerr := a.db.Close(); err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return describeFlushError(err)
}

func describeFlushError(err error) error {
	var fe *engine.FlushError
	if errors.As(err, &fe) {
		return fmt.Errorf("unsaved changes remain (%s): %w", strings.Join(fe.Keys(), ", "), err)
	}
	return err
}

// withEngine hydrates a session, runs fn and writes everything out before
// returning.
func (c *cli) withEngine(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := c.openApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.eng.Load(ctx); err != nil {
		_ = a.close()
		return fmt.Errorf("failed to load data: %w", err)
	}
	err = fn(ctx, a)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

// withCache opens only the local cache, for offline reads.
func (c *cli) withCache(cmd *cobra.Command, fn func(ctx context.Context, db *cache.DB) error) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := cache.Open(cfg.CachePath())
	if err != nil {
		return err
	}
	err = fn(cmd.Context(), db)
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	return err
}

// readText returns args joined by spaces, or stdin when there are none.
func (c *cli) readText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := c.in.(*os.File); ok && ui.IsTerminal(f) {
		fmt.Fprintln(c.errOut, ui.RenderMuted("Reading from stdin, end with Ctrl+D"))
	}
	data, err := io.ReadAll(c.in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) success(format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", ui.RenderPass("✓"), fmt.Sprintf(format, args...))
}
