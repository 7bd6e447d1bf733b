package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

const fileHeader = `# jot configuration.
#
# Every key can be overridden from the environment with the JOT_ prefix,
# for example JOT_REMOTE_TOKEN or JOT_SYNC_DEBOUNCE=500ms.
#
# user: empty means the local-only demo identity.
# remote.kind: drive, dir or memory. dir syncs through a local folder.
# Durations use Go syntax: 500ms, 1s, 5m.

`

// fileConfig is the on-disk layout. Durations are written as strings so
// the file reads the same way it is parsed.
type fileConfig struct {
	User      string        `toml:"user"`
	Remote    fileRemote    `toml:"remote"`
	Sync      fileSync      `toml:"sync"`
	Data      fileData      `toml:"data"`
	Search    fileSearch    `toml:"search"`
	Log       fileLog       `toml:"log"`
	Dashboard fileDashboard `toml:"dashboard"`
}

type fileRemote struct {
	Kind        string `toml:"kind"`
	BaseURL     string `toml:"base_url"`
	Dir         string `toml:"dir"`
	Token       string `toml:"token"`
	TokenExpiry string `toml:"token_expiry"`
	Timeout     string `toml:"timeout"`
}

type fileSync struct {
	AppFolder           string `toml:"app_folder"`
	Debounce            string `toml:"debounce"`
	SaveWaitTimeout     string `toml:"save_wait_timeout"`
	PreviewLength       int    `toml:"preview_length"`
	DownloadConcurrency int    `toml:"download_concurrency"`
	SnapshotInterval    string `toml:"snapshot_interval"`
	CacheResyncInterval string `toml:"cache_resync_interval"`
}

type fileData struct {
	Dir string `toml:"dir"`
}

type fileSearch struct {
	RebuildDelay string `toml:"rebuild_delay"`
}

type fileLog struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type fileDashboard struct {
	Port int `toml:"port"`
}

func (c *Config) toFile(maskToken bool) fileConfig {
	token := c.Remote.Token
	if maskToken && token != "" {
		token = "********"
	}
	return fileConfig{
		User: c.User,
		Remote: fileRemote{
			Kind:        c.Remote.Kind,
			BaseURL:     c.Remote.BaseURL,
			Dir:         c.Remote.Dir,
			Token:       token,
			TokenExpiry: c.Remote.TokenExpiry,
			Timeout:     c.Remote.Timeout.String(),
		},
		Sync: fileSync{
			AppFolder:           c.Sync.AppFolder,
			Debounce:            c.Sync.Debounce.String(),
			SaveWaitTimeout:     c.Sync.SaveWaitTimeout.String(),
			PreviewLength:       c.Sync.PreviewLength,
			DownloadConcurrency: c.Sync.DownloadConcurrency,
			SnapshotInterval:    c.Sync.SnapshotInterval.String(),
			CacheResyncInterval: c.Sync.CacheResyncInterval.String(),
		},
		Data:   fileData{Dir: c.Data.Dir},
		Search: fileSearch{RebuildDelay: c.Search.RebuildDelay.String()},
		Log: fileLog{
			File:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
		Dashboard: fileDashboard{Port: c.Dashboard.Port},
	}
}

// Encode writes c as TOML. The remote token is masked.
func (c *Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c.toFile(true)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to path. An existing file
// is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	d := Default()
	w := bufio.NewWriter(f)
	_, err = w.WriteString(fileHeader)
	if err == nil {
		err = toml.NewEncoder(w).Encode(d.toFile(false))
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
