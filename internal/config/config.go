// Package config loads jot settings from a TOML file, JOT_* environment
// variables and built-in defaults, in that order of precedence (environment
// wins over the file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/remote"
)

// EnvPrefix is prepended to environment overrides: sync.debounce is read
// from JOT_SYNC_DEBOUNCE.
const EnvPrefix = "JOT"

// Filename is the config file name inside Dir().
const Filename = "config.toml"

// Config holds all jot settings.
type Config struct {
	// User is the signed-in identity. Empty means the local-only demo.
	User      string          `mapstructure:"user"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Data      DataConfig      `mapstructure:"data"`
	Search    SearchConfig    `mapstructure:"search"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`

	file string
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	Kind        string        `mapstructure:"kind"`
	BaseURL     string        `mapstructure:"base_url"`
	Dir         string        `mapstructure:"dir"`
	Token       string        `mapstructure:"token"`
	TokenExpiry string        `mapstructure:"token_expiry"` // RFC3339, optional
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync engine and the daemon.
type SyncConfig struct {
	AppFolder           string        `mapstructure:"app_folder"`
	Debounce            time.Duration `mapstructure:"debounce"`
	SaveWaitTimeout     time.Duration `mapstructure:"save_wait_timeout"`
	PreviewLength       int           `mapstructure:"preview_length"`
	DownloadConcurrency int           `mapstructure:"download_concurrency"`
	SnapshotInterval    time.Duration `mapstructure:"snapshot_interval"`
	CacheResyncInterval time.Duration `mapstructure:"cache_resync_interval"`
}

// DataConfig locates on-device state.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// SearchConfig tunes the search index.
type SearchConfig struct {
	RebuildDelay time.Duration `mapstructure:"rebuild_delay"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DashboardConfig configures the status dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// Dir returns the directory holding the config file,
// $XDG_CONFIG_HOME/jotdeck on Linux.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".jotdeck"
	}
	return filepath.Join(dir, "jotdeck")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), Filename)
}

func defaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(Dir(), "data")
	}
	return filepath.Join(dir, "jotdeck")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			Kind:    string(remote.KindDrive),
			BaseURL: remote.DefaultDriveURL,
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			AppFolder:           "Jotdeck",
			Debounce:            time.Second,
			SaveWaitTimeout:     30 * time.Second,
			PreviewLength:       200,
			DownloadConcurrency: 4,
			SnapshotInterval:    5 * time.Minute,
			CacheResyncInterval: 10 * time.Minute,
		},
		Data:   DataConfig{Dir: defaultDataDir()},
		Search: SearchConfig{RebuildDelay: 2 * time.Second},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Port: 8080},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("user", d.User)

	v.SetDefault("remote.kind", d.Remote.Kind)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.dir", d.Remote.Dir)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("remote.token_expiry", d.Remote.TokenExpiry)
	v.SetDefault("remote.timeout", d.Remote.Timeout)

	v.SetDefault("sync.app_folder", d.Sync.AppFolder)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.save_wait_timeout", d.Sync.SaveWaitTimeout)
	v.SetDefault("sync.preview_length", d.Sync.PreviewLength)
	v.SetDefault("sync.download_concurrency", d.Sync.DownloadConcurrency)
	v.SetDefault("sync.snapshot_interval", d.Sync.SnapshotInterval)
	v.SetDefault("sync.cache_resync_interval", d.Sync.CacheResyncInterval)

	v.SetDefault("data.dir", d.Data.Dir)

	v.SetDefault("search.rebuild_delay", d.Search.RebuildDelay)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// Load reads the config file at path, or DefaultPath() when path is empty,
// applies JOT_* overrides and validates the result. A missing default file
// is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case !explicit && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			file = ""
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.file = file

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// File returns the config file that was read, or "" when only defaults and
// the environment were used.
func (c *Config) File() string {
	return c.file
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if !remote.Kind(c.Remote.Kind).IsValid() {
		return fmt.Errorf("unknown remote.kind %q (available: %v)", c.Remote.Kind, remote.Kinds)
	}
	if remote.Kind(c.Remote.Kind) == remote.KindDir && c.Remote.Dir == "" {
		return fmt.Errorf("remote.dir is required when remote.kind is %q", remote.KindDir)
	}
	if _, err := c.TokenExpiry(); err != nil {
		return err
	}
	if strings.ContainsAny(c.User, `/\`) {
		return fmt.Errorf("invalid user %q", c.User)
	}
	if c.Sync.AppFolder == "" {
		return fmt.Errorf("sync.app_folder must not be empty")
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync.debounce must be positive (got %v)", c.Sync.Debounce)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"remote.timeout", c.Remote.Timeout},
		{"sync.save_wait_timeout", c.Sync.SaveWaitTimeout},
		{"sync.snapshot_interval", c.Sync.SnapshotInterval},
		{"sync.cache_resync_interval", c.Sync.CacheResyncInterval},
		{"search.rebuild_delay", c.Search.RebuildDelay},
	} {
		if d.val < 0 {
			return fmt.Errorf("%s must not be negative (got %v)", d.key, d.val)
		}
	}
	if c.Sync.PreviewLength < 0 || c.Sync.DownloadConcurrency < 0 {
		return fmt.Errorf("sync.preview_length and sync.download_concurrency must not be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	return nil
}

// TokenExpiry parses remote.token_expiry. A blank value means no expiry.
func (c *Config) TokenExpiry() (time.Time, error) {
	if c.Remote.TokenExpiry == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Remote.TokenExpiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid remote.token_expiry %q (want RFC3339): %w", c.Remote.TokenExpiry, err)
	}
	return t, nil
}

// TokenSource returns the credential described by remote.token.
func (c *Config) TokenSource() remote.TokenSource {
	if c.Remote.Token == "" {
		return remote.NoToken{}
	}
	expiry, _ := c.TokenExpiry()
	return remote.StaticToken{Token: c.Remote.Token, Expiry: expiry}
}

// CachePath returns the local cache database of the configured user.
func (c *Config) CachePath() string {
	return cache.PathFor(c.Data.Dir, c.User)
}
