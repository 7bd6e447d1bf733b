package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jotdeck/jotdeck/internal/remote"
)

var ignoreFile = cmpopts.IgnoreUnexported(Config{})

// isolate points the default config and cache locations at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	return dir
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(Default(), *cfg, ignoreFile); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.File() != "" {
		t.Errorf("File() = %q, want empty", cfg.File())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() of a missing explicit file succeeded")
	}
}

func TestLoad_FileValues(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
user = "alice"

[remote]
kind = "dir"
dir = "/srv/sync"

[sync]
debounce = "250ms"
snapshot_interval = "1m"

[log]
file = "/tmp/jot.log"
compress = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := Default()
	want.User = "alice"
	want.Remote.Kind = "dir"
	want.Remote.Dir = "/srv/sync"
	want.Sync.Debounce = 250 * time.Millisecond
	want.Sync.SnapshotInterval = time.Minute
	want.Log.File = "/tmp/jot.log"
	want.Log.Compress = true
	if diff := cmp.Diff(want, *cfg, ignoreFile); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.File() != path {
		t.Errorf("File() = %q, want %q", cfg.File(), path)
	}
	if got := cfg.CachePath(); got != filepath.Join(want.Data.Dir, "alice", "cache.db") {
		t.Errorf("CachePath() = %q", got)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "[sync]\ndebounce = \"2s\"\n")
	t.Setenv("JOT_SYNC_DEBOUNCE", "300ms")
	t.Setenv("JOT_REMOTE_TOKEN", "secret")
	t.Setenv("JOT_USER", "bob")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sync.Debounce != 300*time.Millisecond {
		t.Errorf("Debounce = %v, want 300ms", cfg.Sync.Debounce)
	}
	if cfg.User != "bob" {
		t.Errorf("User = %q, want bob", cfg.User)
	}
	token, ok := cfg.TokenSource().AccessToken()
	if !ok || token != "secret" {
		t.Errorf("AccessToken() = %q, %v", token, ok)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknown kind", body: "[remote]\nkind = \"ftp\"\n", wantErr: "unknown remote.kind"},
		{name: "dir without path", body: "[remote]\nkind = \"dir\"\n", wantErr: "remote.dir is required"},
		{name: "zero debounce", body: "[sync]\ndebounce = \"0s\"\n", wantErr: "sync.debounce must be positive"},
		{name: "negative interval", body: "[sync]\nsnapshot_interval = \"-1m\"\n", wantErr: "sync.snapshot_interval must not be negative"},
		{name: "bad expiry", body: "[remote]\ntoken_expiry = \"tomorrow\"\n", wantErr: "invalid remote.token_expiry"},
		{name: "bad user", body: "user = \"a/b\"\n", wantErr: "invalid user"},
		{name: "bad port", body: "[dashboard]\nport = 70000\n", wantErr: "dashboard.port out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestTokenSource(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.TokenSource().AccessToken(); ok {
		t.Error("empty token reported as valid")
	}

	cfg.Remote.Token = "tok"
	cfg.Remote.TokenExpiry = "2000-01-01T00:00:00Z"
	if _, ok := cfg.TokenSource().(remote.StaticToken); !ok {
		t.Fatalf("TokenSource() = %T, want remote.StaticToken", cfg.TokenSource())
	}
	if _, ok := cfg.TokenSource().AccessToken(); ok {
		t.Error("expired token reported as valid")
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "jotdeck", "config.toml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# jot configuration.") {
		t.Errorf("config file has no header:\n%s", data)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written default failed: %v", err)
	}
	if diff := cmp.Diff(Default(), *cfg, ignoreFile); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if err := WriteDefault(path, false); !errors.Is(err, ErrExists) {
		t.Errorf("second WriteDefault() = %v, want ErrExists", err)
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced WriteDefault() failed: %v", err)
	}
}

func TestEncode_MasksToken(t *testing.T) {
	cfg := Default()
	cfg.Remote.Token = "hunter2"

	var sb strings.Builder
	if err := cfg.Encode(&sb); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	out := sb.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("token leaked:\n%s", out)
	}
	if !strings.Contains(out, `debounce = "1s"`) {
		t.Errorf("durations not written as strings:\n%s", out)
	}
}
