// Package config tests document how settings are resolved.
//
// Test requirements (this file serves as documentation):
// - Defaults apply when no file or variable is present
// - config.toml overrides defaults
// - .env overrides config.toml, the environment overrides .env
// - Out of range values are rejected
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIURL, EnvPageSize, EnvPrefetch, EnvRateLimit, EnvLogLevel, EnvDBPath, EnvListen} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PageSize != 10 || cfg.PrefetchDistance != 2 {
		t.Errorf("expected page size 10 and prefetch 2, got %d and %d", cfg.PageSize, cfg.PrefetchDistance)
	}
	if cfg.Server.DBPath != filepath.Join(dir, "reelcast.db") {
		t.Errorf("database should live in the config dir, got %s", cfg.Server.DBPath)
	}
	if cfg.Dir != dir {
		t.Errorf("expected dir %s, got %s", dir, cfg.Dir)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
api_url = "http://feed.internal:9000"
page_size = 20

[player]
cells = 5
`)

	cfg, err := Load(dir)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "http://feed.internal:9000" || cfg.PageSize != 20 || cfg.Player.Cells != 5 {
		t.Errorf("file values should apply, got %+v", cfg)
	}
	if cfg.PrefetchDistance != 2 {
		t.Error("unset keys should keep their defaults")
	}
}

func TestLoad_EnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, `page_size = 20
log_level = "warn"`)
	writeFile(t, dir, EnvFileName, "REELCAST_PAGE_SIZE=30\nREELCAST_LOG_LEVEL=debug\n")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(dir)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PageSize != 30 {
		t.Errorf(".env should override config.toml, got page size %d", cfg.PageSize)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("environment should override .env, got %s", cfg.LogLevel)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "page size not a number", env: map[string]string{EnvPageSize: "ten"}},
		{name: "page size too large", env: map[string]string{EnvPageSize: "500"}},
		{name: "negative prefetch", env: map[string]string{EnvPrefetch: "-1"}},
		{name: "negative rate", env: map[string]string{EnvRateLimit: "-2"}},
		{name: "no cells", file: "[player]\ncells = 0\n"},
		{name: "broken toml", file: "page_size = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, dir, FileName, tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := Default(dir)
	cfg.PageSize = 15

	if err := cfg.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("config file should exist: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file should be private, got %v", info.Mode().Perm())
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.PageSize != 15 {
		t.Errorf("expected saved page size 15, got %d", loaded.PageSize)
	}
}

func TestDir_FromEnvironment(t *testing.T) {
	t.Setenv(EnvConfigDir, "/tmp/reelcast-test")
	if got := Dir(); got != "/tmp/reelcast-test" {
		t.Errorf("expected env override, got %s", got)
	}

	t.Setenv(EnvConfigDir, "")
	if got := Dir(); !strings.HasSuffix(got, filepath.Join(".config", "reelcast")) {
		t.Errorf("expected ~/.config/reelcast, got %s", got)
	}
}
