// Package config loads reelcast settings.
//
// Values are resolved in order, later sources winning: defaults, config.toml
// in the config directory, a .env file in the config directory, then the
// process environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// FileName is the config file inside the config directory.
	FileName = "config.toml"

	// EnvFileName is the dotenv file inside the config directory.
	EnvFileName = ".env"

	maxPageSize = 50
)

// Environment variables.
const (
	EnvConfigDir = "REELCAST_CONFIG_DIR"
	EnvAPIURL    = "REELCAST_API_URL"
	EnvPageSize  = "REELCAST_PAGE_SIZE"
	EnvPrefetch  = "REELCAST_PREFETCH"
	EnvRateLimit = "REELCAST_RATE_LIMIT"
	EnvLogLevel  = "REELCAST_LOG_LEVEL"
	EnvDBPath    = "REELCAST_DB_PATH"
	EnvListen    = "REELCAST_LISTEN"
)

// Config holds all application configuration
type Config struct {
	APIURL           string       `toml:"api_url"`
	PageSize         int          `toml:"page_size"`
	PrefetchDistance int          `toml:"prefetch_distance"`
	RateLimit        float64      `toml:"rate_limit"`
	LogLevel         string       `toml:"log_level"`
	Player           PlayerConfig `toml:"player"`
	Server           ServerConfig `toml:"server"`

	// Dir is the directory the config was loaded from.
	Dir string `toml:"-"`
}

// PlayerConfig tunes the terminal player.
type PlayerConfig struct {
	Cells       int `toml:"cells"`
	ClipSeconds int `toml:"clip_seconds"`
}

// ServerConfig tunes the development feed service.
type ServerConfig struct {
	Listen    string `toml:"listen"`
	DBPath    string `toml:"db_path"`
	SeedItems int    `toml:"seed_items"`
}

// Default returns a Config with sensible defaults
func Default(dir string) *Config {
	return &Config{
		APIURL:           "http://localhost:8080",
		PageSize:         10,
		PrefetchDistance: 2,
		RateLimit:        10,
		LogLevel:         "info",
		Player: PlayerConfig{
			Cells:       3,
			ClipSeconds: 15,
		},
		Server: ServerConfig{
			Listen:    "127.0.0.1:8080",
			DBPath:    filepath.Join(dir, "reelcast.db"),
			SeedItems: 40,
		},
		Dir: dir,
	}
}

// Dir returns the config directory: $REELCAST_CONFIG_DIR, else
// ~/.config/reelcast.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "reelcast")
}

// Load resolves the configuration rooted at dir. Missing files are fine.
func Load(dir string) (*Config, error) {
	cfg := Default(dir)

	path := filepath.Join(dir, FileName)
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	dotenv, err := godotenv.Read(filepath.Join(dir, EnvFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", EnvFileName, err)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Server.DBPath = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvPageSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPageSize, v, err)
		}
		c.PageSize = n
	}
	if v, ok := lookup(EnvPrefetch); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPrefetch, v, err)
		}
		c.PrefetchDistance = n
	}
	if v, ok := lookup(EnvRateLimit); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRateLimit, v, err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url must not be empty")
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d, got %d", maxPageSize, c.PageSize)
	}
	if c.PrefetchDistance < 0 {
		return fmt.Errorf("prefetch_distance must not be negative, got %d", c.PrefetchDistance)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %g", c.RateLimit)
	}
	if c.Player.Cells < 1 {
		return fmt.Errorf("player.cells must be at least 1, got %d", c.Player.Cells)
	}
	if c.Player.ClipSeconds < 1 {
		return fmt.Errorf("player.clip_seconds must be at least 1, got %d", c.Player.ClipSeconds)
	}
	return nil
}

// Encode writes the config as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Save writes config.toml into c.Dir.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(c.Dir, FileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	return c.Encode(f)
}
