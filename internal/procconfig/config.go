// Package procconfig holds the daemon's own process configuration, as
// opposed to the per-entry wallpaper configuration ingested at runtime
// (see internal/wallpaperconfig). It is loaded once at startup from the
// environment via envconfig.Process.
package procconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config is the daemon's process-level configuration.
type Config struct {
	// LogLevel selects the zerolog level: trace, debug, info, warn, error.
	LogLevel string `envconfig:"WALLPAPERD_LOG_LEVEL" default:"info"`

	// WaylandDisplay overrides the compositor socket name; empty means
	// respect WAYLAND_DISPLAY as wayland-client normally would.
	WaylandDisplay string `envconfig:"WAYLAND_DISPLAY"`

	// ConfigHome overrides XDG_CONFIG_HOME for locating config.toml.
	ConfigHome string `envconfig:"XDG_CONFIG_HOME"`

	// StateHome overrides XDG_STATE_HOME for the persisted slideshow cursor.
	StateHome string `envconfig:"XDG_STATE_HOME"`

	// RuntimeDir records XDG_RUNTIME_DIR (falling back to /run/user/1000).
	// The shm backing files do not use this value: wlproto reads
	// XDG_RUNTIME_DIR from the environment itself.
	RuntimeDir string `envconfig:"XDG_RUNTIME_DIR"`

	// CacheMaxEntries bounds the Image Cache by entry count.
	CacheMaxEntries int64 `envconfig:"WALLPAPERD_CACHE_MAX_ENTRIES" default:"64"`

	// CacheMaxBytes bounds the Image Cache by approximate decoded byte cost.
	CacheMaxBytes int64 `envconfig:"WALLPAPERD_CACHE_MAX_BYTES" default:"536870912"`

	// LoaderQueueDepth is read from the environment but not applied:
	// loader.New sizes its channels with a fixed depth of 32.
	LoaderQueueDepth int `envconfig:"WALLPAPERD_LOADER_QUEUE_DEPTH" default:"32"`
}

// Load reads the process configuration from the environment, applying
// defaults and normalizing XDG fallbacks that envconfig itself can't
// express (a default value conditioned on $HOME).
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load process config: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "/root"
	}
	if cfg.ConfigHome == "" {
		cfg.ConfigHome = filepath.Join(home, ".config")
	}
	if cfg.StateHome == "" {
		cfg.StateHome = filepath.Join(home, ".local", "state")
	}
	if cfg.RuntimeDir == "" {
		cfg.RuntimeDir = filepath.Join(string(filepath.Separator), "run", "user", "1000")
	}

	return cfg, nil
}

// ConfigFilePath returns the path to the persisted wallpaper entry file.
func (c Config) ConfigFilePath() string {
	return filepath.Join(c.ConfigHome, "wallpaperd", "config.toml")
}

// StateFilePath returns the path to the persisted slideshow cursor file.
func (c Config) StateFilePath() string {
	return filepath.Join(c.StateHome, "wallpaperd", "slideshow-state.json")
}
