// Package config is the application-wide configuration: the data
// directory and its derived paths, plus the two timer durations,
// optionally overridden from a TOML file. It mirrors original_source's
// config.py.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultClipboardTimeout is how long a secret stays on the clipboard
	// before it's auto-cleared.
	DefaultClipboardTimeout = 30 * time.Second
	// DefaultInactivityTimeout of 0 disables the auto-lock timer.
	DefaultInactivityTimeout = 0 * time.Second

	stashFileName  = "stash.json"
	configFileName = "config.toml"
	socketFileName = "daemon.sock"
	pidFileName    = "daemon.pid"
	logFileName    = "stash.log"
)

// DefaultDataDir returns ~/.local/mb-stash, the default base directory
// for all application data.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "mb-stash"), nil
}

// Config is the application-wide configuration. Once built it is treated
// as immutable for the lifetime of a CLI invocation or daemon process.
type Config struct {
	DataDir           string
	ClipboardTimeout  time.Duration
	InactivityTimeout time.Duration
}

// StashPath is the encrypted store file.
func (c Config) StashPath() string { return filepath.Join(c.DataDir, stashFileName) }

// ConfigPath is the optional TOML configuration file.
func (c Config) ConfigPath() string { return filepath.Join(c.DataDir, configFileName) }

// SocketPath is the Unix domain socket the daemon listens on.
func (c Config) SocketPath() string { return filepath.Join(c.DataDir, socketFileName) }

// PIDPath is the daemon's PID file.
func (c Config) PIDPath() string { return filepath.Join(c.DataDir, pidFileName) }

// LogPath is the daemon's rotating log file.
func (c Config) LogPath() string { return filepath.Join(c.DataDir, logFileName) }

// tomlConfig is the subset of Config a user may override from config.toml.
type tomlConfig struct {
	ClipboardTimeout  *int `toml:"clipboard_timeout"`
	InactivityTimeout *int `toml:"inactivity_timeout"`
}

// Build assembles a Config from defaults, overridden by config.toml in
// dataDir if present. An empty dataDir resolves to DefaultDataDir.
func Build(dataDir string) (Config, error) {
	if dataDir == "" {
		def, err := DefaultDataDir()
		if err != nil {
			return Config{}, err
		}
		dataDir = def
	}

	cfg := Config{
		DataDir:           dataDir,
		ClipboardTimeout:  DefaultClipboardTimeout,
		InactivityTimeout: DefaultInactivityTimeout,
	}

	raw, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", cfg.ConfigPath(), err)
	}

	var tc tomlConfig
	if err := toml.Unmarshal(raw, &tc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", cfg.ConfigPath(), err)
	}
	if tc.ClipboardTimeout != nil {
		cfg.ClipboardTimeout = time.Duration(*tc.ClipboardTimeout) * time.Second
	}
	if tc.InactivityTimeout != nil {
		cfg.InactivityTimeout = time.Duration(*tc.InactivityTimeout) * time.Second
	}
	return cfg, nil
}
