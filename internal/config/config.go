// Package config provides configuration management for fractalnote.
//
// Config file locations (priority order):
//  1. $FRACTALNOTE_CONFIG
//  2. ./fractalnote.yaml
//  3. $XDG_CONFIG_HOME/fractalnote/config.yaml
//  4. ~/.config/fractalnote/config.yaml
//  5. /etc/fractalnote/config.yaml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"fractalnote/internal/logger"
	"fractalnote/internal/store"
)

// Defaults for a new installation
const (
	DefaultStoreFile   = "notes.ctb"
	DefaultLogLevel    = "error"
	DefaultLockTimeout = 5 * time.Second
	DefaultBusyTimeout = 5 * time.Second
	DefaultDebounce    = 200 * time.Millisecond
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path. The file is replaced
// atomically so a concurrent reader never sees a partial config.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Store.Root == "" {
		c.Store.Root = DefaultDataDir()
	}
	if c.Store.Default == "" {
		c.Store.Default = DefaultStoreFile
	}
	if c.Store.LockTimeout == 0 {
		c.Store.LockTimeout = Duration(DefaultLockTimeout)
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = Duration(DefaultBusyTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(DefaultDebounce)
	}
}

// Validate rejects settings the store cannot run with
func (c *Config) Validate() error {
	if c.Store.LockTimeout < 0 || c.Store.BusyTimeout < 0 || c.Watch.Debounce < 0 {
		return fmt.Errorf("invalid config: timeouts must not be negative")
	}
	if filepath.IsAbs(c.Store.Default) || strings.Contains(c.Store.Default, "..") {
		return fmt.Errorf("invalid config: store.default %q must be relative to store.root", c.Store.Default)
	}
	return nil
}

// StoreOptions converts the store section for store.Open
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		BusyTimeout: c.Store.BusyTimeout.Duration(),
		LockTimeout: c.Store.LockTimeout.Duration(),
	}
}

// LoggerConfig converts the log section for logger.New
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:   c.Log.Level,
		Pretty:  c.Log.Pretty,
		LogFile: c.Log.File,
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Store root: %s (default %s)\n", c.Store.Root, c.Store.Default)
	summary += fmt.Sprintf("Lock timeout: %s, busy timeout: %s\n",
		c.Store.LockTimeout.Duration(), c.Store.BusyTimeout.Duration())
	summary += fmt.Sprintf("Log level: %s, watch debounce: %s", c.Log.Level, c.Watch.Debounce.Duration())
	if c.Metrics.Listen != "" {
		summary += fmt.Sprintf(", metrics on %s", c.Metrics.Listen)
	}
	return summary
}
