package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version int           `yaml:"version"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig locates store files and bounds how long operations wait
type StoreConfig struct {
	Root        string   `yaml:"root"`    // directory logical store paths resolve under
	Default     string   `yaml:"default"` // store used when none is named
	LockTimeout Duration `yaml:"lock_timeout"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file,omitempty"`
}

// WatchConfig holds settings for following external store changes
type WatchConfig struct {
	Debounce Duration `yaml:"debounce"`
}

// MetricsConfig holds the Prometheus endpoint of long-running commands
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // e.g. "127.0.0.1:9464"; empty disables
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
