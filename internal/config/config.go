package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML unmarshalling for human-readable strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServeConfig holds serve-subcommand settings.
type ServeConfig struct {
	// Listen is the Unix socket path of the status API. Empty disables it.
	Listen          string   `yaml:"listen"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// TimerConfig holds settings for talking to the timer application.
type TimerConfig struct {
	// AutoStart lets the bus activate the timer application; nil means true.
	AutoStart *bool `yaml:"auto_start"`
}

// Config is the top-level configuration file structure.
type Config struct {
	// BusAddress overrides the session bus address. Empty means the session bus.
	BusAddress   string      `yaml:"bus_address"`
	Capabilities []string    `yaml:"capabilities"`
	LogLevel     string      `yaml:"log_level"`
	LogFormat    string      `yaml:"log_format"`
	Serve        ServeConfig `yaml:"serve"`
	Timer        TimerConfig `yaml:"timer"`
}

// AutoStart reports whether timer calls may activate the timer application.
func (c *Config) AutoStart() bool {
	return c.Timer.AutoStart == nil || *c.Timer.AutoStart
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.Serve.ShutdownTimeout < 0 {
		return fmt.Errorf("serve.shutdown_timeout must not be negative")
	}
	return nil
}

// DefaultPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "extimer-bridge", "config.yaml")
}

// Load reads and parses a YAML config file. If the file does not exist,
// it returns an empty Config and a nil error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}
