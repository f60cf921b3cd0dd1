// Package config loads chrono configuration files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFile and UserFile are the configuration file names looked up by
// Load.
const (
	ProjectFile = ".chrono.yaml"
	UserFile    = "config.yaml"
	UserDir     = ".chrono"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if parsed, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Limits bounds a single evaluation.
type Limits struct {
	MaxDepth int `yaml:"maxDepth,omitempty"`
	MaxSteps int `yaml:"maxSteps,omitempty"`
}

// GC controls the sweep of abandoned protocol state.
type GC struct {
	Interval    Duration `yaml:"interval,omitempty"`
	RequestTTL  Duration `yaml:"requestTTL,omitempty"`
	ResponseTTL Duration `yaml:"responseTTL,omitempty"`
	StateTTL    Duration `yaml:"stateTTL,omitempty"`
}

// Config is the process configuration.
type Config struct {
	Listen      string   `yaml:"listen,omitempty"`
	Peers       []string `yaml:"peers,omitempty"`
	Prompt      string   `yaml:"prompt,omitempty"`
	HistoryFile string   `yaml:"historyFile,omitempty"`
	LogLevel    string   `yaml:"logLevel,omitempty"`
	Limits      Limits   `yaml:"limits,omitempty"`
	GC          GC       `yaml:"gc,omitempty"`

	// Path is the file the configuration was read from, empty for the
	// defaults.
	Path string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Prompt:   "> ",
		LogLevel: "warn",
		Limits:   Limits{MaxDepth: 512},
		GC: GC{
			Interval:    Duration(5 * time.Second),
			RequestTTL:  Duration(30 * time.Second),
			ResponseTTL: Duration(30 * time.Second),
			StateTTL:    Duration(5 * time.Minute),
		},
	}
}

// Load reads the configuration for projectDir.
// Precedence: project (.chrono.yaml) → user (~/.chrono/config.yaml) →
// defaults. Only the first file found is used; fields it leaves out keep
// their default. A file that exists but does not parse is an error.
func Load(projectDir string) (*Config, error) {
	paths := []string{filepath.Join(projectDir, ProjectFile)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, UserDir, UserFile))
	}
	for _, path := range paths {
		cfg, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// LoadFile reads one configuration file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate checks the values that have no sensible interpretation.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Limits.MaxDepth < 0 || c.Limits.MaxSteps < 0 {
		return errors.New("limits must not be negative")
	}
	for name, d := range map[string]Duration{
		"gc.interval":    c.GC.Interval,
		"gc.requestTTL":  c.GC.RequestTTL,
		"gc.responseTTL": c.GC.ResponseTTL,
		"gc.stateTTL":    c.GC.StateTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d.Std())
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid logLevel %q", c.LogLevel)
	}
	return lvl, nil
}

// Marshal returns the YAML form of c.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
