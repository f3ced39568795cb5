package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerank/internal/registry"
	"github.com/srg/blerank/internal/view"
	"gopkg.in/yaml.v3"
)

// Scanner backends.
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Backends lists the supported scanner backends.
var Backends = []string{BackendGoBLE, BackendTinyGo}

// LogLevels lists the accepted log level names.
var LogLevels = []string{"debug", "info", "warn", "error", "panic"}

// Config holds application configuration
type Config struct {
	LogLevel        string        `yaml:"log_level" default:"panic"`
	ScanTimeout     time.Duration `yaml:"scan_timeout" default:"10s"`
	HistoryWindow   int           `yaml:"history_window" default:"5"`
	NamePolicy      string        `yaml:"name_policy" default:"keep"`
	OutputFormat    string        `yaml:"output_format" default:"table"`
	DuplicateFilter bool          `yaml:"duplicate_filter" default:"true"`
	Backend         string        `yaml:"backend" default:"goble"`
	Listen          string        `yaml:"listen" default:""`
	UnknownName     string        `yaml:"unknown_name" default:"Unknown Device"`
	LogTailLines    int           `yaml:"log_tail_lines" default:"5"`
	FilterScript    string        `yaml:"filter_script" default:""`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field that has a closed set of values.
func (c *Config) Validate() error {
	if c.HistoryWindow < 1 {
		return fmt.Errorf("history window must be >= 1, got %d", c.HistoryWindow)
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan timeout cannot be negative")
	}
	if c.LogTailLines < 0 {
		return fmt.Errorf("log tail lines cannot be negative")
	}
	if _, err := registry.ParseNamePolicy(c.NamePolicy); err != nil {
		return err
	}
	if _, err := view.ParseFormat(c.OutputFormat); err != nil {
		return err
	}
	if !contains(Backends, c.Backend) {
		return fmt.Errorf("invalid backend '%s': must be one of %v", c.Backend, Backends)
	}
	if !contains(LogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log level '%s': must be one of %v", c.LogLevel, LogLevels)
	}
	return nil
}

// RegistryOptions maps the registry settings onto registry options.
func (c *Config) RegistryOptions() []registry.Option {
	opts := []registry.Option{registry.WithHistoryWindow(c.HistoryWindow)}
	if policy, err := registry.ParseNamePolicy(c.NamePolicy); err == nil {
		opts = append(opts, registry.WithNamePolicy(policy))
	}
	return opts
}

// Level returns the logrus level; unknown names map to Panic (silent).
func (c *Config) Level() logrus.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.PanicLevel
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
