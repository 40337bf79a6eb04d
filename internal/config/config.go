// Package config handles the inventory configuration file.
//
// TOML is the native format; files ending in .yaml or .yml are read as YAML
// with the same keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig      `toml:"aws" yaml:"aws"`
	Output  OutputConfig   `toml:"output" yaml:"output"`
	Scanner ScannerConfig  `toml:"scanner" yaml:"scanner"`
	OTEL    OTELConfig     `toml:"otel" yaml:"otel"`
	Metrics TextfileConfig `toml:"metrics" yaml:"metrics"`
	Log     LogConfig      `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS provider settings.
// No regions means every enabled region of the account.
type AWSConfig struct {
	Regions         []string `toml:"regions" yaml:"regions"`
	Profile         string   `toml:"profile" yaml:"profile"`
	AccessKeyID     string   `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key" yaml:"secret_access_key"`
	Endpoint        string   `toml:"endpoint" yaml:"endpoint"`
}

// OutputConfig holds artifact settings.
type OutputConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// ScannerConfig holds scanner settings.
type ScannerConfig struct {
	Concurrency       int      `toml:"concurrency" yaml:"concurrency"`
	ReservationStates []string `toml:"reservation_states" yaml:"reservation_states"`
	TimeoutStr        string   `toml:"timeout" yaml:"timeout"`
	IntervalStr       string   `toml:"interval" yaml:"interval"`
	// Timeout bounds one region's scan. Zero means no limit.
	Timeout time.Duration `toml:"-" yaml:"-"`
	// Interval repeats the scan until interrupted. Zero scans once.
	Interval time.Duration `toml:"-" yaml:"-"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds OTLP metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// TextfileConfig holds the Prometheus textfile settings.
type TextfileConfig struct {
	Textfile string `toml:"textfile" yaml:"textfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Scanner.Concurrency == 0 {
		cfg.Scanner.Concurrency = 1
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "inventory"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	if cfg.Scanner.TimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Scanner.TimeoutStr)
		if err != nil {
			return fmt.Errorf("parse timeout %q: %w", cfg.Scanner.TimeoutStr, err)
		}
		cfg.Scanner.Timeout = d
	}
	if cfg.Scanner.IntervalStr != "" {
		d, err := time.ParseDuration(cfg.Scanner.IntervalStr)
		if err != nil {
			return fmt.Errorf("parse interval %q: %w", cfg.Scanner.IntervalStr, err)
		}
		cfg.Scanner.Interval = d
	}
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Scanner.Concurrency < 1 {
		return fmt.Errorf("scanner: concurrency must be at least 1 (got %d)", c.Scanner.Concurrency)
	}
	if c.Scanner.Timeout < 0 {
		return fmt.Errorf("scanner: timeout must not be negative (got %v)", c.Scanner.Timeout)
	}
	if c.Scanner.Interval < 0 {
		return fmt.Errorf("scanner: interval must not be negative (got %v)", c.Scanner.Interval)
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return fmt.Errorf("aws: access_key_id and secret_access_key must be set together")
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
