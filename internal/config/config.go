// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the flowtrace configuration file.
//
// Settings are resolved in this order: the YAML file, then OTEL_*
// environment variables for exporter and resource fields the file left
// empty, then built-in defaults. Logging settings from the environment
// override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flowlog "github.com/tombee/flowtrace/internal/log"
	"github.com/tombee/flowtrace/internal/tracing"
	flowerrors "github.com/tombee/flowtrace/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete flowtrace configuration.
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Tracing tracing.Config `yaml:"tracing"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: FLOWTRACE_LOG_LEVEL, LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads configuration from configPath, which may be empty, applies
// the environment and defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Exporter fields start empty so the environment can fill whatever the
	// file does not set; applyDefaults restores the rest.
	cfg.Tracing.TraceExporter = tracing.ExporterConfig{}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &flowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &flowerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// Parse decodes YAML configuration from data without touching the
// environment or validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	c.Tracing.ApplyDefaults()
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("FLOWTRACE_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	applyOTelEnv(&c.Tracing, os.Getenv)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &flowerrors.ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be one of [trace, debug, info, warn, error], got %q", c.Log.Level),
		})
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, &flowerrors.ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("must be one of [json, text], got %q", c.Log.Format),
		})
	}

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}

	return flowerrors.Join(errs...)
}

// LoggerConfig converts the log settings for log.New.
func (c *Config) LoggerConfig() *flowlog.Config {
	cfg := flowlog.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = flowlog.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}
