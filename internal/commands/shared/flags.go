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

// Package shared holds the global flags, output helpers and exit handling
// used by every flowtrace command.
package shared

import (
	"io"
	"log/slog"

	"github.com/tombee/flowtrace/internal/config"
	flowlog "github.com/tombee/flowtrace/internal/log"
)

// Global flag values - set by root command
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verboseFlag
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quietFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config file path: the --config flag, else the
// default file if it exists, else "".
func GetConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.DefaultPath()
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	configFlag = path
}

// SetJSONForTest sets the JSON flag for testing purposes
func SetJSONForTest(v bool) {
	jsonFlag = v
}

// LoadConfig loads the configuration selected by the global flags.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the command logger from cfg, writing to w. --verbose
// lowers the level to debug; --quiet raises it to error.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = w
	switch {
	case quietFlag:
		lc.Level = "error"
	case verboseFlag && flowlog.ParseLevel(lc.Level) > slog.LevelDebug:
		lc.Level = "debug"
	}
	return flowlog.New(lc)
}
