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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults when no env vars",
			envVars:    map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
		{
			name:       "LOG_LEVEL is lower-cased",
			envVars:    map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
		},
		{
			name:       "FLOWTRACE_LOG_LEVEL beats LOG_LEVEL",
			envVars:    map[string]string{"LOG_LEVEL": "error", "FLOWTRACE_LOG_LEVEL": "warn"},
			wantLevel:  "warn",
			wantFormat: FormatJSON,
		},
		{
			name:       "FLOWTRACE_DEBUG enables debug and source",
			envVars:    map[string]string{"FLOWTRACE_DEBUG": "1", "FLOWTRACE_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
			wantSource: true,
		},
		{
			name:       "text format and source",
			envVars:    map[string]string{"LOG_FORMAT": "TEXT", "LOG_SOURCE": "1"},
			wantLevel:  "info",
			wantFormat: FormatText,
			wantSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"FLOWTRACE_DEBUG", "FLOWTRACE_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			if cfg.Level != tt.wantLevel {
				t.Errorf("level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("add source = %v, want %v", cfg.AddSource, tt.wantSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("span started", "pipeline", "order-flow")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "span started" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["pipeline"] != "order-flow" {
		t.Errorf("unexpected pipeline field: %v", entry["pipeline"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNew_NilConfig(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("New(nil) returned nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info message should have been filtered")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn message should have been written")
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger = WithComponent(logger, "notification")
	logger = WithExecutionContext(logger, "c1", "order-flow")
	logger.Warn("orphan event", Error(errors.New("no context")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	want := map[string]string{
		ComponentKey:     "notification",
		CorrelationIDKey: "c1",
		PipelineKey:      "order-flow",
		"error":          "no context",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	Trace(New(&Config{Level: "debug", Output: &buf}), "hidden")
	if buf.Len() != 0 {
		t.Errorf("trace message should be filtered at debug level, got %q", buf.String())
	}

	Trace(New(&Config{Level: "trace", Output: &buf}), "shown", slog.String(EventKey, "processor.start"))
	if !strings.Contains(buf.String(), "processor.start") {
		t.Errorf("trace message should be written at trace level, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled for error")
	}
}
