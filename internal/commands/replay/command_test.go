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

package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/flowtrace/internal/commands/shared"
	"github.com/tombee/flowtrace/internal/tracing/storage"
)

const orderFlow = "../../replay/testdata/order-flow.yaml"

func setup(t *testing.T, content string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL", "LOG_LEVEL", "FLOWTRACE_LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "flowtrace.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
		shared.SetJSONForTest(false)
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReplayToConsole(t *testing.T) {
	setup(t, `
tracing:
  resource:
    service_name: orders-app
  trace_exporter:
    protocol: console
`)

	out, err := run(t, orderFlow)
	if err != nil {
		t.Fatalf("replay failed: %v\nOutput: %s", err, out)
	}

	if !strings.Contains(out, "replayed 9 events across 2 executions") {
		t.Errorf("expected summary line, got: %s", out)
	}
	if !strings.Contains(out, `"Name": "order-flow"`) {
		t.Errorf("expected console span output, got: %s", out)
	}
	if !strings.Contains(out, "DB:CONNECTIVITY") {
		t.Errorf("expected recorded exception in span output, got: %s", out)
	}
	if !strings.Contains(out, "ready") {
		t.Errorf("expected connection state in summary, got: %s", out)
	}
}

func TestReplayStoresSpans(t *testing.T) {
	setup(t, `
tracing:
  trace_exporter:
    protocol: none
`)
	db := filepath.Join(t.TempDir(), "spans.db")

	out, err := run(t, orderFlow, "--db", db, "--concurrency", "1")
	if err != nil {
		t.Fatalf("replay failed: %v\nOutput: %s", err, out)
	}
	if !strings.Contains(out, db) {
		t.Errorf("expected storage path in summary, got: %s", out)
	}

	store, err := storage.New(storage.Config{Path: db})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	traces, err := store.ListTraces(context.Background(), storage.TraceFilter{})
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(traces))
	}

	var spans int
	for _, tr := range traces {
		if tr.Name != "order-flow" {
			t.Errorf("expected root span 'order-flow', got %q", tr.Name)
		}
		spans += tr.SpanCount
	}
	if spans != 5 {
		t.Errorf("expected 5 stored spans, got %d", spans)
	}

	failed, err := store.ListTraces(context.Background(), storage.TraceFilter{ErrorsOnly: true})
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(failed) == 0 {
		t.Error("expected the failing persist step to mark its trace")
	}
}

func TestReplayJSON(t *testing.T) {
	setup(t, `
tracing:
  trace_exporter:
    protocol: none
`)
	shared.SetJSONForTest(true)

	out, err := run(t, orderFlow)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	var res Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if !res.Success || res.Command != "replay" {
		t.Errorf("unexpected envelope: %+v", res.JSONResponse)
	}
	if res.Events != 9 || res.Executions != 2 {
		t.Errorf("expected 9 events in 2 executions, got %d in %d", res.Events, res.Executions)
	}
	if res.OpenExecutions != 0 {
		t.Errorf("expected every execution to complete, got %d open", res.OpenExecutions)
	}
	if res.Connection != "ready" {
		t.Errorf("expected connection 'ready', got %q", res.Connection)
	}
}

func TestReplayDisabled(t *testing.T) {
	setup(t, `
tracing:
  disable_all_tracing: true
`)

	out, err := run(t, orderFlow)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !strings.Contains(out, "tracing is disabled") {
		t.Errorf("expected disabled notice, got: %s", out)
	}
}

func TestReplayErrors(t *testing.T) {
	setup(t, `
tracing:
  trace_exporter:
    protocol: none
`)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing file", []string{filepath.Join(t.TempDir(), "absent.yaml")}, shared.ExitUsage},
		{"negative concurrency", []string{orderFlow, "--concurrency", "-1"}, shared.ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			exitErr, ok := err.(*shared.ExitError)
			if !ok {
				t.Fatalf("expected *shared.ExitError, got %T", err)
			}
			if exitErr.Code != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, exitErr.Code)
			}
		})
	}
}
