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

package spans

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tombee/flowtrace/internal/commands/shared"
	"github.com/tombee/flowtrace/internal/tracing/storage"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spans.db")
	store, err := storage.New(storage.Config{Path: path})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	spans := []*storage.Span{
		{TraceID: "t1", SpanID: "persist", ParentID: "root1", Name: "persist", Kind: storage.SpanKindInternal,
			StartTime: base.Add(25 * time.Millisecond), EndTime: base.Add(time.Second),
			Status: storage.Status{Code: storage.StatusCodeError, Message: "timeout"}},
		{TraceID: "t1", SpanID: "validate", ParentID: "root1", Name: "validate", Kind: storage.SpanKindInternal,
			StartTime: base.Add(5 * time.Millisecond), EndTime: base.Add(20 * time.Millisecond)},
		{TraceID: "t1", SpanID: "root1", Name: "order-flow", Kind: storage.SpanKindServer,
			StartTime: base, EndTime: base.Add(1010 * time.Millisecond)},
		{TraceID: "t2", SpanID: "root2", Name: "sync", Kind: storage.SpanKindServer,
			StartTime: base.Add(time.Minute), EndTime: base.Add(time.Minute + 40*time.Millisecond),
			Status: storage.Status{Code: storage.StatusCodeOK}},
	}
	for _, s := range spans {
		if err := store.StoreSpan(context.Background(), s); err != nil {
			t.Fatalf("StoreSpan failed: %v", err)
		}
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListTraces(t *testing.T) {
	db := seedStore(t)

	out, err := run(t, "--db", db)
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 traces, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "t2") {
		t.Errorf("expected newest trace first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "order-flow") || !strings.Contains(lines[1], "1 errors") {
		t.Errorf("expected order-flow with one error, got %q", lines[1])
	}
}

func TestListTraces_Filters(t *testing.T) {
	db := seedStore(t)

	out, err := run(t, "--db", db, "--errors")
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}
	if !strings.Contains(out, "t1") || strings.Contains(out, "t2") {
		t.Errorf("expected only the failing trace, got:\n%s", out)
	}

	out, err = run(t, "--db", db, "--name", "missing")
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}
	if !strings.Contains(out, "No traces found") {
		t.Errorf("expected empty listing, got:\n%s", out)
	}
}

func TestListTraces_JSON(t *testing.T) {
	db := seedStore(t)
	shared.SetJSONForTest(true)

	out, err := run(t, "--db", db, "--limit", "1")
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}

	var res ListResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(res.Traces) != 1 || res.Traces[0].TraceID != "t2" {
		t.Errorf("expected only t2, got %+v", res.Traces)
	}
}

func TestShowTrace(t *testing.T) {
	db := seedStore(t)

	out, err := run(t, "--db", db, "--trace", "t1")
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 spans, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "order-flow") {
		t.Errorf("expected root first, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "  validate") {
		t.Errorf("expected validate nested before persist, got %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "  persist") || !strings.Contains(lines[3], "(timeout)") {
		t.Errorf("expected persist with status message, got %q", lines[3])
	}
}

func TestShowTrace_NotFound(t *testing.T) {
	db := seedStore(t)

	_, err := run(t, "--db", db, "--trace", "nope")
	if err == nil {
		t.Fatal("expected error for unknown trace")
	}
	exitErr, ok := err.(*shared.ExitError)
	if !ok {
		t.Fatalf("expected *shared.ExitError, got %T", err)
	}
	if exitErr.Code != shared.ExitUsage {
		t.Errorf("expected usage exit code, got %d", exitErr.Code)
	}
}

func TestPrune(t *testing.T) {
	db := seedStore(t)

	out, err := run(t, "--db", db, "--prune", "1h")
	if err != nil {
		t.Fatalf("spans failed: %v", err)
	}
	if !strings.Contains(out, "deleted 2 traces") {
		t.Errorf("expected both seeded traces pruned, got: %s", out)
	}
}

func TestNoStore(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	shared.SetConfigPathForTest("")

	_, err := run(t)
	if err == nil {
		t.Fatal("expected error without a span store")
	}
}

func TestRenderTree_OrphanParent(t *testing.T) {
	spans := []*storage.Span{
		{SpanID: "b", ParentID: "gone", Name: "child", StartTime: base},
		{SpanID: "a", Name: "root", StartTime: base.Add(time.Second)},
	}

	lines := renderTree(spans)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "child") {
		t.Errorf("expected span with missing parent as a root, got %q", lines[0])
	}
}
