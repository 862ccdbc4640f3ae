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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/flowtrace/internal/commands/shared"
	"github.com/tombee/flowtrace/internal/tracing/storage"
)

type options struct {
	db     string
	trace  string
	errors bool
	name   string
	since  time.Duration
	limit  int
	prune  time.Duration
}

// ListResult is the JSON form of a trace listing.
type ListResult struct {
	shared.JSONResponse
	Traces []storage.TraceSummary `json:"traces"`
}

// TraceResult is the JSON form of a single trace.
type TraceResult struct {
	shared.JSONResponse
	TraceID string          `json:"trace_id"`
	Spans   []*storage.Span `json:"spans"`
}

// NewCommand creates the spans command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "spans",
		Short: "Inspect spans kept in the local span store",
		Long: `Spans reads the SQLite store written when tracing.storage.path is set
(or by 'flowtrace replay --db').

Without --trace it lists stored traces, newest first. With --trace it
prints the span tree of one trace.`,
		Example: `  # Recent failing executions
  flowtrace spans --db spans.db --errors

  # Span tree of one execution
  flowtrace spans --db spans.db --trace 4bf92f3577b34da6a3ce929d0e0e4736

  # Drop traces older than a week
  flowtrace spans --db spans.db --prune 168h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpans(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.db, "db", "", "Span store path (default: tracing.storage.path from config)")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "Show the span tree of this trace id")
	cmd.Flags().BoolVar(&opts.errors, "errors", false, "Only list traces containing an error span")
	cmd.Flags().StringVar(&opts.name, "name", "", "Only list traces with this root span name")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "Only list traces started within this duration")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of traces to list (0 = all)")
	cmd.Flags().DurationVar(&opts.prune, "prune", 0, "Delete traces older than this duration")

	return cmd
}

func runSpans(cmd *cobra.Command, opts options) error {
	path := opts.db
	if path == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return err
		}
		path = cfg.Tracing.Storage.Path
	}
	if path == "" {
		return shared.NewUsageError("no span store: pass --db or set tracing.storage.path", nil)
	}
	if opts.limit < 0 {
		return shared.NewUsageError("--limit must not be negative", nil)
	}

	store, err := storage.New(storage.Config{Path: path})
	if err != nil {
		return shared.NewExecutionError("failed to open span store", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case opts.prune > 0:
		return prune(ctx, cmd, store, opts.prune)
	case opts.trace != "":
		return showTrace(ctx, cmd, store, opts.trace)
	default:
		return listTraces(ctx, cmd, store, opts)
	}
}

func prune(ctx context.Context, cmd *cobra.Command, store *storage.SQLiteStore, age time.Duration) error {
	n, err := store.DeleteTracesOlderThan(ctx, time.Now().Add(-age))
	if err != nil {
		return shared.NewExecutionError("failed to prune span store", err)
	}
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Deleted int64 `json:"deleted"`
		}{shared.NewJSONResponse("spans", true), n})
	}
	cmd.Println(shared.RenderOK(fmt.Sprintf("deleted %d traces older than %s", n, age)))
	return nil
}

func listTraces(ctx context.Context, cmd *cobra.Command, store *storage.SQLiteStore, opts options) error {
	filter := storage.TraceFilter{
		ErrorsOnly: opts.errors,
		Name:       opts.name,
		Limit:      opts.limit,
	}
	if opts.since > 0 {
		filter.Since = time.Now().Add(-opts.since)
	}

	traces, err := store.ListTraces(ctx, filter)
	if err != nil {
		return shared.NewExecutionError("failed to list traces", err)
	}

	if shared.GetJSON() {
		if traces == nil {
			traces = []storage.TraceSummary{}
		}
		return shared.EmitJSON(cmd.OutOrStdout(), ListResult{
			JSONResponse: shared.NewJSONResponse("spans", true),
			Traces:       traces,
		})
	}

	if len(traces) == 0 {
		cmd.Println("No traces found")
		return nil
	}

	for _, t := range traces {
		cmd.Printf("%s  %-24s %s %10s  %d spans",
			t.TraceID,
			t.Name,
			shared.RenderSpanStatus(t.Status.String()),
			t.Duration.Round(time.Millisecond),
			t.SpanCount)
		if t.ErrorCount > 0 {
			cmd.Printf(", %d errors", t.ErrorCount)
		}
		cmd.Println()
	}
	return nil
}

func showTrace(ctx context.Context, cmd *cobra.Command, store *storage.SQLiteStore, traceID string) error {
	spans, err := store.GetTraceSpans(ctx, traceID)
	if errors.Is(err, storage.ErrNotFound) {
		return shared.NewUsageError(fmt.Sprintf("trace %s not found", traceID), err)
	}
	if err != nil {
		return shared.NewExecutionError("failed to read trace", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), TraceResult{
			JSONResponse: shared.NewJSONResponse("spans", true),
			TraceID:      traceID,
			Spans:        spans,
		})
	}

	cmd.Println(shared.RenderKV("trace", traceID))
	for _, line := range renderTree(spans) {
		cmd.Println(line)
	}
	return nil
}

// renderTree lays spans out depth first, children in start order. Spans
// whose parent is not stored are treated as roots.
func renderTree(spans []*storage.Span) []string {
	known := make(map[string]bool, len(spans))
	for _, s := range spans {
		known[s.SpanID] = true
	}

	children := make(map[string][]*storage.Span)
	var roots []*storage.Span
	for _, s := range spans {
		if s.ParentID == "" || !known[s.ParentID] {
			roots = append(roots, s)
			continue
		}
		children[s.ParentID] = append(children[s.ParentID], s)
	}

	byStart := func(list []*storage.Span) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].StartTime.Before(list[j].StartTime)
		})
	}
	byStart(roots)

	var lines []string
	var walk func(s *storage.Span, depth int)
	walk = func(s *storage.Span, depth int) {
		lines = append(lines, formatSpan(s, depth))
		kids := children[s.SpanID]
		byStart(kids)
		for _, c := range kids {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return lines
}

func formatSpan(s *storage.Span, depth int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(s.Name)
	b.WriteString(" ")
	b.WriteString(shared.RenderSpanStatus(s.Status.Code.String()))
	fmt.Fprintf(&b, " %s", s.Duration().Round(time.Millisecond))
	if s.Status.Message != "" {
		fmt.Fprintf(&b, " (%s)", s.Status.Message)
	}
	return b.String()
}
