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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/flowtrace/internal/agent"
	"github.com/tombee/flowtrace/internal/commands/shared"
	"github.com/tombee/flowtrace/internal/notification"
	"github.com/tombee/flowtrace/internal/replay"
	"github.com/tombee/flowtrace/internal/tracing"
	"github.com/tombee/flowtrace/internal/tracing/export"
)

type options struct {
	concurrency int
	protocol    string
	endpoint    string
	db          string
}

// Result is the JSON form of a replay summary.
type Result struct {
	shared.JSONResponse
	Events          int    `json:"events"`
	Executions      int    `json:"executions"`
	DurationMillis  int64  `json:"duration_ms"`
	Connection      string `json:"connection"`
	ConnectionError string `json:"connection_error,omitempty"`
	OpenExecutions  int    `json:"open_executions"`
	Storage         string `json:"storage,omitempty"`
	TracingDisabled bool   `json:"tracing_disabled,omitempty"`
}

// NewCommand creates the replay command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "replay <events>",
		Short: "Replay recorded notifications through the tracing agent",
		Long: `Replay starts a tracing agent on an in-process notification dispatcher,
publishes the events from a YAML or JSON file (one goroutine per
correlation id, file order within each), then shuts the agent down so
every span is flushed.

Use --protocol console to print the resulting spans instead of sending
them to a collector, and --db to keep them in a local store for
'flowtrace spans'.`,
		Example: `  # Print the span tree of a captured execution
  flowtrace replay events.yaml --protocol console

  # Send to the configured collector and keep a local copy
  flowtrace replay events.yaml --db spans.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Maximum executions replayed at once (0 = unlimited)")
	cmd.Flags().StringVar(&opts.protocol, "protocol", "", "Override the exporter protocol (grpc, http/protobuf, console, none)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Override the exporter endpoint")
	cmd.Flags().StringVar(&opts.db, "db", "", "Also store spans in this SQLite database")

	return cmd
}

func runReplay(cmd *cobra.Command, path string, opts options) error {
	if opts.concurrency < 0 {
		return shared.NewUsageError("--concurrency must not be negative", nil)
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	events, err := replay.Load(path)
	if err != nil {
		return shared.NewUsageError("failed to load events", err)
	}

	tc := cfg.Tracing
	if opts.protocol != "" {
		tc.TraceExporter.Protocol = opts.protocol
		if opts.endpoint == "" {
			tc.TraceExporter.Endpoint = ""
		}
	}
	if opts.endpoint != "" {
		tc.TraceExporter.Endpoint = opts.endpoint
	}
	if opts.db != "" {
		tc.Storage.Path = opts.db
	}

	logger := shared.NewLogger(cfg, cmd.ErrOrStderr())
	conn := tracing.NewLazyConnection(logger)
	agentOpts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithConnection(conn),
	}
	if tc.TraceExporter.Protocol == tracing.ProtocolConsole {
		console, err := export.NewConsoleExporter(export.ConsoleConfig{Writer: cmd.OutOrStdout(), PrettyPrint: true})
		if err != nil {
			return shared.NewExecutionError("failed to create console exporter", err)
		}
		agentOpts = append(agentOpts, agent.WithConnectionOptions(tracing.WithSpanExporter(console)))
	}

	a := agent.New(tc, tracing.HostInfo{ApplicationName: "flowtrace-replay", RuntimeName: "flowtrace"}, agentOpts...)
	dispatcher := notification.NewDispatcher()
	if err := a.Start(dispatcher); err != nil {
		return shared.NewExecutionError("failed to start agent", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, replayErr := replay.Replay(ctx, dispatcher, events, replay.Options{Concurrency: opts.concurrency})

	open := 0
	if h := a.Handler(); h != nil {
		open = h.ActiveExecutions()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	shutdownErr := a.Shutdown(shutdownCtx)

	if replayErr != nil {
		return shared.NewExecutionError("replay interrupted", replayErr)
	}
	if shutdownErr != nil {
		return shared.NewExecutionError("failed to flush spans", shutdownErr)
	}

	result := Result{
		JSONResponse:    shared.NewJSONResponse("replay", true),
		Events:          res.Events,
		Executions:      res.Executions,
		DurationMillis:  res.Duration.Milliseconds(),
		Connection:      conn.State().String(),
		OpenExecutions:  open,
		Storage:         tc.Storage.Path,
		TracingDisabled: tc.DisableAllTracing,
	}
	if err := conn.Err(); err != nil {
		result.ConnectionError = err.Error()
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), result)
	}
	if shared.GetQuiet() {
		return nil
	}

	cmd.Println(shared.RenderOK(fmt.Sprintf("replayed %d events across %d executions in %s",
		result.Events, result.Executions, res.Duration.Round(time.Millisecond))))
	if result.TracingDisabled {
		cmd.Println(shared.RenderWarn("tracing is disabled; no spans were produced"))
		return nil
	}
	cmd.Println(shared.RenderKV("connection", result.Connection))
	if result.ConnectionError != "" {
		cmd.Println(shared.RenderError(result.ConnectionError))
	}
	if open > 0 {
		cmd.Println(shared.RenderWarn(fmt.Sprintf("%d executions never completed; their spans were not ended", open)))
	}
	if result.Storage != "" {
		cmd.Println(shared.RenderKV("stored in", result.Storage))
	}
	return nil
}
