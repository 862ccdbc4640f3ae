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

package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/flowtrace/internal/commands/shared"
	"github.com/tombee/flowtrace/internal/config"
	"github.com/tombee/flowtrace/internal/tracing"
)

// Summary is the effective configuration reported by validate. Header
// values are never printed.
type Summary struct {
	Path           string   `json:"path,omitempty"`
	TracingEnabled bool     `json:"tracing_enabled"`
	ServiceName    string   `json:"service_name,omitempty"`
	Protocol       string   `json:"protocol,omitempty"`
	Endpoint       string   `json:"endpoint,omitempty"`
	Headers        []string `json:"headers,omitempty"`
	TLS            bool     `json:"tls"`
	Compression    string   `json:"compression,omitempty"`
	ProcessorSpans bool     `json:"processor_spans"`
	Ignored        []string `json:"ignored_processors,omitempty"`
	SamplingRate   float64  `json:"sampling_rate"`
	Redaction      string   `json:"redaction,omitempty"`
	Storage        string   `json:"storage,omitempty"`
}

type response struct {
	shared.JSONResponse
	Config Summary `json:"config"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a flowtrace configuration file",
		Long: `Validate loads a configuration file the way the agent does (file, then
OTEL_* environment variables for unset exporter fields, then defaults),
checks it, and prints the effective tracing settings.

The file is taken from the argument, then --config, then
~/.config/flowtrace/config.yaml. Without any file the defaults and
environment are validated.`,
		Example: `  # Validate the default configuration
  flowtrace validate

  # Validate a specific file with JSON output
  flowtrace validate flowtrace.yaml --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := shared.GetConfigPath()
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.Load(path)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(cmd.OutOrStdout(), "validate", []shared.JSONError{{
				Code:       shared.ErrorCodeInvalidConfig,
				Message:    err.Error(),
				Suggestion: "Fix the reported fields and run validate again",
			}})
		} else {
			cmd.Println(shared.RenderStatus(false, "FAIL") + " configuration invalid")
		}
		return shared.NewConfigError("invalid configuration", err)
	}

	summary := summarize(path, cfg.Tracing)
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), response{
			JSONResponse: shared.NewJSONResponse("validate", true),
			Config:       summary,
		})
	}

	source := summary.Path
	if source == "" {
		source = "defaults and environment"
	}
	cmd.Println(shared.RenderStatus(true, "OK") + " configuration valid " + shared.Muted.Render("("+source+")"))

	if !summary.TracingEnabled {
		cmd.Println(shared.RenderWarn("tracing is disabled (disable_all_tracing: true)"))
		return nil
	}

	cmd.Println(shared.RenderKV("service", orDash(summary.ServiceName)))
	cmd.Println(shared.RenderKV("exporter", summary.Protocol+" "+summary.Endpoint))
	if len(summary.Headers) > 0 {
		cmd.Println(shared.RenderKV("headers", strings.Join(summary.Headers, ", ")))
	}
	cmd.Println(shared.RenderKV("tls", fmt.Sprint(summary.TLS)))
	cmd.Println(shared.RenderKV("compression", summary.Compression))
	cmd.Println(shared.RenderKV("processor spans", fmt.Sprint(summary.ProcessorSpans)))
	if len(summary.Ignored) > 0 {
		cmd.Println(shared.RenderKV("ignored", strings.Join(summary.Ignored, ", ")))
	}
	cmd.Println(shared.RenderKV("sampling", fmt.Sprintf("%g", summary.SamplingRate)))
	cmd.Println(shared.RenderKV("redaction", summary.Redaction))
	cmd.Println(shared.RenderKV("storage", orDash(summary.Storage)))
	return nil
}

func summarize(path string, cfg tracing.Config) Summary {
	s := Summary{
		Path:           path,
		TracingEnabled: !cfg.DisableAllTracing,
		ServiceName:    cfg.Resource.ServiceName,
		Protocol:       cfg.TraceExporter.Protocol,
		Endpoint:       cfg.TraceExporter.Endpoint,
		TLS:            cfg.TraceExporter.TLS.Enabled,
		Compression:    cfg.TraceExporter.Compression,
		ProcessorSpans: cfg.SpanGeneration.GenerateProcessorSpans,
		Ignored:        cfg.SpanGeneration.IgnoredProcessors,
		SamplingRate:   1,
		Redaction:      cfg.Redaction.Level,
		Storage:        cfg.Storage.Path,
	}
	if cfg.Sampling.Enabled {
		s.SamplingRate = cfg.Sampling.Rate
	}
	for name := range cfg.TraceExporter.Headers {
		s.Headers = append(s.Headers, name)
	}
	sort.Strings(s.Headers)
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
