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

/*
Package tracing owns the telemetry side of flowtrace: configuration, the
resource describing the host process, the span policy, and the lazily built
connection to the OpenTelemetry SDK.

# Connection lifecycle

Nothing is constructed at startup. The first traced notification calls
LazyConnection.Get with a BuildFunc, usually a closure around NewConnection:

	lazy := tracing.NewLazyConnection(logger)
	conn := lazy.Get(func() (*tracing.Connection, error) {
	    return tracing.NewConnection(ctx, cfg, host)
	})

Concurrent first callers wait for the single build and share its result. A
failed build is permanent for the process and yields NoopConnection, whose
spans are never recorded.

# Span policy

SpanPolicy decides, before any span work, whether a processor notification
produces a span. Exclusions are exact processor identifiers or doublestar
globs:

	span_generation:
	  generate_processor_spans: true
	  ignored_processors: ["logger", "ee:*"]

# Exporters

CreateExporter selects OTLP over gRPC or HTTP/protobuf, a console exporter,
or none. Explicit configuration always wins over OTEL_EXPORTER_OTLP_*
environment variables. When storage.path is set, finished spans are also
written to a local SQLite store (package storage).

# Self-metrics

MetricsCollector records spans started and ended, suppressed notifications,
protocol violations, active executions, and pipeline durations. They are
exposed in Prometheus format through MetricsHandler and are never sent to the
collector.
*/
package tracing
