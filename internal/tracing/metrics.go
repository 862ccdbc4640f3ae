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

package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ExecutionCounter reports the number of executions currently tracked.
type ExecutionCounter interface {
	ActiveExecutions() int
}

// MetricsCollector records the agent's own health metrics. All methods are
// safe on a nil receiver so callers never need to check whether metrics are
// configured.
type MetricsCollector struct {
	meter metric.Meter

	spansStarted metric.Int64Counter
	spansEnded   metric.Int64Counter
	suppressed   metric.Int64Counter
	violations   metric.Int64Counter

	pipelineDuration metric.Float64Histogram

	counterMu sync.RWMutex
	counter   ExecutionCounter
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter(InstrumentationName)

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.spansStarted, err = meter.Int64Counter(
		"flowtrace_spans_started_total",
		metric.WithDescription("Total number of spans started"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.spansEnded, err = meter.Int64Counter(
		"flowtrace_spans_ended_total",
		metric.WithDescription("Total number of spans ended"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.suppressed, err = meter.Int64Counter(
		"flowtrace_events_suppressed_total",
		metric.WithDescription("Total number of notifications that produced no span by policy"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	mc.violations, err = meter.Int64Counter(
		"flowtrace_protocol_violations_total",
		metric.WithDescription("Total number of out-of-protocol notifications"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	mc.pipelineDuration, err = meter.Float64Histogram(
		"flowtrace_pipeline_duration_seconds",
		metric.WithDescription("Pipeline execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"flowtrace_active_executions",
		metric.WithDescription("Number of executions with open spans"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			mc.counterMu.RLock()
			counter := mc.counter
			mc.counterMu.RUnlock()
			if counter != nil {
				o.Observe(int64(counter.ActiveExecutions()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// SetExecutionCounter wires the source of the active executions gauge.
func (mc *MetricsCollector) SetExecutionCounter(counter ExecutionCounter) {
	if mc == nil {
		return
	}
	mc.counterMu.Lock()
	mc.counter = counter
	mc.counterMu.Unlock()
}

// RecordSpanStart counts a started span of the given kind ("pipeline" or "processor").
func (mc *MetricsCollector) RecordSpanStart(ctx context.Context, kind string) {
	if mc == nil {
		return
	}
	mc.spansStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSpanEnd counts an ended span with its final status ("ok", "error" or "force_closed").
func (mc *MetricsCollector) RecordSpanEnd(ctx context.Context, kind, status string) {
	if mc == nil {
		return
	}
	mc.spansEnded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordPipelineComplete records the duration of a finished pipeline span.
func (mc *MetricsCollector) RecordPipelineComplete(ctx context.Context, pipeline, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.pipelineDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
}

// RecordSuppressed counts a notification dropped by the span policy.
func (mc *MetricsCollector) RecordSuppressed(ctx context.Context, reason string) {
	if mc == nil {
		return
	}
	mc.suppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordViolation counts an out-of-protocol notification.
func (mc *MetricsCollector) RecordViolation(ctx context.Context, reason string) {
	if mc == nil {
		return
	}
	mc.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// NewPrometheusMeterProvider creates a meter provider whose metrics are
// collected into registry. A dedicated registry keeps repeated agents in
// one process from colliding on the global one.
func NewPrometheusMeterProvider(registry *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// MetricsHandler serves the metrics collected in registry.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
