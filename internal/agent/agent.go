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

// Package agent wires the tracing agent into a host runtime.
//
// An Agent validates its configuration, builds the span policy, redactor,
// self-metrics and notification handler, and registers one pipeline and one
// processor listener with the host. The telemetry connection itself is built
// lazily, on the first traced pipeline, through a LazyConnection.
package agent

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flowlog "github.com/tombee/flowtrace/internal/log"
	"github.com/tombee/flowtrace/internal/notification"
	"github.com/tombee/flowtrace/internal/tracing"
	"github.com/tombee/flowtrace/internal/tracing/redact"
	flowerrors "github.com/tombee/flowtrace/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	flushTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Agent is the tracing agent for one host process.
type Agent struct {
	cfg    tracing.Config
	host   tracing.HostInfo
	logger *slog.Logger

	conn          *tracing.LazyConnection
	connOpts      []tracing.Option
	meterProvider metric.MeterProvider

	mu          sync.Mutex
	started     bool
	handler     *notification.Handler
	registry    *prometheus.Registry
	ownedMeters *sdkmetric.MeterProvider
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithConnection uses conn instead of the process-wide connection.
func WithConnection(conn *tracing.LazyConnection) Option {
	return func(a *Agent) {
		a.conn = conn
	}
}

// WithConnectionOptions passes opts to NewConnection when the connection is built.
func WithConnectionOptions(opts ...tracing.Option) Option {
	return func(a *Agent) {
		a.connOpts = append(a.connOpts, opts...)
	}
}

// WithMeterProvider records self-metrics on mp instead of a dedicated
// Prometheus registry. MetricsHandler then serves nothing.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Agent) {
		a.meterProvider = mp
	}
}

// New creates an agent. Zero configuration values are filled with defaults.
func New(cfg tracing.Config, host tracing.HostInfo, opts ...Option) *Agent {
	cfg.ApplyDefaults()
	a := &Agent{
		cfg:    cfg,
		host:   host,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = flowlog.Discard()
	}
	a.logger = flowlog.WithComponent(a.logger, "agent")
	if a.conn == nil {
		a.conn = tracing.ProcessConnection()
	}
	return a
}

// Start registers the agent's listeners with the host.
//
// A disabled or invalid configuration is logged and leaves the host
// untouched; Start then returns nil so the host keeps running. Only a
// registration failure is returned.
func (a *Agent) Start(registry notification.Registry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return flowerrors.New("agent already started")
	}

	if a.cfg.DisableAllTracing {
		a.logger.Info("tracing disabled by configuration")
		return nil
	}
	if err := a.cfg.Validate(); err != nil {
		a.logger.Error("invalid tracing configuration, tracing disabled", flowlog.Error(err))
		return nil
	}

	mode, err := redact.ParseMode(a.cfg.Redaction.Level)
	if err != nil {
		a.logger.Error("invalid tracing configuration, tracing disabled", flowlog.Error(err))
		return nil
	}

	handlerOpts := []notification.HandlerOption{
		notification.WithLogger(a.logger),
		notification.WithRedactor(redact.NewRedactor(mode)),
	}
	if mc := a.newMetricsCollector(); mc != nil {
		handlerOpts = append(handlerOpts, notification.WithMetrics(mc))
	}

	handler := notification.NewHandler(
		tracing.NewSpanPolicy(a.cfg),
		a.conn.Source(a.buildConnection),
		handlerOpts...,
	)

	if err := registry.RegisterListener(notification.NewPipelineListener(handler)); err != nil {
		return flowerrors.Wrap(err, "failed to register pipeline listener")
	}
	if err := registry.RegisterListener(notification.NewProcessorListener(handler)); err != nil {
		return flowerrors.Wrap(err, "failed to register processor listener")
	}

	a.handler = handler
	a.started = true
	a.logger.Info("tracing agent started",
		slog.String("protocol", a.cfg.TraceExporter.Protocol),
		slog.String("endpoint", a.cfg.TraceExporter.Endpoint),
		slog.Bool("processor_spans", a.cfg.SpanGeneration.GenerateProcessorSpans),
		slog.String("redaction", string(mode)))
	return nil
}

// buildConnection is the BuildFunc handed to the LazyConnection.
func (a *Agent) buildConnection() (*tracing.Connection, error) {
	opts := append([]tracing.Option{tracing.WithProviderLogger(a.logger)}, a.connOpts...)
	conn, err := tracing.NewConnection(context.Background(), a.cfg, a.host, opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("telemetry connection built",
		slog.String("protocol", a.cfg.TraceExporter.Protocol))
	return conn, nil
}

// newMetricsCollector returns nil when self-metrics cannot be set up; the
// handler works without them.
func (a *Agent) newMetricsCollector() *tracing.MetricsCollector {
	mp := a.meterProvider
	if mp == nil {
		registry := prometheus.NewRegistry()
		owned, err := tracing.NewPrometheusMeterProvider(registry)
		if err != nil {
			a.logger.Warn("failed to create metrics exporter, self-metrics disabled", flowlog.Error(err))
			return nil
		}
		a.registry = registry
		a.ownedMeters = owned
		mp = owned
	}

	mc, err := tracing.NewMetricsCollector(mp)
	if err != nil {
		a.logger.Warn("failed to create metrics collector, self-metrics disabled", flowlog.Error(err))
		return nil
	}
	return mc
}

// Handler returns the notification handler, or nil before a successful Start.
func (a *Agent) Handler() *notification.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

// Connection returns the lazy connection the agent draws from.
func (a *Agent) Connection() *tracing.LazyConnection {
	return a.conn
}

// MetricsHandler serves the agent's self-metrics in Prometheus format.
func (a *Agent) MetricsHandler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registry == nil {
		return http.NotFoundHandler()
	}
	return tracing.MetricsHandler(a.registry)
}

// Shutdown flushes pending spans and shuts the connection down. It does
// nothing for the connection if no traced event ever built it.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	owned := a.ownedMeters
	a.ownedMeters = nil
	a.mu.Unlock()

	var errs []error
	if conn, ok := a.conn.Built(); ok {
		flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		if err := conn.ForceFlush(flushCtx); err != nil {
			a.logger.Warn("failed to flush pending spans", flowlog.Error(err))
			errs = append(errs, err)
		}
		cancel()

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := conn.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("telemetry connection shutdown error", flowlog.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}

	if owned != nil {
		if err := owned.Shutdown(ctx); err != nil {
			errs = append(errs, flowerrors.Wrap(err, "failed to shut down meter provider"))
		}
	}
	return flowerrors.Join(errs...)
}
