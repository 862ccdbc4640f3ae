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
	"log/slog"

	"github.com/tombee/flowtrace/internal/tracing/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customizes NewConnection.
type Option func(*providerOptions)

type providerOptions struct {
	exporter   sdktrace.SpanExporter
	processors []sdktrace.SpanProcessor
	logger     *slog.Logger
}

// WithSpanExporter replaces the configured trace exporter. The exporter is
// registered synchronously, so spans are visible as soon as they end.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *providerOptions) {
		o.exporter = exp
	}
}

// WithSpanProcessor registers an additional span processor.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *providerOptions) {
		o.processors = append(o.processors, p)
	}
}

// WithProviderLogger sets the logger used by components of the provider.
func WithProviderLogger(logger *slog.Logger) Option {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// NewConnection builds the SDK tracer provider described by cfg: resource,
// head sampler, exporter behind a batch processor, and the optional local
// span store. A disabled configuration yields NoopConnection.
func NewConnection(ctx context.Context, cfg Config, host HostInfo, opts ...Option) (*Connection, error) {
	if cfg.DisableAllTracing {
		return NoopConnection(), nil
	}

	o := providerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := NewResource(cfg.Resource, host)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewSampler(cfg.Sampling)),
	}

	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(o.exporter))
	} else {
		exporter, err := CreateExporter(ctx, cfg.TraceExporter)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		if exporter != nil {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(
				sdktrace.NewBatchSpanProcessor(exporter, batchOptions(cfg)...)))
		}
	}

	if cfg.Storage.Path != "" {
		store, err := storage.New(storage.Config{Path: cfg.Storage.Path})
		if err != nil {
			shutdownProcessors(ctx, tpOpts)
			return nil, fmt.Errorf("failed to open span store: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(
			sdktrace.NewBatchSpanProcessor(NewStorageExporter(store, o.logger), batchOptions(cfg)...)))
	}

	for _, p := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}

	return NewConnectionFromProvider(sdktrace.NewTracerProvider(tpOpts...)), nil
}

func batchOptions(cfg Config) []sdktrace.BatchSpanProcessorOption {
	var opts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchSize > 0 {
		opts = append(opts, sdktrace.WithMaxExportBatchSize(cfg.BatchSize))
	}
	if cfg.BatchInterval > 0 {
		opts = append(opts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
	}
	return opts
}

// shutdownProcessors releases exporters created before a later step failed.
func shutdownProcessors(ctx context.Context, opts []sdktrace.TracerProviderOption) {
	_ = sdktrace.NewTracerProvider(opts...).Shutdown(ctx)
}
