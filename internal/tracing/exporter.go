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
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/flowtrace/internal/tracing/export"
	"github.com/tombee/flowtrace/internal/tracing/storage"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// CreateExporter creates the span exporter selected by cfg.Protocol.
// It returns a nil exporter for ProtocolNone.
func CreateExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case ProtocolConsole:
		return export.NewConsoleExporter(export.ConsoleConfig{PrettyPrint: true})

	case ProtocolGRPC, "":
		tlsConfig, err := buildTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config for OTLP exporter: %w", err)
		}
		return export.NewOTLPExporter(ctx, export.OTLPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  plaintext(cfg),
			TLSConfig: tlsConfig,
			Headers:   cfg.Headers,
			Timeout:   cfg.Timeout,
			Gzip:      cfg.Compression == CompressionGzip,
		})

	case ProtocolHTTPProtobuf:
		tlsConfig, err := buildTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config for OTLP HTTP exporter: %w", err)
		}
		return export.NewOTLPHTTPExporter(ctx, export.OTLPHTTPConfig{
			Endpoint:  cfg.Endpoint,
			URLPath:   cfg.URLPath,
			Insecure:  plaintext(cfg),
			TLSConfig: tlsConfig,
			Headers:   cfg.Headers,
			Timeout:   cfg.Timeout,
			Gzip:      cfg.Compression == CompressionGzip,
		})

	case ProtocolNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown exporter protocol: %s", cfg.Protocol)
	}
}

func buildTLS(cfg TLSConfig) (*tls.Config, error) {
	return export.BuildTLSConfig(export.TLSConfigInput{
		Enabled:           cfg.Enabled,
		VerifyCertificate: cfg.VerifyCertificate,
		CACertPath:        cfg.CACertPath,
		ClientCertPath:    cfg.ClientCertPath,
		ClientKeyPath:     cfg.ClientKeyPath,
	})
}

// plaintext reports whether the exporter should skip TLS: TLS is not
// configured and the endpoint does not ask for https.
func plaintext(cfg ExporterConfig) bool {
	if cfg.TLS.Enabled {
		return false
	}
	return !strings.HasPrefix(cfg.Endpoint, "https://")
}

// StorageExporter writes finished spans to the local span store.
type StorageExporter struct {
	store  storage.SpanStore
	logger *slog.Logger
}

// NewStorageExporter creates a new storage exporter. The exporter owns the
// store and closes it on Shutdown.
func NewStorageExporter(store storage.SpanStore, logger *slog.Logger) *StorageExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageExporter{store: store, logger: logger}
}

// ExportSpans stores a batch of spans. A span that cannot be stored is
// logged and skipped so it does not block the rest of the batch.
func (e *StorageExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		if err := e.store.StoreSpan(ctx, ConvertSpan(s)); err != nil {
			e.logger.Warn("failed to store span",
				"trace_id", s.SpanContext().TraceID().String(),
				"span", s.Name(),
				"error", err)
		}
	}
	return nil
}

// Shutdown closes the underlying store.
func (e *StorageExporter) Shutdown(ctx context.Context) error {
	return e.store.Close()
}

var _ sdktrace.SpanExporter = (*StorageExporter)(nil)

// ConvertSpan converts a finished SDK span to its stored form.
func ConvertSpan(s sdktrace.ReadOnlySpan) *storage.Span {
	span := &storage.Span{
		TraceID:   s.SpanContext().TraceID().String(),
		SpanID:    s.SpanContext().SpanID().String(),
		Name:      s.Name(),
		Kind:      convertKind(s.SpanKind()),
		StartTime: s.StartTime(),
		EndTime:   s.EndTime(),
	}

	if s.Parent().IsValid() {
		span.ParentID = s.Parent().SpanID().String()
	}

	status := s.Status()
	switch status.Code {
	case codes.Ok:
		span.Status.Code = storage.StatusCodeOK
	case codes.Error:
		span.Status.Code = storage.StatusCodeError
		span.Status.Message = status.Description
	default:
		span.Status.Code = storage.StatusCodeUnset
	}

	if attrs := s.Attributes(); len(attrs) > 0 {
		span.Attributes = make(map[string]any, len(attrs))
		for _, kv := range attrs {
			span.Attributes[string(kv.Key)] = kv.Value.AsInterface()
		}
	}

	for _, ev := range s.Events() {
		event := storage.Event{Name: ev.Name, Timestamp: ev.Time}
		if len(ev.Attributes) > 0 {
			event.Attributes = make(map[string]any, len(ev.Attributes))
			for _, kv := range ev.Attributes {
				event.Attributes[string(kv.Key)] = kv.Value.AsInterface()
			}
		}
		span.Events = append(span.Events, event)
	}

	return span
}

func convertKind(k trace.SpanKind) storage.SpanKind {
	switch k {
	case trace.SpanKindServer:
		return storage.SpanKindServer
	case trace.SpanKindClient:
		return storage.SpanKindClient
	case trace.SpanKindProducer:
		return storage.SpanKindProducer
	case trace.SpanKindConsumer:
		return storage.SpanKindConsumer
	default:
		return storage.SpanKindInternal
	}
}
