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

// Package export builds the span exporters flowtrace can ship traces with.
package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// OTLPConfig holds configuration for the OTLP gRPC exporter.
type OTLPConfig struct {
	// Endpoint is the gRPC endpoint, either host:port or an http(s) URL.
	Endpoint string

	// Insecure disables TLS (for development only).
	Insecure bool

	// TLSConfig provides custom TLS configuration.
	TLSConfig *tls.Config

	// Headers contains custom headers to send with each request.
	Headers map[string]string

	// Timeout bounds each export call. Zero keeps the SDK default.
	Timeout time.Duration

	// Gzip enables gzip compression.
	Gzip bool
}

// NewOTLPExporter creates a new OTLP gRPC trace exporter. Options set here
// take precedence over OTEL_EXPORTER_OTLP_* environment variables.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (trace.SpanExporter, error) {
	var opts []otlptracegrpc.Option

	if strings.Contains(cfg.Endpoint, "://") {
		// WithEndpointURL derives plaintext vs TLS from the scheme.
		opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	} else if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else if cfg.TLSConfig != nil {
		if err := ValidateTLSConfig(cfg.TLSConfig); err != nil {
			return nil, fmt.Errorf("invalid TLS config: %w", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else if !strings.HasPrefix(cfg.Endpoint, "http://") {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	if cfg.Gzip {
		opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}

	return exporter, nil
}
