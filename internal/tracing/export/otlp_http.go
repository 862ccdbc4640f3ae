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

package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
)

// DefaultTracesPath is the OTLP/HTTP traces path.
const DefaultTracesPath = "/v1/traces"

// OTLPHTTPConfig holds configuration for the OTLP HTTP exporter.
type OTLPHTTPConfig struct {
	// Endpoint is host:port or a full URL (e.g. "https://api.honeycomb.io/v1/traces").
	Endpoint string

	// URLPath is the URL path for traces (default: "/v1/traces").
	// Ignored when Endpoint is a URL that carries its own path.
	URLPath string

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

// NewOTLPHTTPExporter creates a new OTLP HTTP/protobuf trace exporter.
func NewOTLPHTTPExporter(ctx context.Context, cfg OTLPHTTPConfig) (trace.SpanExporter, error) {
	var opts []otlptracehttp.Option

	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if u, err := url.Parse(cfg.Endpoint); err == nil && strings.Trim(u.Path, "/") == "" {
			// A bare base URL gets the standard traces path.
			path := cfg.URLPath
			if path == "" {
				path = DefaultTracesPath
			}
			opts = append(opts, otlptracehttp.WithURLPath(path))
		}
	} else {
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.URLPath != "" {
			opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
		}
	}

	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else if cfg.TLSConfig != nil {
		if err := ValidateTLSConfig(cfg.TLSConfig); err != nil {
			return nil, fmt.Errorf("invalid TLS config: %w", err)
		}
		opts = append(opts, otlptracehttp.WithTLSClientConfig(cfg.TLSConfig))
	} else if !strings.HasPrefix(cfg.Endpoint, "http://") {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
	}
	if cfg.Gzip {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	} else {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.NoCompression))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}

	return exporter, nil
}
