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
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	flowerrors "github.com/tombee/flowtrace/pkg/errors"
)

// Exporter protocols.
const (
	ProtocolGRPC         = "grpc"
	ProtocolHTTPProtobuf = "http/protobuf"
	ProtocolConsole      = "console"
	ProtocolNone         = "none"
)

// Exporter compression modes.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Config holds the complete tracing agent configuration. It is loaded once
// at startup and never mutated afterwards.
type Config struct {
	// DisableAllTracing turns the agent off. When set every other field is ignored.
	DisableAllTracing bool `yaml:"disable_all_tracing"`

	// Resource describes the entity producing telemetry.
	Resource ResourceConfig `yaml:"resource"`

	// TraceExporter configures the OTLP trace exporter.
	// Values set here override OTEL_EXPORTER_OTLP_* environment variables.
	TraceExporter ExporterConfig `yaml:"trace_exporter"`

	// SpanGeneration controls which processors produce spans.
	SpanGeneration SpanGenerationConfig `yaml:"span_generation"`

	// Sampling configures head sampling of executions.
	Sampling SamplingConfig `yaml:"sampling,omitempty"`

	// BatchSize is the maximum number of spans per export batch (default: 512).
	BatchSize int `yaml:"batch_size,omitempty"`

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`

	// Redaction configures sensitive data handling for notification attributes.
	Redaction RedactionConfig `yaml:"redaction,omitempty"`

	// Storage configures the optional local span store.
	Storage StorageConfig `yaml:"storage,omitempty"`
}

// ResourceConfig holds the attributes identifying the telemetry producer.
type ResourceConfig struct {
	// ServiceName identifies this application in traces.
	// Defaults to the host application name.
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"service_version,omitempty"`

	// ServiceNamespace groups related services.
	ServiceNamespace string `yaml:"service_namespace,omitempty"`

	// ServiceInstanceID uniquely identifies this process. Generated when empty.
	ServiceInstanceID string `yaml:"service_instance_id,omitempty"`

	// DeploymentEnvironment is e.g. "prod" or "staging".
	DeploymentEnvironment string `yaml:"deployment_environment,omitempty"`

	// Attributes are additional resource attributes.
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// ExporterConfig defines the OTLP export destination.
type ExporterConfig struct {
	// Protocol is "grpc", "http/protobuf", "console" or "none".
	Protocol string `yaml:"protocol,omitempty"`

	// Endpoint is the collector address: host:port for grpc, URL or host:port for http.
	Endpoint string `yaml:"endpoint,omitempty"`

	// URLPath overrides the HTTP traces path (default: /v1/traces).
	URLPath string `yaml:"url_path,omitempty"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout bounds a single export request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Compression is "gzip" or "none".
	Compression string `yaml:"compression,omitempty"`

	// TLS configures secure connections.
	TLS TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures TLS for exporters.
type TLSConfig struct {
	// Enabled activates TLS.
	Enabled bool `yaml:"enabled"`

	// VerifyCertificate controls certificate validation.
	VerifyCertificate bool `yaml:"verify_certificate"`

	// CACertPath is the path to the CA certificate.
	CACertPath string `yaml:"ca_cert_path,omitempty"`

	// ClientCertPath and ClientKeyPath enable mutual TLS.
	ClientCertPath string `yaml:"client_cert_path,omitempty"`
	ClientKeyPath  string `yaml:"client_key_path,omitempty"`
}

// SpanGenerationConfig controls processor span creation.
type SpanGenerationConfig struct {
	// GenerateProcessorSpans adds a child span per processor.
	GenerateProcessorSpans bool `yaml:"generate_processor_spans"`

	// IgnoredProcessors lists processor identifiers that never get a span.
	// Entries may be glob patterns such as "ee:*" or "*:logger".
	IgnoredProcessors []string `yaml:"ignored_processors,omitempty"`
}

// SamplingConfig controls which executions are recorded.
type SamplingConfig struct {
	// Enabled turns on ratio sampling. When false every execution is recorded.
	Enabled bool `yaml:"enabled"`

	// Rate is the fraction of executions to sample (0.0 - 1.0).
	Rate float64 `yaml:"rate"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	// Level is the redaction mode: "none", "standard", or "strict".
	Level string `yaml:"level,omitempty"`
}

// StorageConfig controls the local span store.
type StorageConfig struct {
	// Path is the SQLite database path. Empty disables the store.
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DisableAllTracing: false,
		TraceExporter: ExporterConfig{
			Protocol:    ProtocolGRPC,
			Endpoint:    "localhost:4317",
			Timeout:     10 * time.Second,
			Compression: CompressionGzip,
		},
		SpanGeneration: SpanGenerationConfig{
			GenerateProcessorSpans: true,
		},
		Sampling:      SamplingConfig{Enabled: false, Rate: 1.0},
		BatchSize:     512,
		BatchInterval: 5 * time.Second,
		Redaction:     RedactionConfig{Level: "standard"},
	}
}

// ApplyDefaults fills zero values with the values from DefaultConfig.
// Booleans are left alone since false is a meaningful setting.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.TraceExporter.Protocol == "" {
		c.TraceExporter.Protocol = d.TraceExporter.Protocol
	}
	if c.TraceExporter.Endpoint == "" && c.TraceExporter.Protocol == ProtocolGRPC {
		c.TraceExporter.Endpoint = d.TraceExporter.Endpoint
	}
	if c.TraceExporter.Endpoint == "" && c.TraceExporter.Protocol == ProtocolHTTPProtobuf {
		c.TraceExporter.Endpoint = "localhost:4318"
	}
	if c.TraceExporter.Timeout == 0 {
		c.TraceExporter.Timeout = d.TraceExporter.Timeout
	}
	if c.TraceExporter.Compression == "" {
		c.TraceExporter.Compression = d.TraceExporter.Compression
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchInterval == 0 {
		c.BatchInterval = d.BatchInterval
	}
	if c.Redaction.Level == "" {
		c.Redaction.Level = d.Redaction.Level
	}
}

// Validate checks the configuration. A disabled configuration is always valid.
func (c Config) Validate() error {
	if c.DisableAllTracing {
		return nil
	}

	var errs []error
	if err := c.TraceExporter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.SpanGeneration.Validate(); err != nil {
		errs = append(errs, err)
	}
	for k := range c.Resource.Attributes {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, &flowerrors.ValidationError{Field: "resource.attributes", Message: "attribute keys must not be empty"})
			break
		}
	}
	if c.Sampling.Enabled && (c.Sampling.Rate < 0 || c.Sampling.Rate > 1) {
		errs = append(errs, &flowerrors.ValidationError{
			Field:   "sampling.rate",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", c.Sampling.Rate),
		})
	}
	if c.BatchSize < 0 {
		errs = append(errs, &flowerrors.ValidationError{Field: "batch_size", Message: "must not be negative"})
	}
	switch c.Redaction.Level {
	case "", "none", "standard", "strict":
	default:
		errs = append(errs, &flowerrors.ValidationError{
			Field:   "redaction.level",
			Message: fmt.Sprintf("must be one of [none, standard, strict], got %q", c.Redaction.Level),
		})
	}

	if len(errs) > 0 {
		return &flowerrors.ConfigError{
			Key:    "tracing",
			Reason: "invalid tracing configuration",
			Cause:  flowerrors.Join(errs...),
		}
	}
	return nil
}

// Validate checks exporter transport parameters.
func (e ExporterConfig) Validate() error {
	switch e.Protocol {
	case ProtocolGRPC, ProtocolHTTPProtobuf:
		if err := validateEndpoint(e.Protocol, e.Endpoint); err != nil {
			return &flowerrors.ValidationError{Field: "trace_exporter.endpoint", Message: err.Error()}
		}
	case ProtocolConsole, ProtocolNone:
	default:
		return &flowerrors.ValidationError{
			Field:   "trace_exporter.protocol",
			Message: fmt.Sprintf("must be one of [grpc, http/protobuf, console, none], got %q", e.Protocol),
		}
	}

	switch e.Compression {
	case "", CompressionNone, CompressionGzip:
	default:
		return &flowerrors.ValidationError{
			Field:   "trace_exporter.compression",
			Message: fmt.Sprintf("must be one of [gzip, none], got %q", e.Compression),
		}
	}
	if e.Timeout < 0 {
		return &flowerrors.ValidationError{Field: "trace_exporter.timeout", Message: "must not be negative"}
	}
	for k := range e.Headers {
		if strings.TrimSpace(k) == "" {
			return &flowerrors.ValidationError{Field: "trace_exporter.headers", Message: "header names must not be empty"}
		}
	}
	if (e.TLS.ClientCertPath == "") != (e.TLS.ClientKeyPath == "") {
		return &flowerrors.ValidationError{Field: "trace_exporter.tls", Message: "client_cert_path and client_key_path must be set together"}
	}
	if e.TLS.Enabled && isInsecureScheme(e.Endpoint) {
		return &flowerrors.ValidationError{Field: "trace_exporter.tls", Message: "tls.enabled conflicts with an http:// endpoint"}
	}
	if e.TLS.CACertPath != "" && !e.TLS.Enabled {
		return &flowerrors.ValidationError{Field: "trace_exporter.tls.ca_cert_path", Message: "requires tls.enabled"}
	}
	return nil
}

// Validate checks that every ignore pattern is a well-formed glob.
func (s SpanGenerationConfig) Validate() error {
	for _, p := range s.IgnoredProcessors {
		if strings.TrimSpace(p) == "" {
			return &flowerrors.ValidationError{Field: "span_generation.ignored_processors", Message: "entries must not be empty"}
		}
		if !doublestar.ValidatePattern(p) {
			return &flowerrors.ValidationError{
				Field:   "span_generation.ignored_processors",
				Message: fmt.Sprintf("invalid pattern %q", p),
			}
		}
	}
	return nil
}

// validateEndpoint accepts host:port for both protocols and absolute
// http(s) URLs for the HTTP protocol.
func validateEndpoint(protocol, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("malformed endpoint %q: %w", endpoint, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme %q in endpoint %q", u.Scheme, endpoint)
		}
		if u.Host == "" {
			return fmt.Errorf("endpoint %q has no host", endpoint)
		}
		if protocol == ProtocolGRPC && u.Path != "" && u.Path != "/" {
			return fmt.Errorf("grpc endpoint %q must not contain a path", endpoint)
		}
		return nil
	}

	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return fmt.Errorf("malformed endpoint %q: %w", endpoint, err)
	}
	if host == "" || port == "" {
		return fmt.Errorf("endpoint %q must be host:port", endpoint)
	}
	return nil
}

// isInsecureScheme reports whether the endpoint explicitly asks for plaintext.
func isInsecureScheme(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://")
}
