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

package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/flowtrace/internal/tracing"
)

// OTel SDK environment variables read by flowtrace. Traces-specific
// variables win over the generic ones.
const (
	envServiceName        = "OTEL_SERVICE_NAME"
	envResourceAttributes = "OTEL_RESOURCE_ATTRIBUTES"

	envEndpoint          = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envTracesEndpoint    = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	envHeaders           = "OTEL_EXPORTER_OTLP_HEADERS"
	envTracesHeaders     = "OTEL_EXPORTER_OTLP_TRACES_HEADERS"
	envProtocol          = "OTEL_EXPORTER_OTLP_PROTOCOL"
	envTracesProtocol    = "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"
	envTimeout           = "OTEL_EXPORTER_OTLP_TIMEOUT"
	envTracesTimeout     = "OTEL_EXPORTER_OTLP_TRACES_TIMEOUT"
	envCompression       = "OTEL_EXPORTER_OTLP_COMPRESSION"
	envTracesCompression = "OTEL_EXPORTER_OTLP_TRACES_COMPRESSION"
)

// applyOTelEnv fills fields of cfg that are still empty from the OTEL_*
// variables. Explicit configuration always wins.
func applyOTelEnv(cfg *tracing.Config, getenv func(string) string) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}

	if cfg.Resource.ServiceName == "" {
		cfg.Resource.ServiceName = first(envServiceName)
	}
	if attrs := parseKeyValues(first(envResourceAttributes)); len(attrs) > 0 {
		if cfg.Resource.Attributes == nil {
			cfg.Resource.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			if _, ok := cfg.Resource.Attributes[k]; !ok {
				cfg.Resource.Attributes[k] = v
			}
		}
	}

	exp := &cfg.TraceExporter
	if exp.Protocol == "" {
		exp.Protocol = first(envTracesProtocol, envProtocol)
	}
	if exp.Endpoint == "" {
		exp.Endpoint = first(envTracesEndpoint, envEndpoint)
	}
	if headers := parseKeyValues(first(envTracesHeaders, envHeaders)); len(headers) > 0 {
		if exp.Headers == nil {
			exp.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			if _, ok := exp.Headers[k]; !ok {
				exp.Headers[k] = v
			}
		}
	}
	if exp.Timeout == 0 {
		exp.Timeout = parseTimeout(first(envTracesTimeout, envTimeout))
	}
	if exp.Compression == "" {
		exp.Compression = strings.ToLower(first(envTracesCompression, envCompression))
	}
}

// parseKeyValues parses the "k1=v1,k2=v2" format shared by
// OTEL_RESOURCE_ATTRIBUTES and OTEL_EXPORTER_OTLP_HEADERS. Values are
// percent-decoded; malformed entries are skipped.
func parseKeyValues(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if decoded, err := url.PathUnescape(strings.TrimSpace(v)); err == nil {
			v = decoded
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// parseTimeout accepts the OTel form (integer milliseconds) and Go
// durations. Invalid values yield zero, leaving the default in place.
func parseTimeout(s string) time.Duration {
	if s == "" {
		return 0
	}
	if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 0
}
