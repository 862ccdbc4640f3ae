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

package storage

import "time"

// SpanKind mirrors the OpenTelemetry span kinds in a storage-friendly form.
type SpanKind string

// Span kinds.
const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// StatusCode is the final status of a span.
type StatusCode int

// Status codes, numerically aligned with go.opentelemetry.io/otel/codes.
const (
	StatusCodeUnset StatusCode = 0
	StatusCodeError StatusCode = 1
	StatusCodeOK    StatusCode = 2
)

// String returns the lowercase status name.
func (c StatusCode) String() string {
	switch c {
	case StatusCodeOK:
		return "ok"
	case StatusCodeError:
		return "error"
	default:
		return "unset"
	}
}

// Status holds a span status code and its description.
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// Span is a finished span as persisted in the local store.
type Span struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Kind       SpanKind       `json:"kind"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	Status     Status         `json:"status"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []Event        `json:"events,omitempty"`
}

// Duration returns the span duration, or zero for spans that never ended.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Event is a timestamped annotation on a span, such as a recorded exception.
type Event struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// TraceSummary describes one stored trace.
type TraceSummary struct {
	TraceID    string        `json:"trace_id"`
	RootSpanID string        `json:"root_span_id,omitempty"`
	Name       string        `json:"name"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	Status     StatusCode    `json:"status"`
	SpanCount  int           `json:"span_count"`
	ErrorCount int           `json:"error_count"`
}
