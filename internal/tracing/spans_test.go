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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SamplingConfig
		sample bool
	}{
		{"disabled records everything", SamplingConfig{Enabled: false, Rate: 0}, true},
		{"rate one", SamplingConfig{Enabled: true, Rate: 1}, true},
		{"rate zero", SamplingConfig{Enabled: true, Rate: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(
				sdktrace.WithSampler(NewSampler(tt.cfg)),
				sdktrace.WithSyncer(exporter),
			)
			defer tp.Shutdown(context.Background())

			_, span := tp.Tracer("test").Start(context.Background(), "root")
			span.End()

			assert.Equal(t, tt.sample, len(exporter.GetSpans()) == 1)
		})
	}
}

func TestNewSampler_ChildrenFollowRoot(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(NewSampler(SamplingConfig{Enabled: true, Rate: 0.5})),
		sdktrace.WithSyncer(exporter),
	)
	defer tp.Shutdown(context.Background())
	tracer := tp.Tracer("test")

	for i := 0; i < 50; i++ {
		ctx, root := tracer.Start(context.Background(), "root")
		_, child := tracer.Start(ctx, "child")
		assert.Equal(t, root.SpanContext().IsSampled(), child.SpanContext().IsSampled())
		child.End()
		root.End()
	}
	assert.Zero(t, len(exporter.GetSpans())%2, "roots and children are kept or dropped together")
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestAttributes(t *testing.T) {
	attrs := Attributes(map[string]any{
		"b.string":   "v",
		"a.int":      42,
		"c.bool":     true,
		"d.float":    1.5,
		"e.duration": 2 * time.Second,
		"f.strings":  []string{"x", "y"},
		"g.any":      []any{1, "two"},
		"h.stringer": stringer{},
		"i.error":    errors.New("boom"),
		"j.nil":      nil,
		"k.struct":   struct{ A int }{A: 1},
		"":           "dropped",
	})

	require.Len(t, attrs, 11)
	assert.Equal(t, attribute.Key("a.int"), attrs[0].Key, "sorted by key")

	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range attrs {
		got[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(42), got["a.int"].AsInt64())
	assert.Equal(t, "v", got["b.string"].AsString())
	assert.True(t, got["c.bool"].AsBool())
	assert.Equal(t, 1.5, got["d.float"].AsFloat64())
	assert.Equal(t, "2s", got["e.duration"].AsString())
	assert.Equal(t, []string{"x", "y"}, got["f.strings"].AsStringSlice())
	assert.Equal(t, []string{"1", "two"}, got["g.any"].AsStringSlice())
	assert.Equal(t, "stringer", got["h.stringer"].AsString())
	assert.Equal(t, "boom", got["i.error"].AsString())
	assert.Equal(t, "", got["j.nil"].AsString())
	assert.Equal(t, "{1}", got["k.struct"].AsString())

	assert.Nil(t, Attributes(nil))
}

func TestConvertSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	tracer := tp.Tracer("test")

	ctx, root := tracer.Start(context.Background(), "order-flow", trace.WithSpanKind(trace.SpanKindServer))
	_, child := tracer.Start(ctx, "http:request", trace.WithAttributes(AttrProcessorID.String("http:request")))
	child.RecordError(errors.New("timeout"))
	child.SetStatus(codes.Error, "timeout")
	child.End()
	root.SetStatus(codes.Ok, "")
	root.End()

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 2)

	c := ConvertSpan(spans[0])
	assert.Equal(t, "http:request", c.Name)
	assert.Equal(t, root.SpanContext().SpanID().String(), c.ParentID)
	assert.Equal(t, "internal", string(c.Kind))
	assert.Equal(t, "error", c.Status.Code.String())
	assert.Equal(t, "timeout", c.Status.Message)
	assert.Equal(t, "http:request", c.Attributes[string(AttrProcessorID)])
	require.Len(t, c.Events, 1)
	assert.Equal(t, "exception", c.Events[0].Name)

	r := ConvertSpan(spans[1])
	assert.Empty(t, r.ParentID)
	assert.Equal(t, "server", string(r.Kind))
	assert.Equal(t, "ok", r.Status.Code.String())
	assert.Equal(t, root.SpanContext().TraceID().String(), r.TraceID)
}
