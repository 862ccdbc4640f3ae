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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flowlog "github.com/tombee/flowtrace/internal/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConnection(t *testing.T) (*Connection, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewConnectionFromProvider(tp), exporter
}

func TestLazyConnection_ConcurrentFirstCallersShareOneBuild(t *testing.T) {
	lazy := NewLazyConnection(flowlog.Discard())
	conn, _ := testConnection(t)

	var builds atomic.Int32
	build := func() (*Connection, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond)
		return conn, nil
	}

	const callers = 64
	results := make([]*Connection, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = lazy.Get(build)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for i, got := range results {
		assert.Same(t, conn, got, "caller %d", i)
	}
	assert.Equal(t, StateReady, lazy.State())
	assert.NoError(t, lazy.Err())

	built, ok := lazy.Built()
	assert.True(t, ok)
	assert.Same(t, conn, built)
}

func TestLazyConnection_FailureIsTerminal(t *testing.T) {
	lazy := NewLazyConnection(flowlog.Discard())
	buildErr := errors.New("collector unreachable")

	conn := lazy.Get(func() (*Connection, error) { return nil, buildErr })
	assert.Same(t, NoopConnection(), conn)
	assert.False(t, conn.Enabled())
	assert.Equal(t, StateFailed, lazy.State())
	assert.ErrorIs(t, lazy.Err(), buildErr)

	called := false
	again := lazy.Get(func() (*Connection, error) {
		called = true
		return NoopConnection(), nil
	})
	assert.False(t, called, "no retry after failure")
	assert.Same(t, NoopConnection(), again)

	_, ok := lazy.Built()
	assert.False(t, ok)
}

func TestLazyConnection_PanicAndNilBuilders(t *testing.T) {
	tests := []struct {
		name    string
		build   BuildFunc
		message string
	}{
		{"panic", func() (*Connection, error) { panic("boom") }, "panicked"},
		{"nil result", func() (*Connection, error) { return nil, nil }, "returned nil"},
		{"nil builder", nil, "no connection builder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lazy LazyConnection
			assert.Equal(t, StateAbsent, lazy.State())

			conn := lazy.Get(tt.build)
			assert.Same(t, NoopConnection(), conn)
			assert.Equal(t, StateFailed, lazy.State())
			require.Error(t, lazy.Err())
			assert.Contains(t, lazy.Err().Error(), tt.message)
		})
	}
}

func TestLazyConnection_Source(t *testing.T) {
	var lazy LazyConnection
	conn, _ := testConnection(t)

	var builds int
	src := lazy.Source(func() (*Connection, error) {
		builds++
		return conn, nil
	})

	_, ok := lazy.Built()
	assert.False(t, ok, "Source does not build eagerly")

	assert.Same(t, conn, src.Connection())
	assert.Same(t, conn, src.Connection())
	assert.Equal(t, 1, builds)
}

func TestNoopConnection(t *testing.T) {
	conn := NoopConnection()
	assert.False(t, conn.Enabled())

	_, span := conn.Tracer().Start(context.Background(), "ignored")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, conn.ForceFlush(context.Background()))
	assert.NoError(t, conn.Shutdown(context.Background()))
}

func TestConnection_RecordsSpans(t *testing.T) {
	conn, exporter := testConnection(t)
	assert.True(t, conn.Enabled())

	_, span := conn.Tracer().Start(context.Background(), "order-flow")
	span.End()

	require.NoError(t, conn.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "order-flow", spans[0].Name)
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope.Name)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "absent", StateAbsent.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
