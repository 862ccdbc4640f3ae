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
	"sync"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer scope used for all flowtrace spans.
const InstrumentationName = "github.com/tombee/flowtrace"

// Connection is a working handle to the telemetry client.
type Connection struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

var noopConnection = &Connection{
	tracer: noop.NewTracerProvider().Tracer(InstrumentationName),
}

// NoopConnection returns the shared connection used when tracing is
// unavailable. Its tracer creates non-recording spans.
func NoopConnection() *Connection {
	return noopConnection
}

// NewConnectionFromProvider wraps an existing SDK provider.
func NewConnectionFromProvider(tp *sdktrace.TracerProvider) *Connection {
	return &Connection{
		provider: tp,
		tracer:   tp.Tracer(InstrumentationName),
		enabled:  true,
	}
}

// Tracer returns the tracer spans are started on.
func (c *Connection) Tracer() trace.Tracer {
	return c.tracer
}

// Enabled reports whether spans started on this connection are exported.
func (c *Connection) Enabled() bool {
	return c != nil && c.enabled
}

// ForceFlush exports all pending spans synchronously.
func (c *Connection) ForceFlush(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and releases exporter resources.
func (c *Connection) Shutdown(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Shutdown(ctx)
}

// BuildFunc constructs the connection. It is invoked at most once per
// LazyConnection.
type BuildFunc func() (*Connection, error)

// State is the lifecycle state of a LazyConnection.
type State int32

const (
	StateAbsent State = iota
	StateInitializing
	StateReady
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LazyConnection builds a Connection on first use, exactly once.
//
// Concurrent first callers block until the build finishes and then observe
// the same instance. A failed build is terminal: the cause is kept in Err
// and every caller receives NoopConnection.
//
// The zero value is ready to use.
type LazyConnection struct {
	once   sync.Once
	state  atomic.Int32
	conn   *Connection
	err    error
	logger *slog.Logger
}

// NewLazyConnection returns a LazyConnection that logs its initialization
// outcome to logger.
func NewLazyConnection(logger *slog.Logger) *LazyConnection {
	return &LazyConnection{logger: logger}
}

// Get returns the connection, invoking build if this is the first call.
// build is ignored on every later call.
func (l *LazyConnection) Get(build BuildFunc) *Connection {
	switch State(l.state.Load()) {
	case StateReady, StateFailed:
		return l.conn
	}

	l.once.Do(func() {
		l.state.Store(int32(StateInitializing))
		conn, err := l.build(build)
		if err != nil {
			l.err = err
			l.conn = NoopConnection()
			l.state.Store(int32(StateFailed))
			if l.logger != nil {
				l.logger.Error("tracing initialization failed, tracing disabled for this process", "error", err)
			}
			return
		}
		l.conn = conn
		l.state.Store(int32(StateReady))
		if l.logger != nil {
			l.logger.Info("tracing initialized")
		}
	})
	return l.conn
}

// build runs fn, converting a panic or a nil result into an error so that
// a broken builder still leaves the connection in a terminal state.
func (l *LazyConnection) build(fn BuildFunc) (conn *Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			conn, err = nil, fmt.Errorf("connection builder panicked: %v", r)
		}
	}()
	if fn == nil {
		return nil, fmt.Errorf("no connection builder supplied")
	}
	conn, err = fn()
	if err == nil && conn == nil {
		err = fmt.Errorf("connection builder returned nil")
	}
	return conn, err
}

// State returns the current lifecycle state.
func (l *LazyConnection) State() State {
	return State(l.state.Load())
}

// Err returns the initialization error, if the build failed.
func (l *LazyConnection) Err() error {
	if l.State() != StateFailed {
		return nil
	}
	return l.err
}

// Built returns the connection if initialization already happened, without
// triggering it.
func (l *LazyConnection) Built() (*Connection, bool) {
	if l.State() != StateReady {
		return nil, false
	}
	return l.conn, true
}

// Source adapts the LazyConnection and a fixed builder to ConnectionSource.
func (l *LazyConnection) Source(build BuildFunc) ConnectionSource {
	return ConnectionSourceFunc(func() *Connection {
		return l.Get(build)
	})
}

// ConnectionSource supplies the connection to span producers.
type ConnectionSource interface {
	Connection() *Connection
}

// ConnectionSourceFunc adapts a function to ConnectionSource.
type ConnectionSourceFunc func() *Connection

// Connection implements ConnectionSource.
func (f ConnectionSourceFunc) Connection() *Connection {
	return f()
}

var processConnection LazyConnection

// GetConnection returns the process-wide connection, building it with
// build on first use.
func GetConnection(build BuildFunc) *Connection {
	return processConnection.Get(build)
}

// ProcessConnection returns the process-wide LazyConnection.
func ProcessConnection() *LazyConnection {
	return &processConnection
}
