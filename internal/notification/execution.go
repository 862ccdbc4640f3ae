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

package notification

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type spanKind int

const (
	kindPipeline spanKind = iota
	kindProcessor
)

func (k spanKind) String() string {
	if k == kindPipeline {
		return "pipeline"
	}
	return "processor"
}

// activeSpan is an open span on an execution's stack.
type activeSpan struct {
	span  trace.Span
	ctx   context.Context
	kind  spanKind
	name  string
	key   string
	start time.Time
}

// executionContext is the span stack of one correlation id. mu serializes
// all operations for the id; closed is set once the context has been
// evicted from the handler's map. tracer is taken from the connection when
// the root pipeline opens and serves every later span of the execution.
type executionContext struct {
	mu     sync.Mutex
	id     string
	stack  []*activeSpan
	tracer trace.Tracer
	closed bool
}

func newExecutionContext(id string) *executionContext {
	return &executionContext{id: id}
}

func (e *executionContext) empty() bool {
	return len(e.stack) == 0
}

func (e *executionContext) top() *activeSpan {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

func (e *executionContext) push(s *activeSpan) {
	e.stack = append(e.stack, s)
}

// find returns the index of the topmost entry satisfying match, or -1.
func (e *executionContext) find(match func(*activeSpan) bool) int {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if match(e.stack[i]) {
			return i
		}
	}
	return -1
}

// unwind removes the entry at index i and everything above it. It returns
// the entries above i, topmost first, followed by the entry itself.
func (e *executionContext) unwind(i int) (above []*activeSpan, target *activeSpan) {
	for j := len(e.stack) - 1; j > i; j-- {
		above = append(above, e.stack[j])
	}
	target = e.stack[i]
	for j := i; j < len(e.stack); j++ {
		e.stack[j] = nil
	}
	e.stack = e.stack[:i]
	return above, target
}
