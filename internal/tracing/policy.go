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
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Decision is the outcome of evaluating the span policy for one event.
type Decision int

const (
	// Suppress means no span is created or closed for the event.
	Suppress Decision = iota
	// Emit means the event produces span work.
	Emit
)

// String returns "emit" or "suppress".
func (d Decision) String() string {
	if d == Emit {
		return "emit"
	}
	return "suppress"
}

// SpanPolicy decides which notifications produce spans. It is built once
// from configuration and is safe for concurrent use since it is never
// mutated.
type SpanPolicy struct {
	disabled       bool
	processorSpans bool
	excluded       map[string]struct{}
	patterns       []string
}

// NewSpanPolicy builds the policy for cfg. Ignore entries containing glob
// meta characters are matched with doublestar; the rest are exact ids.
func NewSpanPolicy(cfg Config) *SpanPolicy {
	p := &SpanPolicy{
		disabled:       cfg.DisableAllTracing,
		processorSpans: cfg.SpanGeneration.GenerateProcessorSpans,
		excluded:       make(map[string]struct{}, len(cfg.SpanGeneration.IgnoredProcessors)),
	}
	for _, id := range cfg.SpanGeneration.IgnoredProcessors {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if strings.ContainsAny(id, "*?[{\\") {
			p.patterns = append(p.patterns, id)
			continue
		}
		p.excluded[id] = struct{}{}
	}
	return p
}

// TracingEnabled reports whether any span may be produced at all.
func (p *SpanPolicy) TracingEnabled() bool {
	return p != nil && !p.disabled
}

// Evaluate returns the decision for a processor event.
func (p *SpanPolicy) Evaluate(processorID string) Decision {
	if p == nil {
		return Suppress
	}
	if p.disabled || !p.processorSpans {
		return Suppress
	}
	if _, ok := p.excluded[processorID]; ok {
		return Suppress
	}
	for _, pattern := range p.patterns {
		// Patterns were validated at config load; a bad one simply never matches.
		if ok, _ := doublestar.Match(pattern, processorID); ok {
			return Suppress
		}
	}
	return Emit
}

// EvaluateProcessor is the stateless form of SpanPolicy.Evaluate.
func EvaluateProcessor(disabled, processorSpans bool, excluded []string, processorID string) Decision {
	return NewSpanPolicy(Config{
		DisableAllTracing: disabled,
		SpanGeneration: SpanGenerationConfig{
			GenerateProcessorSpans: processorSpans,
			IgnoredProcessors:      excluded,
		},
	}).Evaluate(processorID)
}
