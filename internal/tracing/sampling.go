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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewSampler returns the head sampler for the configuration.
//
// The decision is made once per trace, on the root pipeline span, and
// inherited by every descendant so an execution is kept or dropped whole.
// Disabled sampling or a rate at or above 1 records everything; a rate at
// or below 0 records nothing.
func NewSampler(cfg SamplingConfig) sdktrace.Sampler {
	var root sdktrace.Sampler
	rate := cfg.Rate
	switch {
	case !cfg.Enabled || rate >= 1.0:
		root = sdktrace.AlwaysSample()
	case rate <= 0.0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}
