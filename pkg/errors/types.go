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

package errors

import (
	"fmt"
)

// ValidationError describes a single invalid input value.
type ValidationError struct {
	// Field identifies which input failed validation (e.g. "trace_exporter.endpoint").
	Field string

	// Message is the human-readable error description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConfigError represents configuration problems: unreadable files,
// unparseable YAML or settings that fail validation.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g. "tracing.trace_exporter").
	Key string

	// Reason explains what's wrong with the configuration.
	Reason string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ProtocolError describes a lifecycle notification that does not fit the
// span state of its execution, such as an end without a start.
// It is logged and counted, never returned to the host runtime.
type ProtocolError struct {
	// Reason is a short machine-friendly label (e.g. "orphan_processor_end").
	Reason string

	// CorrelationID is the execution the notification belonged to.
	CorrelationID string

	// Detail carries free-form context such as the processor location.
	Detail string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol violation %s for execution %q", e.Reason, e.CorrelationID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
