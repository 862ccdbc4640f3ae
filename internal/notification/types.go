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
	"time"
)

// Action discriminates start from end notifications.
type Action string

const (
	// ActionStart marks the beginning of a pipeline or processor.
	ActionStart Action = "start"

	// ActionComplete marks the end of a pipeline or processor, successful
	// or not.
	ActionComplete Action = "complete"
)

// Exception is the error payload the host attaches to a failed end
// notification.
type Exception struct {
	// Type is the host's error classification (e.g. "HTTP:TIMEOUT").
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Message is the human-readable description.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Detail carries extra diagnostic text such as a host stack trace.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`

	// Cause is the underlying Go error when the host has one.
	Cause error `json:"-" yaml:"-"`
}

// Error implements the error interface.
func (e *Exception) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Type != "":
		return e.Type
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return "unknown error"
	}
}

// Unwrap returns the underlying cause.
func (e *Exception) Unwrap() error {
	return e.Cause
}

// PipelineNotification is the host's pipeline lifecycle notification.
type PipelineNotification struct {
	Action        Action         `json:"action" yaml:"action"`
	CorrelationID string         `json:"correlation_id" yaml:"correlation_id"`
	PipelineName  string         `json:"pipeline" yaml:"pipeline"`
	Timestamp     time.Time      `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Exception     *Exception     `json:"exception,omitempty" yaml:"exception,omitempty"`
}

// ProcessorNotification is the host's processor lifecycle notification.
type ProcessorNotification struct {
	Action        Action `json:"action" yaml:"action"`
	CorrelationID string `json:"correlation_id" yaml:"correlation_id"`
	PipelineName  string `json:"pipeline" yaml:"pipeline"`

	// ProcessorID identifies the processor type, e.g. "http:request".
	ProcessorID string `json:"processor" yaml:"processor"`

	// Location identifies the processor instance within the flow,
	// e.g. "order-flow/processors/2".
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// DocName is the user-facing label of the processor.
	DocName string `json:"doc_name,omitempty" yaml:"doc_name,omitempty"`

	Timestamp  time.Time      `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Exception  *Exception     `json:"exception,omitempty" yaml:"exception,omitempty"`
}

// Listener is anything a Registry accepts. Hosts deliver notifications to
// listeners implementing PipelineNotificationListener and/or
// ProcessorNotificationListener.
type Listener any

// PipelineNotificationListener receives pipeline notifications.
type PipelineNotificationListener interface {
	OnPipelineNotification(PipelineNotification)
}

// ProcessorNotificationListener receives processor notifications.
type ProcessorNotificationListener interface {
	OnProcessorNotification(ProcessorNotification)
}

// Registry is the host's listener registration API.
type Registry interface {
	RegisterListener(Listener) error
}

// PipelineEvent is the handler's view of a pipeline notification.
type PipelineEvent struct {
	CorrelationID string
	PipelineName  string
	Timestamp     time.Time
	Attributes    map[string]any

	// Err is the outcome of an end event; nil means success.
	Err error
}

// ProcessorEvent is the handler's view of a processor notification.
type ProcessorEvent struct {
	CorrelationID string
	PipelineName  string
	ProcessorID   string
	Location      string
	DocName       string
	Timestamp     time.Time
	Attributes    map[string]any

	// Err is the outcome of an end event; nil means success.
	Err error
}

// matchKey identifies the processor instance an end event closes.
func (e ProcessorEvent) matchKey() string {
	if e.Location != "" {
		return e.Location
	}
	return e.ProcessorID
}

// spanName is the processor span name.
func (e ProcessorEvent) spanName() string {
	switch {
	case e.ProcessorID != "":
		return e.ProcessorID
	case e.DocName != "":
		return e.DocName
	case e.Location != "":
		return e.Location
	default:
		return "processor"
	}
}
