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

// EventHandler is the set of operations listeners dispatch to.
// *Handler implements it.
type EventHandler interface {
	OnPipelineStart(PipelineEvent)
	OnPipelineEnd(PipelineEvent)
	OnProcessorStart(ProcessorEvent)
	OnProcessorEnd(ProcessorEvent)
	RecordUnknownAction(correlationID string, action Action)
}

// PipelineListener adapts pipeline notifications to handler operations.
type PipelineListener struct {
	handler EventHandler
}

// NewPipelineListener creates a pipeline listener.
func NewPipelineListener(h EventHandler) *PipelineListener {
	return &PipelineListener{handler: h}
}

// OnPipelineNotification implements PipelineNotificationListener.
func (l *PipelineListener) OnPipelineNotification(n PipelineNotification) {
	ev := PipelineEvent{
		CorrelationID: n.CorrelationID,
		PipelineName:  n.PipelineName,
		Timestamp:     n.Timestamp,
		Attributes:    n.Attributes,
	}
	if n.Exception != nil {
		ev.Err = n.Exception
	}

	switch n.Action {
	case ActionStart:
		l.handler.OnPipelineStart(ev)
	case ActionComplete:
		l.handler.OnPipelineEnd(ev)
	default:
		l.handler.RecordUnknownAction(n.CorrelationID, n.Action)
	}
}

// ProcessorListener adapts processor notifications to handler operations.
type ProcessorListener struct {
	handler EventHandler
}

// NewProcessorListener creates a processor listener.
func NewProcessorListener(h EventHandler) *ProcessorListener {
	return &ProcessorListener{handler: h}
}

// OnProcessorNotification implements ProcessorNotificationListener.
func (l *ProcessorListener) OnProcessorNotification(n ProcessorNotification) {
	ev := ProcessorEvent{
		CorrelationID: n.CorrelationID,
		PipelineName:  n.PipelineName,
		ProcessorID:   n.ProcessorID,
		Location:      n.Location,
		DocName:       n.DocName,
		Timestamp:     n.Timestamp,
		Attributes:    n.Attributes,
	}
	if n.Exception != nil {
		ev.Err = n.Exception
	}

	switch n.Action {
	case ActionStart:
		l.handler.OnProcessorStart(ev)
	case ActionComplete:
		l.handler.OnProcessorEnd(ev)
	default:
		l.handler.RecordUnknownAction(n.CorrelationID, n.Action)
	}
}

var (
	_ PipelineNotificationListener  = (*PipelineListener)(nil)
	_ ProcessorNotificationListener = (*ProcessorListener)(nil)
	_ EventHandler                  = (*Handler)(nil)
)
