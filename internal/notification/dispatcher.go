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
	"fmt"
	"sync"
)

// Dispatcher is an in-process Registry. It delivers each notification
// synchronously, in registration order, to every listener that accepts its
// type. It stands in for the host runtime in tests and the replay tool.
type Dispatcher struct {
	mu                 sync.RWMutex
	pipelineListeners  []PipelineNotificationListener
	processorListeners []ProcessorNotificationListener
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// RegisterListener implements Registry. A listener implementing neither
// notification interface is rejected.
func (d *Dispatcher) RegisterListener(l Listener) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	accepted := false
	if pl, ok := l.(PipelineNotificationListener); ok {
		d.pipelineListeners = append(d.pipelineListeners, pl)
		accepted = true
	}
	if pl, ok := l.(ProcessorNotificationListener); ok {
		d.processorListeners = append(d.processorListeners, pl)
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("listener %T implements no notification interface", l)
	}
	return nil
}

// Publish delivers a notification by type. Values of any other type are
// ignored.
func (d *Dispatcher) Publish(n any) {
	switch v := n.(type) {
	case PipelineNotification:
		d.PublishPipeline(v)
	case *PipelineNotification:
		if v != nil {
			d.PublishPipeline(*v)
		}
	case ProcessorNotification:
		d.PublishProcessor(v)
	case *ProcessorNotification:
		if v != nil {
			d.PublishProcessor(*v)
		}
	}
}

// PublishPipeline delivers a pipeline notification.
func (d *Dispatcher) PublishPipeline(n PipelineNotification) {
	d.mu.RLock()
	listeners := make([]PipelineNotificationListener, len(d.pipelineListeners))
	copy(listeners, d.pipelineListeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		l.OnPipelineNotification(n)
	}
}

// PublishProcessor delivers a processor notification.
func (d *Dispatcher) PublishProcessor(n ProcessorNotification) {
	d.mu.RLock()
	listeners := make([]ProcessorNotificationListener, len(d.processorListeners))
	copy(listeners, d.processorListeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		l.OnProcessorNotification(n)
	}
}

// ListenerCount returns the number of registered pipeline and processor listeners.
func (d *Dispatcher) ListenerCount() (pipeline, processor int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pipelineListeners), len(d.processorListeners)
}

var _ Registry = (*Dispatcher)(nil)
