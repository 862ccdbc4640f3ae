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

// Package replay publishes recorded host notifications through a
// Dispatcher. It drives the agent without a host runtime, for trying out
// configurations and reproducing span trees from captured event logs.
package replay

import (
	"fmt"
	"os"
	"time"

	"github.com/tombee/flowtrace/internal/notification"
	"gopkg.in/yaml.v3"
)

// Event kinds.
const (
	KindPipeline  = "pipeline"
	KindProcessor = "processor"
)

// Event is one recorded notification.
type Event struct {
	Kind          string              `yaml:"kind" json:"kind"`
	Action        notification.Action `yaml:"action" json:"action"`
	CorrelationID string              `yaml:"correlation_id" json:"correlation_id"`
	PipelineName  string              `yaml:"pipeline" json:"pipeline"`
	ProcessorID   string              `yaml:"processor,omitempty" json:"processor,omitempty"`
	Location      string              `yaml:"location,omitempty" json:"location,omitempty"`
	DocName       string              `yaml:"doc_name,omitempty" json:"doc_name,omitempty"`

	// Timestamp is the absolute event time. When unset, Offset is added
	// to the replay start time.
	Timestamp time.Time     `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Offset    time.Duration `yaml:"offset,omitempty" json:"offset,omitempty"`

	Attributes map[string]any          `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Exception  *notification.Exception `yaml:"exception,omitempty" json:"exception,omitempty"`
}

// file is the document form: a top-level "events" list.
type file struct {
	Events []Event `yaml:"events"`
}

// Load reads events from a YAML or JSON file.
func Load(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	events, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// Parse decodes events. The input is either a list of events or a document
// with an "events" key. JSON input is accepted as YAML.
func Parse(data []byte) ([]Event, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var events []Event
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&events); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
	case yaml.MappingNode:
		var f file
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
		events = f.Events
	default:
		return nil, fmt.Errorf("events must be a list or a document with an events key")
	}

	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return events, nil
}

// Validate checks that the event can be turned into a notification.
// Unknown actions and missing correlation ids are allowed: the agent is
// expected to tolerate them.
func (e Event) Validate() error {
	switch e.Kind {
	case KindPipeline:
	case KindProcessor:
		if e.ProcessorID == "" && e.Location == "" {
			return fmt.Errorf("processor event needs processor or location")
		}
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", KindPipeline, KindProcessor, e.Kind)
	}
	return nil
}

// Notification converts the event to the host notification it records.
// base anchors Offset; a zero base leaves unset timestamps zero.
func (e Event) Notification(base time.Time) any {
	ts := e.Timestamp
	if ts.IsZero() && !base.IsZero() {
		ts = base.Add(e.Offset)
	}

	if e.Kind == KindProcessor {
		return notification.ProcessorNotification{
			Action:        e.Action,
			CorrelationID: e.CorrelationID,
			PipelineName:  e.PipelineName,
			ProcessorID:   e.ProcessorID,
			Location:      e.Location,
			DocName:       e.DocName,
			Timestamp:     ts,
			Attributes:    e.Attributes,
			Exception:     e.Exception,
		}
	}
	return notification.PipelineNotification{
		Action:        e.Action,
		CorrelationID: e.CorrelationID,
		PipelineName:  e.PipelineName,
		Timestamp:     ts,
		Attributes:    e.Attributes,
		Exception:     e.Exception,
	}
}
