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
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Span attribute keys set by the notification handler.
const (
	AttrCorrelationID     = attribute.Key("flowtrace.correlation_id")
	AttrPipelineName      = attribute.Key("flowtrace.pipeline.name")
	AttrPipelineNested    = attribute.Key("flowtrace.pipeline.nested")
	AttrProcessorID       = attribute.Key("flowtrace.processor.id")
	AttrProcessorLocation = attribute.Key("flowtrace.processor.location")
	AttrProcessorDocName  = attribute.Key("flowtrace.processor.doc_name")
	AttrForceClosed       = attribute.Key("flowtrace.force_closed")
	AttrExceptionType     = semconv.ExceptionTypeKey
)

// ForceClosedMessage is the status description of spans closed because
// their end notification never arrived.
const ForceClosedMessage = "span force-closed: missing end event"

// Attributes converts host-supplied notification attributes into span
// attributes, sorted by key. Values with no native attribute type are
// rendered with fmt.
func Attributes(m map[string]any) []attribute.KeyValue {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, Attribute(k, m[k]))
	}
	return attrs
}

// Attribute converts one key/value pair.
func Attribute(key string, v any) attribute.KeyValue {
	k := attribute.Key(key)
	switch val := v.(type) {
	case nil:
		return k.String("")
	case string:
		return k.String(val)
	case bool:
		return k.Bool(val)
	case int:
		return k.Int(val)
	case int32:
		return k.Int64(int64(val))
	case int64:
		return k.Int64(val)
	case uint32:
		return k.Int64(int64(val))
	case float32:
		return k.Float64(float64(val))
	case float64:
		return k.Float64(val)
	case time.Duration:
		return k.String(val.String())
	case time.Time:
		return k.String(val.UTC().Format(time.RFC3339Nano))
	case []string:
		return k.StringSlice(val)
	case []bool:
		return k.BoolSlice(val)
	case []int:
		return k.IntSlice(val)
	case []int64:
		return k.Int64Slice(val)
	case []float64:
		return k.Float64Slice(val)
	case []any:
		s := make([]string, len(val))
		for i, e := range val {
			s[i] = fmt.Sprint(e)
		}
		return k.StringSlice(s)
	case fmt.Stringer:
		return k.String(val.String())
	case error:
		return k.String(val.Error())
	default:
		return k.String(fmt.Sprint(val))
	}
}
