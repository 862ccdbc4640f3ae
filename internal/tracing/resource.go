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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// HostInfo is metadata supplied by the host runtime at startup.
type HostInfo struct {
	// ApplicationName is the host application identifier. It becomes the
	// service name when the resource configuration does not set one.
	ApplicationName string

	// RuntimeName and RuntimeVersion describe the host runtime itself.
	RuntimeName    string
	RuntimeVersion string
}

// Resource attribute keys without a semconv helper.
const (
	AttrHostApplication = "flowtrace.host.application"
)

// NewResource builds the immutable resource describing this process from
// configuration plus host metadata. Explicit configuration wins over host
// metadata.
func NewResource(cfg ResourceConfig, host HostInfo) (*resource.Resource, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = host.ApplicationName
	}
	if serviceName == "" {
		serviceName = "flowtrace"
	}

	instanceID := cfg.ServiceInstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceInstanceID(instanceID),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.ServiceNamespace != "" {
		attrs = append(attrs, semconv.ServiceNamespace(cfg.ServiceNamespace))
	}
	if cfg.DeploymentEnvironment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.DeploymentEnvironment))
	}
	if host.ApplicationName != "" {
		attrs = append(attrs, attribute.String(AttrHostApplication, host.ApplicationName))
	}
	if host.RuntimeName != "" {
		attrs = append(attrs, semconv.ProcessRuntimeName(host.RuntimeName))
	}
	if host.RuntimeVersion != "" {
		attrs = append(attrs, semconv.ProcessRuntimeVersion(host.RuntimeVersion))
	}

	// Sorted for a stable attribute order; typed keys above take precedence.
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	custom := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		custom = append(custom, attribute.String(k, cfg.Attributes[k]))
	}

	// Empty schema URL avoids conflicts when merging with resource.Default().
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", custom...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	res, err = resource.Merge(res, resource.NewWithAttributes("", attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
