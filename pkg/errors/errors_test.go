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

package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flowerrors "github.com/tombee/flowtrace/pkg/errors"
)

func TestWrap(t *testing.T) {
	t.Run("returns nil for nil error", func(t *testing.T) {
		assert.NoError(t, flowerrors.Wrap(nil, "context"))
		assert.NoError(t, flowerrors.Wrapf(nil, "loading %s", "file"))
	})

	t.Run("preserves error chain", func(t *testing.T) {
		root := errors.New("root cause")
		wrapped := flowerrors.Wrapf(root, "loading %s", "config.yaml")

		require.Error(t, wrapped)
		assert.Equal(t, "loading config.yaml: root cause", wrapped.Error())
		assert.True(t, flowerrors.Is(wrapped, root))
	})
}

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *flowerrors.ConfigError
		want string
	}{
		{
			name: "with key",
			err:  &flowerrors.ConfigError{Key: "tracing.trace_exporter", Reason: "invalid endpoint"},
			want: "config error at tracing.trace_exporter: invalid endpoint",
		},
		{
			name: "without key",
			err:  &flowerrors.ConfigError{Reason: "file unreadable"},
			want: "config error: file unreadable",
		},
		{
			name: "with cause",
			err:  &flowerrors.ConfigError{Key: "file", Reason: "parse failed", Cause: errors.New("bad yaml")},
			want: "config error at file: parse failed: bad yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestConfigError_As(t *testing.T) {
	cause := errors.New("no such file")
	err := flowerrors.Wrap(&flowerrors.ConfigError{Key: "config_file", Reason: "failed to load", Cause: cause}, "startup")

	var cfgErr *flowerrors.ConfigError
	require.True(t, flowerrors.As(err, &cfgErr))
	assert.Equal(t, "config_file", cfgErr.Key)
	assert.True(t, errors.Is(err, cause))
}

func TestValidationError(t *testing.T) {
	err := &flowerrors.ValidationError{Field: "sampling.rate", Message: "must be between 0 and 1"}
	assert.Equal(t, "validation failed on sampling.rate: must be between 0 and 1", err.Error())

	err = &flowerrors.ValidationError{Message: "empty"}
	assert.Equal(t, "validation failed: empty", err.Error())
}

func TestProtocolError(t *testing.T) {
	err := &flowerrors.ProtocolError{Reason: "orphan_processor_end", CorrelationID: "c2", Detail: "order-flow/processors/0"}
	assert.Equal(t, `protocol violation orphan_processor_end for execution "c2": order-flow/processors/0`, err.Error())

	err = &flowerrors.ProtocolError{Reason: "unknown_action", CorrelationID: "c9"}
	assert.Equal(t, `protocol violation unknown_action for execution "c9"`, err.Error())
}
