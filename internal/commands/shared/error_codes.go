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

package shared

// Error codes for structured JSON output
const (
	// Configuration errors (E200-E299)
	ErrorCodeConfigNotFound = "E201" // Config file not found
	ErrorCodeInvalidConfig  = "E202" // Invalid configuration

	// Input errors (E300-E399)
	ErrorCodeInvalidInput = "E302" // Invalid events file
	ErrorCodeFileNotFound = "E303" // File not found

	// Resource errors (E400-E499)
	ErrorCodeNotFound        = "E401" // Trace not found
	ErrorCodeInternal        = "E402" // Internal error
	ErrorCodeExecutionFailed = "E403" // Execution failed
)

// ErrorCodeFor maps an ExitError to a JSON error code
func ErrorCodeFor(exitErr *ExitError) string {
	if exitErr == nil {
		return ErrorCodeInternal
	}
	switch exitErr.Code {
	case ExitUsage:
		return ErrorCodeInvalidInput
	default:
		return ErrorCodeExecutionFailed
	}
}
