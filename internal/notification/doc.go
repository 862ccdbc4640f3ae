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

// Package notification turns the host runtime's pipeline and processor
// lifecycle notifications into span trees.
//
// Listeners translate host notifications into handler events. The Handler
// keeps one span stack per correlation id: a pipeline start opens the root
// span, processor starts push children of the current top, and end events
// pop and close them. Events that do not fit the stack (ends without a
// start, mismatched ends, a pipeline end with processors still open) are
// reconciled, logged, and counted; they never reach the host as errors.
package notification
