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

/*
Package cli provides the root command and global flags for the flowtrace CLI.

Individual commands live in the internal/commands subpackages; main wires
them onto the root returned by NewRootCommand.

# Command Tree

	flowtrace
	├── validate      Validate a tracing configuration
	├── replay        Trace recorded notifications through the agent
	├── spans         Inspect the local span store
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Error Handling

Commands return *shared.ExitError values; HandleExitError maps them to
exit codes:

  - Exit 0: Success
  - Exit 1: Configuration or execution failure
  - Exit 2: Invalid usage
*/
package cli
