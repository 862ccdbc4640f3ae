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

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/flowtrace/internal/commands/replay"
	"github.com/tombee/flowtrace/internal/commands/spans"
	"github.com/tombee/flowtrace/internal/commands/validate"
	versioncmd "github.com/tombee/flowtrace/internal/commands/version"
)

// newCommandTree assembles the same tree as cmd/flowtrace.
func newCommandTree() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(validate.NewCommand())
	root.AddCommand(replay.NewCommand())
	root.AddCommand(spans.NewCommand())
	root.AddCommand(versioncmd.NewVersionCommand())
	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "flowtrace" {
		t.Errorf("expected use 'flowtrace', got %q", cmd.Use)
	}
	if !strings.Contains(cmd.Long, "OpenTelemetry") {
		t.Errorf("expected long description to mention OpenTelemetry, got %q", cmd.Long)
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("expected root to leave usage and error printing to HandleExitError")
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"verbose", "v"},
		{"quiet", "q"},
		{"json", ""},
		{"config", ""},
	}
	for _, tt := range tests {
		flag := cmd.PersistentFlags().Lookup(tt.name)
		if flag == nil {
			t.Errorf("%s flag not registered", tt.name)
			continue
		}
		if flag.Shorthand != tt.shorthand {
			t.Errorf("expected %s shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
		}
	}

	if usage := cmd.PersistentFlags().Lookup("config").Usage; !strings.Contains(usage, ".config/flowtrace/config.yaml") {
		t.Errorf("expected config usage to name the default path, got %q", usage)
	}
}

func TestCommandTree(t *testing.T) {
	root := newCommandTree()

	for _, name := range []string{"validate", "replay", "spans", "version"} {
		sub, _, err := root.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("expected %q to be registered, got %v (err %v)", name, sub, err)
			continue
		}
		if sub.PersistentFlags().Lookup("json") == nil && sub.InheritedFlags().Lookup("json") == nil {
			t.Errorf("expected %q to inherit --json", name)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	root := newCommandTree()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve"})

	if err := root.Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("0.3.0", "9f1c2ab", "2025-06-02")

	v, c, b := GetVersion()
	if v != "0.3.0" {
		t.Errorf("expected version '0.3.0', got %q", v)
	}
	if c != "9f1c2ab" {
		t.Errorf("expected commit '9f1c2ab', got %q", c)
	}
	if b != "2025-06-02" {
		t.Errorf("expected build date '2025-06-02', got %q", b)
	}
}
