package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
)

// resetGlobal isolates tests from each other: flag registration writes
// defaults straight into the shared options struct.
func resetGlobal(t *testing.T) {
	t.Helper()
	old := global
	global = globalOptions{}
	t.Cleanup(func() { global = old })
}

func TestGlobalFlags(t *testing.T) {
	resetGlobal(t)
	t.Setenv("HAF_CONFIG", "")

	cmd := newRootCmd()
	args := []string{
		"--config", "custom.yaml",
		"--profile=prod",
		"--set", "llm.provider=mock",
		"--set=orchestrator.concurrency=2",
		"--timeout", "90s",
		"--json",
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if global.ConfigPath != "custom.yaml" {
		t.Errorf("config = %q, want custom.yaml", global.ConfigPath)
	}
	if global.Profile != "prod" {
		t.Errorf("profile = %q, want prod", global.Profile)
	}
	wantSets := []string{"llm.provider=mock", "orchestrator.concurrency=2"}
	if !reflect.DeepEqual(global.Sets, wantSets) {
		t.Errorf("sets = %v, want %v", global.Sets, wantSets)
	}
	if global.Timeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", global.Timeout)
	}
	if !global.JSON {
		t.Error("expected json output enabled")
	}
}

func TestGlobalFlagDefaults(t *testing.T) {
	resetGlobal(t)
	t.Setenv("HAF_CONFIG", "/etc/haf/config.yaml")

	cmd := newRootCmd()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if global.ConfigPath != "/etc/haf/config.yaml" {
		t.Errorf("config = %q, want the HAF_CONFIG value", global.ConfigPath)
	}
	if global.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", global.Timeout, defaultTimeout)
	}
	if global.JSON {
		t.Error("json output should default off")
	}
}

func TestGlobalFlagErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"invalid timeout", []string{"--timeout", "soon"}},
		{"unknown flag", []string{"--verbose"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resetGlobal(t)
			cmd := newRootCmd()
			if err := cmd.ParseFlags(tc.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRootSubcommands(t *testing.T) {
	resetGlobal(t)

	names := make(map[string]bool)
	for _, sub := range newRootCmd().Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"run", "plan", "tools", "health", "audit", "version"} {
		if !names[want] {
			t.Errorf("missing %q subcommand", want)
		}
	}
}

func TestAuditFlags(t *testing.T) {
	resetGlobal(t)

	cmd := newAuditCmd()
	if err := cmd.ParseFlags([]string{"--plan", "p1", "--run=run-7", "--status", "failed", "--limit", "10"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for flag, want := range map[string]string{
		"plan":   "p1",
		"run":    "run-7",
		"status": "failed",
		"limit":  "10",
	} {
		if got := cmd.Flags().Lookup(flag).Value.String(); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}

	if def := cmd.Flags().Lookup("limit").DefValue; def != "50" {
		t.Errorf("limit default = %s, want 50", def)
	}
}

func TestProgressEmitter(t *testing.T) {
	var buf bytes.Buffer
	emitter := progressEmitter(&buf)
	ctx := context.Background()

	emitter.Emit(ctx, core.Event{Type: core.EventPlanCreated, Payload: map[string]any{"plan_id": "p1", "tasks": 3}})
	emitter.Emit(ctx, core.Event{Type: core.EventTaskStarted, TaskID: "t1", Payload: map[string]any{"wave": 0, "role": "coder"}})
	emitter.Emit(ctx, core.Event{Type: core.EventTaskCompleted, TaskID: "t1", Payload: map[string]any{"wave": 0}})
	emitter.Emit(ctx, core.Event{Type: core.EventTaskFailed, TaskID: "t2", Payload: map[string]any{"wave": 1, "reason": "timeout"}})
	emitter.Emit(ctx, core.Event{Type: core.EventSynthesis, Payload: map[string]any{"plan_id": "p1"}})
	emitter.Emit(ctx, core.Event{Type: core.EventAgentAnswer, Agent: "coder", TaskID: "t1"})

	out := buf.String()
	for _, want := range []string{
		"plan p1: 3 task(s)",
		"[wave 0] t1 -> coder",
		"[wave 0] t1 done",
		"[wave 1] t2 failed: timeout",
		"synthesizing answer for plan p1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "coder -> ") || strings.Count(out, "\n") != 5 {
		t.Errorf("agent-level events should pass silently:\n%s", out)
	}
}

func TestCell(t *testing.T) {
	if got := cell(""); got != "-" {
		t.Errorf("empty cell = %q, want -", got)
	}
	if got := cell("  a\t b\n c  "); got != "a b c" {
		t.Errorf("whitespace collapse = %q", got)
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Errorf("short message = %q", got)
	}
	if got := clip("a very long message", 10); got != "a very ..." {
		t.Errorf("clipped = %q", got)
	}
	if got := clip("anything", 0); got != "anything" {
		t.Errorf("zero limit = %q", got)
	}
	if got := clip("", 5); got != "-" {
		t.Errorf("empty cell = %q, want -", got)
	}
}
