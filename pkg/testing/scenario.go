// Package testing provides utilities for testing agents and orchestrations
// built on this framework: declarative scenarios run against anything with
// the agent Run signature, a scripted LLM provider with request capture,
// an event collector that plugs in as a core.EventEmitter, and fluent
// assertion helpers for requests, responses, and agent results.
//
// Example:
//
//	collector := testing.NewEventCollector()
//	scenario := testing.NewScenario("greeting").
//	    WithTask("Say hello").
//	    CollectEvents(collector).
//	    ExpectSuccess().
//	    ExpectAnswer(testing.Contains("hello")).
//	    ExpectNoToolCalls()
//
//	scenario.Run(t, myAgent).Assert(t)
//
// Conditions not covered by the Expect helpers can be added with
// ExpectThat.
package testing

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// AgentRunner is anything a scenario can drive: agents and orchestrators
// both expose this shape.
type AgentRunner interface {
	Run(ctx context.Context, task string) (*core.AgentResult, error)
}

// expectation pairs a printable description with its check.
type expectation struct {
	desc  string
	check func(*ScenarioResult) error
}

// Scenario is a declarative test case: a task, an optional event collector,
// and a set of expectations checked against the run outcome.
type Scenario struct {
	name         string
	description  string
	task         string
	ctx          context.Context
	timeout      time.Duration
	collector    *EventCollector
	expectations []expectation
	setups       []func() error
	teardowns    []func() error
}

// ScenarioResult is the outcome of a scenario run. Result may be nil when
// the runner returned only an error.
type ScenarioResult struct {
	Result   *core.AgentResult
	Err      error
	Events   []core.Event
	Duration time.Duration

	scenario *Scenario
}

// Answer returns the agent's final answer, or "" when there is no result.
func (r *ScenarioResult) Answer() string {
	if r.Result == nil {
		return ""
	}
	return r.Result.Answer
}

// ToolCalls returns the tool invocations recorded in the result steps.
func (r *ScenarioResult) ToolCalls() []core.ToolInvocation {
	if r.Result == nil {
		return nil
	}
	var calls []core.ToolInvocation
	for _, step := range r.Result.Steps {
		if step.Invocation != nil {
			calls = append(calls, *step.Invocation)
		}
	}
	return calls
}

// Assert checks every expectation of the scenario that produced this result.
func (r *ScenarioResult) Assert(t *testing.T) {
	t.Helper()
	if r.scenario == nil {
		return
	}
	for _, exp := range r.scenario.expectations {
		if err := exp.check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", r.scenario.name, exp.desc, err)
		}
	}
}

// NewScenario creates a scenario with a 30s default timeout.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		ctx:     context.Background(),
		timeout: 30 * time.Second,
	}
}

// WithDescription adds a human-readable description.
func (s *Scenario) WithDescription(desc string) *Scenario {
	s.description = desc
	return s
}

// WithTask sets the task text passed to the runner.
func (s *Scenario) WithTask(task string) *Scenario {
	s.task = task
	return s
}

// WithContext sets the parent context for the run.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.ctx = ctx
	return s
}

// WithTimeout bounds the run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithSetup registers a function run before the scenario.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setups = append(s.setups, fn)
	return s
}

// WithTeardown registers a function run after the scenario.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardowns = append(s.teardowns, fn)
	return s
}

// CollectEvents snapshots the collector's events into the result after the
// run. Wire the same collector into the agent under test as its emitter.
func (s *Scenario) CollectEvents(c *EventCollector) *Scenario {
	s.collector = c
	return s
}

// ExpectThat adds a custom expectation.
func (s *Scenario) ExpectThat(desc string, check func(*ScenarioResult) error) *Scenario {
	s.expectations = append(s.expectations, expectation{desc: desc, check: check})
	return s
}

// ExpectAnswer expects the final answer to match.
func (s *Scenario) ExpectAnswer(matcher StringMatcher) *Scenario {
	return s.ExpectThat("answer "+matcher.Description(), func(r *ScenarioResult) error {
		if answer := r.Answer(); !matcher.Match(answer) {
			return fmt.Errorf("answer %q does not match: %s", answer, matcher.Description())
		}
		return nil
	})
}

// ExpectSuccess expects a nil error and a successful result.
func (s *Scenario) ExpectSuccess() *Scenario {
	return s.ExpectThat("run succeeds", func(r *ScenarioResult) error {
		if r.Err != nil {
			return fmt.Errorf("expected success, got error: %v", r.Err)
		}
		if r.Result == nil {
			return fmt.Errorf("expected success, got nil result")
		}
		if !r.Result.Success {
			return fmt.Errorf("result reports failure (code %s)", r.Result.FailureCode)
		}
		return nil
	})
}

// ExpectNoError expects the runner to return a nil error.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.ExpectThat("no error", func(r *ScenarioResult) error {
		if r.Err != nil {
			return fmt.Errorf("expected no error, got: %v", r.Err)
		}
		return nil
	})
}

// ExpectError expects an error whose message matches.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.ExpectThat("error "+matcher.Description(), func(r *ScenarioResult) error {
		if r.Err == nil {
			return fmt.Errorf("expected error matching %s, got nil", matcher.Description())
		}
		if !matcher.Match(r.Err.Error()) {
			return fmt.Errorf("error %q does not match: %s", r.Err.Error(), matcher.Description())
		}
		return nil
	})
}

// ExpectFailureCode expects the run to fail with the given framework error
// code, either on the returned error or on the result's FailureCode.
func (s *Scenario) ExpectFailureCode(code errors.ErrorCode) *Scenario {
	return s.ExpectThat(fmt.Sprintf("fails with code %s", code), func(r *ScenarioResult) error {
		if r.Err != nil && errors.HasCode(r.Err, code) {
			return nil
		}
		if r.Result != nil && r.Result.FailureCode == string(code) {
			return nil
		}
		return fmt.Errorf("no failure with code %s (err=%v, result=%+v)", code, r.Err, r.Result)
	})
}

// ExpectToolCall expects the named tool among the recorded invocations.
func (s *Scenario) ExpectToolCall(toolName string) *Scenario {
	return s.ExpectThat(fmt.Sprintf("tool %q called", toolName), func(r *ScenarioResult) error {
		for _, call := range r.ToolCalls() {
			if call.Name == toolName {
				return nil
			}
		}
		return fmt.Errorf("tool %q was not called (called: %s)", toolName, formatInvocations(r.ToolCalls()))
	})
}

// ExpectNoToolCalls expects the run to finish without invoking any tool.
func (s *Scenario) ExpectNoToolCalls() *Scenario {
	return s.ExpectThat("no tool calls", func(r *ScenarioResult) error {
		if calls := r.ToolCalls(); len(calls) > 0 {
			return fmt.Errorf("expected no tool calls, got %s", formatInvocations(calls))
		}
		return nil
	})
}

// ExpectStepCount expects exactly n recorded steps.
func (s *Scenario) ExpectStepCount(n int) *Scenario {
	return s.ExpectThat(fmt.Sprintf("%d steps", n), func(r *ScenarioResult) error {
		got := 0
		if r.Result != nil {
			got = len(r.Result.Steps)
		}
		if got != n {
			return fmt.Errorf("expected %d steps, got %d", n, got)
		}
		return nil
	})
}

// ExpectEvent expects an event of the given type among the collected events.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.ExpectThat(fmt.Sprintf("event %q emitted", eventType), func(r *ScenarioResult) error {
		for _, ev := range r.Events {
			if ev.Type == eventType {
				return nil
			}
		}
		return fmt.Errorf("event type %q was not emitted", eventType)
	})
}

// ExpectMaxDuration expects the run to complete within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.ExpectThat(fmt.Sprintf("duration <= %v", d), func(r *ScenarioResult) error {
		if r.Duration > d {
			return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, d)
		}
		return nil
	})
}

// Run executes the scenario and returns the outcome. Expectations are not
// checked here; call Assert on the result.
func (s *Scenario) Run(t *testing.T, runner AgentRunner) *ScenarioResult {
	t.Helper()

	for _, fn := range s.setups {
		if err := fn(); err != nil {
			t.Fatalf("scenario %q setup: %v", s.name, err)
		}
	}
	defer func() {
		for _, fn := range s.teardowns {
			if err := fn(); err != nil {
				t.Errorf("scenario %q teardown: %v", s.name, err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := runner.Run(ctx, s.task)
	outcome := &ScenarioResult{
		Result:   result,
		Err:      err,
		Duration: time.Since(start),
		scenario: s,
	}
	if s.collector != nil {
		outcome.Events = s.collector.Events()
	}
	return outcome
}

// StringMatcher matches strings in expectations.
type StringMatcher struct {
	desc  string
	match func(string) bool
}

// Match reports whether s satisfies the matcher.
func (m StringMatcher) Match(s string) bool { return m.match(s) }

// Description returns a printable form of the condition.
func (m StringMatcher) Description() string { return m.desc }

// Contains matches strings containing substr.
func Contains(substr string) StringMatcher {
	return StringMatcher{
		desc:  fmt.Sprintf("contains %q", substr),
		match: func(s string) bool { return strings.Contains(s, substr) },
	}
}

// Equals matches the exact string.
func Equals(expected string) StringMatcher {
	return StringMatcher{
		desc:  fmt.Sprintf("equals %q", expected),
		match: func(s string) bool { return s == expected },
	}
}

// Regex matches against a regular expression. The pattern must compile;
// a bad pattern panics at construction rather than silently never matching.
func Regex(pattern string) StringMatcher {
	re := regexp.MustCompile(pattern)
	return StringMatcher{
		desc:  fmt.Sprintf("matches regex %q", pattern),
		match: re.MatchString,
	}
}

// HasPrefix matches strings starting with prefix.
func HasPrefix(prefix string) StringMatcher {
	return StringMatcher{
		desc:  fmt.Sprintf("has prefix %q", prefix),
		match: func(s string) bool { return strings.HasPrefix(s, prefix) },
	}
}

// HasSuffix matches strings ending with suffix.
func HasSuffix(suffix string) StringMatcher {
	return StringMatcher{
		desc:  fmt.Sprintf("has suffix %q", suffix),
		match: func(s string) bool { return strings.HasSuffix(s, suffix) },
	}
}

func formatInvocations(calls []core.ToolInvocation) string {
	if len(calls) == 0 {
		return "(none)"
	}
	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = call.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// EventCollector records events for later inspection. It implements
// core.EventEmitter, so it plugs directly into agents and orchestrators.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

var _ core.EventEmitter = (*EventCollector)(nil)

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of all collected events.
func (c *EventCollector) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

// OfType returns the collected events of the given type, in order.
func (c *EventCollector) OfType(eventType core.EventType) []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var matched []core.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

// HasEvent reports whether an event of the given type was collected.
func (c *EventCollector) HasEvent(eventType core.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.ContainsFunc(c.events, func(ev core.Event) bool {
		return ev.Type == eventType
	})
}

// Count reports how many events were collected.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset drops the collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
