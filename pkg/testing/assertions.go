package testing

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

// Assertions is the entry point for the fluent assertion chains on
// requests, responses, and agent results. Misses are recorded through
// t.Errorf, so a chain keeps evaluating past a failed link.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates an assertion helper bound to t.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed reports whether any assertion in this helper has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

// errorf records a failure without stopping the chain.
func (a *Assertions) errorf(format string, args ...any) {
	a.t.Helper()
	a.t.Errorf(format, args...)
	a.failed = true
}

// AssertEqual asserts comparable equality.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.errorf("%s: got %v, want %v", msg, actual, expected)
	}
}

// AssertContains asserts that s contains substr.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.errorf("%s: %q does not contain %q", msg, s, substr)
	}
}

// AssertNoError asserts a nil error.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertErrorCode asserts that the error chain carries the framework code.
func (a *Assertions) AssertErrorCode(err error, code errors.ErrorCode, msg string) {
	a.t.Helper()
	switch {
	case err == nil:
		a.errorf("%s: got nil, want error with code %s", msg, code)
	case !errors.HasCode(err, code):
		a.errorf("%s: got code %s (%v), want %s", msg, errors.CodeOf(err), err, code)
	}
}

// RequestAssertions chains assertions on an llm.ChatRequest.
type RequestAssertions struct {
	*Assertions
	req *llm.ChatRequest
}

// AssertRequest starts a request assertion chain.
func (a *Assertions) AssertRequest(req *llm.ChatRequest) *RequestAssertions {
	a.t.Helper()
	if req == nil {
		a.errorf("request is nil")
		req = &llm.ChatRequest{}
	}
	return &RequestAssertions{Assertions: a, req: req}
}

// HasModel asserts the request model.
func (r *RequestAssertions) HasModel(model string) *RequestAssertions {
	r.t.Helper()
	if r.req.Model != model {
		r.errorf("request model = %q, want %q", r.req.Model, model)
	}
	return r
}

// HasMessageCount asserts the number of messages.
func (r *RequestAssertions) HasMessageCount(count int) *RequestAssertions {
	r.t.Helper()
	if len(r.req.Messages) != count {
		r.errorf("request carries %d messages, want %d", len(r.req.Messages), count)
	}
	return r
}

// HasToolCount asserts the number of tools offered to the model.
func (r *RequestAssertions) HasToolCount(count int) *RequestAssertions {
	r.t.Helper()
	if len(r.req.Tools) != count {
		r.errorf("request offers %d tools, want %d", len(r.req.Tools), count)
	}
	return r
}

// HasSystemMessage asserts a system message containing the substring.
func (r *RequestAssertions) HasSystemMessage(contains string) *RequestAssertions {
	r.t.Helper()
	if !r.hasMessage(llm.RoleSystem, contains) {
		r.errorf("no system message containing %q", contains)
	}
	return r
}

// HasUserMessage asserts a user message containing the substring.
func (r *RequestAssertions) HasUserMessage(contains string) *RequestAssertions {
	r.t.Helper()
	if !r.hasMessage(llm.RoleUser, contains) {
		r.errorf("no user message containing %q", contains)
	}
	return r
}

func (r *RequestAssertions) hasMessage(role llm.Role, contains string) bool {
	return slices.ContainsFunc(r.req.Messages, func(msg llm.Message) bool {
		return msg.Role == role && strings.Contains(msg.Content, contains)
	})
}

// HasTool asserts a tool with the given name is offered.
func (r *RequestAssertions) HasTool(name string) *RequestAssertions {
	r.t.Helper()
	offered := slices.ContainsFunc(r.req.Tools, func(tool llm.Tool) bool {
		return tool.Function.Name == name
	})
	if !offered {
		r.errorf("tool %q not offered in request", name)
	}
	return r
}

// ResponseAssertions chains assertions on an llm.ChatResponse.
type ResponseAssertions struct {
	*Assertions
	resp *llm.ChatResponse
}

// AssertResponse starts a response assertion chain.
func (a *Assertions) AssertResponse(resp *llm.ChatResponse) *ResponseAssertions {
	a.t.Helper()
	if resp == nil {
		a.errorf("response is nil")
		resp = &llm.ChatResponse{}
	}
	return &ResponseAssertions{Assertions: a, resp: resp}
}

// HasContent asserts the content contains the substring.
func (r *ResponseAssertions) HasContent(contains string) *ResponseAssertions {
	r.t.Helper()
	if !strings.Contains(r.resp.Content, contains) {
		r.errorf("response content %q does not contain %q", r.resp.Content, contains)
	}
	return r
}

// HasNoToolCalls asserts the response carries no tool calls.
func (r *ResponseAssertions) HasNoToolCalls() *ResponseAssertions {
	r.t.Helper()
	if len(r.resp.ToolCalls) > 0 {
		r.errorf("unexpected tool calls %s", FormatToolCalls(r.resp.ToolCalls))
	}
	return r
}

// HasToolCallCount asserts the number of tool calls.
func (r *ResponseAssertions) HasToolCallCount(count int) *ResponseAssertions {
	r.t.Helper()
	if len(r.resp.ToolCalls) != count {
		r.errorf("response carries %d tool calls, want %d", len(r.resp.ToolCalls), count)
	}
	return r
}

// HasToolCallNamed asserts a tool call with the given name exists.
func (r *ResponseAssertions) HasToolCallNamed(name string) *ResponseAssertions {
	r.t.Helper()
	called := slices.ContainsFunc(r.resp.ToolCalls, func(tc llm.ToolCall) bool {
		return tc.Function.Name == name
	})
	if !called {
		r.errorf("tool call %q not found in %s", name, FormatToolCalls(r.resp.ToolCalls))
	}
	return r
}

// ResultAssertions chains assertions on a core.AgentResult.
type ResultAssertions struct {
	*Assertions
	result *core.AgentResult
}

// AssertResult starts an agent result assertion chain.
func (a *Assertions) AssertResult(result *core.AgentResult) *ResultAssertions {
	a.t.Helper()
	if result == nil {
		a.errorf("agent result is nil")
		result = &core.AgentResult{}
	}
	return &ResultAssertions{Assertions: a, result: result}
}

// Succeeded asserts the result reports success.
func (r *ResultAssertions) Succeeded() *ResultAssertions {
	r.t.Helper()
	if !r.result.Success {
		r.errorf("agent failed with code %s, want success", r.result.FailureCode)
	}
	return r
}

// FailedWithCode asserts the result failed with the given code.
func (r *ResultAssertions) FailedWithCode(code errors.ErrorCode) *ResultAssertions {
	r.t.Helper()
	switch {
	case r.result.Success:
		r.errorf("agent succeeded, want failure with code %s", code)
	case r.result.FailureCode != string(code):
		r.errorf("failure code = %s, want %s", r.result.FailureCode, code)
	}
	return r
}

// AnswerContains asserts the final answer contains the substring.
func (r *ResultAssertions) AnswerContains(substr string) *ResultAssertions {
	r.t.Helper()
	if !strings.Contains(r.result.Answer, substr) {
		r.errorf("answer %q does not contain %q", r.result.Answer, substr)
	}
	return r
}

// StepCount asserts the number of recorded steps.
func (r *ResultAssertions) StepCount(count int) *ResultAssertions {
	r.t.Helper()
	if len(r.result.Steps) != count {
		r.errorf("agent recorded %d steps, want %d", len(r.result.Steps), count)
	}
	return r
}

// CalledTool asserts one of the steps invoked the named tool.
func (r *ResultAssertions) CalledTool(name string) *ResultAssertions {
	r.t.Helper()
	invoked := slices.ContainsFunc(r.result.Steps, func(step core.AgentStep) bool {
		return step.Invocation != nil && step.Invocation.Name == name
	})
	if !invoked {
		r.errorf("tool %q was not invoked in any step", name)
	}
	return r
}

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertToolCallArgs checks the call targets the expected tool and returns
// its decoded arguments.
func AssertToolCallArgs(t *testing.T, tc llm.ToolCall, expectedName string) map[string]any {
	t.Helper()
	if tc.Function.Name != expectedName {
		t.Errorf("tool call = %q, want %q", tc.Function.Name, expectedName)
	}
	if tc.Function.Arguments == "" {
		return nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		t.Errorf("parse tool arguments: %v", err)
		return nil
	}
	return args
}

// FormatToolCalls renders tool call names for failure messages.
func FormatToolCalls(calls []llm.ToolCall) string {
	if len(calls) == 0 {
		return "(none)"
	}
	names := make([]string, len(calls))
	for i, tc := range calls {
		names[i] = tc.Function.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}
