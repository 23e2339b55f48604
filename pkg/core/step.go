package core

import "time"

// ToolInvocation records a validated tool call chosen by an agent.
// ResultSchema carries the schema the tool declares for its output, when
// the tool declares one.
type ToolInvocation struct {
	CallID       string         `json:"call_id,omitempty"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	ResultSchema map[string]any `json:"result_schema,omitempty"`
}

// AgentStep is one think/act/observe cycle in an agent run. A step carries
// either a tool invocation with its observation or a terminal answer,
// never both.
type AgentStep struct {
	Index       int             `json:"index"`
	Thought     string          `json:"thought,omitempty"`
	Invocation  *ToolInvocation `json:"invocation,omitempty"`
	Observation string          `json:"observation,omitempty"`
	Answer      string          `json:"answer,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// TokenUsage accumulates token counts across the LLM calls of a run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(prompt, completion, total int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += total
}

// AgentResult is the outcome of a single agent run: the final answer, the
// ordered audit trail of steps, and whether the run succeeded. FailureCode
// holds the error code when Success is false. Iterations counts loop passes
// consumed, which can exceed len(Steps) when malformed completions were
// retried.
type AgentResult struct {
	AgentID     string      `json:"agent_id,omitempty"`
	Answer      string      `json:"answer"`
	Steps       []AgentStep `json:"steps,omitempty"`
	Iterations  int         `json:"iterations,omitempty"`
	Success     bool        `json:"success"`
	FailureCode string      `json:"failure_code,omitempty"`
	Usage       TokenUsage  `json:"usage"`
}
