// Package telemetry provides OpenTelemetry integration with rich attributes
// for agent and orchestrator observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for agent telemetry. LLM attributes follow the
// standard gen_ai conventions; the rest live under the haf namespace.
const (
	// Agent attributes
	AttrAgentID        = "haf.agent.id"
	AttrAgentRole      = "haf.agent.role"
	AttrAgentModel     = "haf.agent.model"
	AttrAgentRunID     = "haf.agent.run_id"
	AttrAgentIteration = "haf.agent.iteration"
	AttrAgentMaxIter   = "haf.agent.max_iterations"

	// Memory attributes
	AttrMemoryEnabled   = "haf.memory.enabled"
	AttrMemoryType      = "haf.memory.type"
	AttrMemoryRetrieved = "haf.memory.retrieved_count"
	AttrMemoryStored    = "haf.memory.stored"

	// Tool attributes
	AttrToolName       = "haf.tool.name"
	AttrToolCallID     = "haf.tool.call_id"
	AttrToolArgs       = "haf.tool.arguments"
	AttrToolResult     = "haf.tool.result"
	AttrToolDurationMs = "haf.tool.duration_ms"
	AttrToolSuccess    = "haf.tool.success"
	AttrToolSource     = "haf.tool.source" // "builtin", "mcp"

	// Tool set attributes
	AttrToolsCount = "haf.tools.count"
	AttrToolsNames = "haf.tools.names"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMFinishReason = "gen_ai.finish_reason"

	// Task attributes
	AttrTaskID          = "haf.task.id"
	AttrTaskDescription = "haf.task.description"
	AttrTaskStatus      = "haf.task.status"
	AttrTaskRole        = "haf.task.role"

	// Plan and scheduling attributes
	AttrPlanID        = "haf.plan.id"
	AttrPlanGoal      = "haf.plan.goal"
	AttrPlanTaskCount = "haf.plan.task_count"
	AttrWaveIndex     = "haf.wave.index"
	AttrWaveSize      = "haf.wave.size"

	// Delegation attributes
	AttrDelegationRole = "haf.delegation.role"
)

// attrSet builds sparse attribute lists: the conditional setters drop
// zero values so spans never carry empty keys.
type attrSet []attribute.KeyValue

func (s attrSet) str(key, value string) attrSet {
	if value != "" {
		s = append(s, attribute.String(key, value))
	}
	return s
}

func (s attrSet) count(key string, value int) attrSet {
	if value > 0 {
		s = append(s, attribute.Int(key, value))
	}
	return s
}

func (s attrSet) flag(key string, value bool) attrSet {
	if value {
		s = append(s, attribute.Bool(key, value))
	}
	return s
}

// clip bounds free-form text before it lands in a span attribute.
func clip(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(agentID, role, model, runID string, iteration, maxIter int) []attribute.KeyValue {
	return attrSet{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentRunID, runID),
	}.str(AttrAgentRole, role).
		str(AttrAgentModel, model).
		count(AttrAgentIteration, iteration).
		count(AttrAgentMaxIter, maxIter)
}

// MemoryAttributes returns attributes for memory operations.
func MemoryAttributes(enabled bool, memType string, retrieved int, stored bool) []attribute.KeyValue {
	set := attrSet{attribute.Bool(AttrMemoryEnabled, enabled)}
	if enabled {
		set = set.str(AttrMemoryType, memType)
	}
	return set.count(AttrMemoryRetrieved, retrieved).
		flag(AttrMemoryStored, stored)
}

// ToolCallAttributes returns attributes for a tool call span. The call ID
// is optional because some providers never assign one.
func ToolCallAttributes(name, callID, source string, durationMs float64, success bool) []attribute.KeyValue {
	return attrSet{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}.str(AttrToolCallID, callID).
		str(AttrToolSource, source)
}

// ToolCallArgsResult returns attributes with tool arguments and result,
// truncated so oversized payloads never land in spans.
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	set := attrSet{}
	if args != "" {
		set = set.str(AttrToolArgs, clip(args, maxLen))
	}
	if result != "" {
		set = set.str(AttrToolResult, clip(result, maxLen))
	}
	return set
}

// ToolsetAttributes returns attributes describing the available tools.
func ToolsetAttributes(total int, names []string) []attribute.KeyValue {
	set := attrSet{attribute.Int(AttrToolsCount, total)}
	if len(names) > 0 {
		set = append(set, attribute.StringSlice(AttrToolsNames, names))
	}
	return set
}

// LLMAttributes returns attributes for LLM call spans.
func LLMAttributes(model, provider string, msgCount int, toolCallCount int) []attribute.KeyValue {
	return attrSet{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}.str(AttrLLMProvider, provider).
		count(AttrLLMToolCalls, toolCallCount)
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64, finishReason string) []attribute.KeyValue {
	set := attrSet{}.
		count(AttrLLMTokensInput, inputTokens).
		count(AttrLLMTokensOutput, outputTokens).
		count(AttrLLMTokensTotal, inputTokens+outputTokens)
	if durationMs > 0 {
		set = append(set, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return set.str(AttrLLMFinishReason, finishReason)
}

// TaskAttributes returns attributes for task tracking.
func TaskAttributes(taskID, description, role, status string) []attribute.KeyValue {
	return attrSet{}.
		str(AttrTaskID, taskID).
		str(AttrTaskDescription, clip(description, 200)).
		str(AttrTaskRole, role).
		str(AttrTaskStatus, status)
}

// PlanAttributes returns attributes for plan spans.
func PlanAttributes(planID, goal string, taskCount int) []attribute.KeyValue {
	return attrSet{
		attribute.String(AttrPlanID, planID),
		attribute.Int(AttrPlanTaskCount, taskCount),
	}.str(AttrPlanGoal, clip(goal, 200))
}

// WaveAttributes returns attributes for one scheduling wave.
func WaveAttributes(index, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrWaveIndex, index),
		attribute.Int(AttrWaveSize, size),
	}
}
