package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/resilience"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/telemetry"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Run executes a task through the think/act/observe loop until the model
// produces a terminal answer or a bound is hit. The returned result is
// never nil: on failure it carries the steps taken so far, Success=false,
// and the failure code matching the returned error.
//
// Tool and argument errors never abort the loop; they come back to the
// model as error-text observations so it can correct course. Only provider
// failures, the iteration cap, exhausted malformed retries, a guardrail
// block, and context cancellation end a run unsuccessfully.
func (a *Agent) Run(ctx context.Context, task string) (*core.AgentResult, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := a.tracer.Start(ctx, "Agent.Run")
	defer span.End()
	traceID, spanID := traceIDs(span)
	log := slog.Default()

	result := &core.AgentResult{AgentID: a.id}

	initAgentMetrics()
	if agentRunCounter != nil {
		agentRunCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("role", a.role)))
	}
	start := time.Now()

	span.SetAttributes(telemetry.AgentAttributes(a.id, a.role, a.model, runID, 0, a.maxIterations)...)

	if a.guards != nil {
		if check := a.guards.CheckInput(ctx, task); check.Blocked {
			return a.fail(ctx, log, result, runID, traceID, spanID, start,
				errors.Newf(errors.CodeValidation, "task blocked by guardrail %s", check.GuardrailID).
					WithContext("reason", check.Reason))
		}
	}

	reg := a.resolveTools()
	defs := reg.Definitions()
	span.SetAttributes(telemetry.ToolsetAttributes(reg.Len(), reg.Names())...)

	mem := a.resolveMemory(ctx)
	messages, memRetrieved := a.seedMessages(ctx, log, mem, task)
	span.SetAttributes(telemetry.MemoryAttributes(mem != nil, memoryType(mem), memRetrieved, false)...)

	log.Info("agent.run.start",
		slog.String("agent_id", a.id),
		slog.String("role", a.role),
		slog.String("run_id", runID),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
		slog.Int("tools", reg.Len()),
	)

	a.storeConversationMessage(ctx, log, llm.RoleUser, task)

	malformed := 0
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		result.Iterations = iteration
		stepStart := time.Now().UTC()
		a.emit(ctx, core.EventAgentThinking, map[string]any{
			"run_id":    runID,
			"iteration": iteration,
		})

		resp, err := a.chat(ctx, messages, defs)
		if err != nil {
			return a.fail(ctx, log, result, runID, traceID, spanID, start,
				WrapProviderError(err, a.provider.Name(), a.model))
		}
		if resp != nil {
			result.Usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		}

		// A response with neither content nor tool calls gives the loop
		// nothing to act on. Retry with unchanged history; the request
		// was fine, the completion was not.
		if resp == nil || (len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == "") {
			malformed++
			if malformed > a.malformedRetries {
				return a.fail(ctx, log, result, runID, traceID, spanID, start,
					errors.Newf(errors.CodeMalformedResponse,
						"model returned neither content nor tool calls after %d retries", a.malformedRetries).
						WithContext("iteration", iteration))
			}
			log.Warn("agent.response.malformed",
				slog.String("agent_id", a.id),
				slog.String("run_id", runID),
				slog.Int("iteration", iteration),
				slog.Int("retry", malformed),
			)
			continue
		}
		malformed = 0

		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			if a.guards != nil {
				if filtered := a.guards.FilterOutput(ctx, answer); filtered.Modified {
					log.Info("agent.guardrails.redacted",
						slog.String("agent_id", a.id),
						slog.String("run_id", runID),
						slog.Int("redactions", len(filtered.Redactions)),
					)
					answer = filtered.Content
				}
			}
			result.Steps = append(result.Steps, core.AgentStep{
				Index:      len(result.Steps) + 1,
				Answer:     answer,
				StartedAt:  stepStart,
				FinishedAt: time.Now().UTC(),
			})
			result.Answer = answer
			result.Success = true

			a.storeMemory(ctx, log, mem, task, answer)
			a.storeConversationMessage(ctx, log, llm.RoleAssistant, answer)

			if agentRunLatencyMs != nil {
				agentRunLatencyMs.Record(ctx, time.Since(start).Seconds()*1000)
			}
			log.Info("agent.run.complete",
				slog.String("agent_id", a.id),
				slog.String("run_id", runID),
				slog.String("trace_id", traceID),
				slog.String("span_id", spanID),
				slog.Int("iterations", iteration),
				slog.Int("tokens", result.Usage.TotalTokens),
			)
			a.emit(ctx, core.EventAgentAnswer, map[string]any{
				"run_id":     runID,
				"iterations": iteration,
				"answer":     answer,
			})
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		thought := strings.TrimSpace(resp.Content)
		for i, call := range resp.ToolCalls {
			if i > 0 {
				thought = ""
			}
			step := a.invokeTool(ctx, log, runID, reg, len(result.Steps)+1, thought, call)
			result.Steps = append(result.Steps, step)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    step.Observation,
				ToolCallID: call.ID,
			})
		}
	}

	return a.fail(ctx, log, result, runID, traceID, spanID, start,
		errors.Newf(errors.CodeMaxIterations, "no terminal answer after %d iterations", a.maxIterations).
			WithContext("max_iterations", a.maxIterations))
}

// chat sends one completion request through the retry policy, tracing the
// call and its token usage.
func (a *Agent) chat(ctx context.Context, messages []llm.Message, defs []llm.Tool) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Model:       a.model,
		Messages:    messages,
		Tools:       defs,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}

	retry := a.retry
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.Default().Warn("retrying model call",
			slog.String("agent_id", a.id),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
	}

	llmStart := time.Now()
	llmCtx, llmSpan := a.tracer.Start(ctx, "Agent.LLM.Chat")
	llmSpan.SetAttributes(telemetry.LLMAttributes(a.model, a.provider.Name(), len(messages), 0)...)
	resp, err := resilience.DoWithResult(llmCtx, retry, func() (*llm.ChatResponse, error) {
		return a.provider.Chat(llmCtx, req)
	})
	llmDurationMs := time.Since(llmStart).Seconds() * 1000
	if resp != nil {
		llmSpan.SetAttributes(telemetry.LLMAttributes(a.model, a.provider.Name(), len(messages), len(resp.ToolCalls))...)
		llmSpan.SetAttributes(telemetry.LLMUsageAttributes(
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, llmDurationMs, finishReason(resp))...)
	}
	llmSpan.End()
	if llmLatencyMs != nil {
		llmLatencyMs.Record(ctx, llmDurationMs)
	}
	return resp, err
}

// invokeTool executes one model-chosen tool call and returns the completed
// step. Parse, validation, and execution failures all land in the
// observation text.
func (a *Agent) invokeTool(ctx context.Context, log *slog.Logger, runID string, reg *tools.Registry, index int, thought string, call llm.ToolCall) core.AgentStep {
	name := call.Function.Name
	step := core.AgentStep{
		Index:     index,
		Thought:   thought,
		StartedAt: time.Now().UTC(),
	}

	a.emit(ctx, core.EventAgentAction, map[string]any{
		"run_id":  runID,
		"tool":    name,
		"call_id": call.ID,
	})

	args, callErr := tools.ParseArguments(call.Function.Arguments)
	step.Invocation = &core.ToolInvocation{
		CallID:       call.ID,
		Name:         name,
		Arguments:    args,
		ResultSchema: reg.ResultSchema(name),
	}

	var observation string
	toolStart := time.Now()
	toolCtx, toolSpan := a.tracer.Start(ctx, "Agent.Tool.Call")
	if callErr == nil {
		var out any
		out, callErr = reg.Invoke(toolCtx, name, args)
		if callErr == nil {
			observation = renderObservation(out)
		}
	}
	toolDurationMs := time.Since(toolStart).Seconds() * 1000
	toolSpan.SetAttributes(telemetry.ToolCallAttributes(name, call.ID, toolSource(reg, name), toolDurationMs, callErr == nil)...)
	toolSpan.SetAttributes(telemetry.ToolCallArgsResult(call.Function.Arguments, observation, 500)...)
	toolSpan.End()

	if toolLatencyMs != nil {
		toolLatencyMs.Record(ctx, toolDurationMs, metric.WithAttributes(
			attribute.String("tool.name", name),
		))
	}

	if callErr != nil {
		observation = callErr.Error()
		if em := GetErrorMetrics(); em != nil {
			em.RecordError(ctx, callErr, "agent-tool")
		}
		log.Warn("agent.tool.error",
			slog.String("agent_id", a.id),
			slog.String("run_id", runID),
			slog.String("tool", name),
			slog.String("tool_call_id", call.ID),
			slog.String("error", callErr.Error()),
			slog.String("error_code", string(errors.CodeOf(callErr))),
		)
	} else {
		log.Info("agent.tool.complete",
			slog.String("agent_id", a.id),
			slog.String("run_id", runID),
			slog.String("tool", name),
			slog.String("tool_call_id", call.ID),
		)
	}

	step.Observation = observation
	step.FinishedAt = time.Now().UTC()
	a.emit(ctx, core.EventAgentObservation, map[string]any{
		"run_id":      runID,
		"tool":        name,
		"call_id":     call.ID,
		"observation": observation,
	})
	return step
}

// seedMessages builds the initial conversation: system prompt, recalled
// memory context, prior session history, then the task itself. Returns the
// messages and how many memory entries were woven in.
func (a *Agent) seedMessages(ctx context.Context, log *slog.Logger, mem core.Memory, task string) ([]llm.Message, int) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.systemPrompt()}}

	retrieved := 0
	if mem != nil {
		memoryContext, n := loadMemoryContext(ctx, mem, task)
		if memoryContext != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: memoryContext})
			retrieved = n
		}
	}

	if a.conversation != nil && a.sessionID != "" {
		history, err := a.conversation.GetMessages(ctx, a.sessionID)
		if err != nil {
			log.Warn("agent.conversation.load_error",
				slog.String("agent_id", a.id),
				slog.String("session_id", a.sessionID),
				slog.String("error", err.Error()),
			)
		}
		for _, msg := range history {
			messages = append(messages, llm.Message{
				Role:       llm.Role(msg.Role),
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: task}), retrieved
}

// systemPrompt joins instructions and the output contract. Presets supply
// both; bare agents get a generic prompt derived from their role.
func (a *Agent) systemPrompt() string {
	prompt := a.instructions
	if prompt == "" {
		prompt = defaultInstructions(a.role)
	}
	if a.outputContract != "" {
		prompt += "\n\n" + a.outputContract
	}
	return prompt
}

func defaultInstructions(role string) string {
	if role != "" {
		return fmt.Sprintf("You are a %s agent. Work on the task you are given, use the available tools when they help, and reply with your final answer once the task is done.", role)
	}
	return "Work on the task you are given, use the available tools when they help, and reply with your final answer once the task is done."
}

// loadMemoryContext recalls entries related to the task. Memory failures
// degrade to an empty context; recall never blocks a run.
func loadMemoryContext(ctx context.Context, mem core.Memory, task string) (string, int) {
	out, err := mem.Retrieve(ctx, task)
	if err != nil {
		return "", 0
	}
	var entries []string
	switch v := out.(type) {
	case []string:
		entries = v
	case string:
		if strings.TrimSpace(v) != "" {
			entries = []string{v}
		}
	}
	if len(entries) == 0 {
		return "", 0
	}
	return "Relevant context from memory:\n- " + strings.Join(entries, "\n- "), len(entries)
}

// storeMemory records a finished task so later runs can recall it.
func (a *Agent) storeMemory(ctx context.Context, log *slog.Logger, mem core.Memory, task, answer string) {
	if mem == nil {
		return
	}
	entry := fmt.Sprintf("Task: %s\nAnswer: %s", task, answer)
	if err := mem.Store(ctx, entry); err != nil {
		if em := GetErrorMetrics(); em != nil {
			em.RecordError(ctx, err, "agent-memory")
		}
		log.Warn("agent.memory.store_error",
			slog.String("agent_id", a.id),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) storeConversationMessage(ctx context.Context, log *slog.Logger, role llm.Role, content string) {
	if a.conversation == nil || a.sessionID == "" || content == "" {
		return
	}
	msg := memory.ConversationMessage{Role: string(role), Content: content}
	if err := a.conversation.AppendMessage(ctx, a.sessionID, msg); err != nil {
		log.Warn("agent.conversation.store_error",
			slog.String("agent_id", a.id),
			slog.String("session_id", a.sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// fail finalizes an unsuccessful run. Context cancellation overrides the
// proximate error code so deadline aborts always surface as timeouts.
func (a *Agent) fail(ctx context.Context, log *slog.Logger, result *core.AgentResult, runID, traceID, spanID string, start time.Time, err error) (*core.AgentResult, error) {
	if ctx.Err() != nil && !errors.HasCode(err, errors.CodeTimeout) {
		err = errors.New(errors.CodeTimeout, "agent run canceled", err)
	}
	code := errors.CodeOf(err)

	result.Success = false
	result.FailureCode = string(code)

	if agentErrorCounter != nil {
		agentErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("error.code", string(code))))
	}
	if agentRunLatencyMs != nil {
		agentRunLatencyMs.Record(ctx, time.Since(start).Seconds()*1000)
	}
	if em := GetErrorMetrics(); em != nil {
		em.RecordError(ctx, err, "agent-run")
	}

	log.Error("agent.run.failed",
		slog.String("agent_id", a.id),
		slog.String("run_id", runID),
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
		slog.String("error", err.Error()),
		slog.String("error_code", string(code)),
	)
	a.emit(ctx, core.EventAgentError, map[string]any{
		"run_id":     runID,
		"error":      err.Error(),
		"error_code": string(code),
	})
	return result, err
}

func (a *Agent) emit(ctx context.Context, eventType core.EventType, payload map[string]any) {
	taskID, _ := core.TaskIDFromContext(ctx)
	a.emitter.Emit(ctx, core.NewEvent(ctx, eventType, a.id, taskID, payload))
}

// renderObservation turns a tool result into text the model can read.
// Strings pass through; everything else is JSON-encoded.
func renderObservation(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprint(v)
	}
}

// finishReason derives the completion's finish reason for telemetry; the
// provider contract does not carry one explicitly.
func finishReason(resp *llm.ChatResponse) string {
	switch {
	case resp == nil:
		return ""
	case len(resp.ToolCalls) > 0:
		return "tool_calls"
	case strings.TrimSpace(resp.Content) != "":
		return "stop"
	default:
		return ""
	}
}

func toolSource(reg *tools.Registry, name string) string {
	if t, ok := reg.Get(name); ok {
		if s, ok := t.(interface{ Source() string }); ok {
			return s.Source()
		}
	}
	return "builtin"
}

func memoryType(mem core.Memory) string {
	if mem == nil {
		return ""
	}
	return fmt.Sprintf("%T", mem)
}
