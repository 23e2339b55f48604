package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/agent"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/config"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/telemetry"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Defaults applied when the orchestrator is built without a loaded config.
const (
	DefaultMaxConcurrent      = 4
	DefaultTaskTimeoutSeconds = 300
)

// RoleSynthesizer names the ad-hoc agent that merges completed subtask
// results into the final answer. It is not a delegation preset; the default
// factory builds it without tools.
const RoleSynthesizer = "synthesizer"

// TaskRunner is the slice of the agent runtime the orchestrator needs.
// *agent.Agent satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task string) (*core.AgentResult, error)
}

// AgentFactory builds the runner for a role. Every delegation goes through
// the factory, so replacing it swaps the whole agent fleet at once.
type AgentFactory func(role string) (TaskRunner, error)

// Delegation records one hand-off to a subordinate agent. TaskID is set for
// plan tasks and empty for direct delegations.
type Delegation struct {
	Agent   string    `json:"agent"`
	TaskID  string    `json:"task_id,omitempty"`
	Task    string    `json:"task"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Orchestrator decomposes one top-level goal into a dependency-aware plan,
// schedules the plan across role agents, and synthesizes the subtask
// results into a single answer. A single orchestrator is safe for
// concurrent use; each Execute call tracks its own plan.
type Orchestrator struct {
	id       string
	provider llm.Provider
	registry *tools.Registry

	cfg      config.OrchestratorConfig
	agentCfg config.AgentConfig

	model          string
	plannerModel   string
	synthesisModel string
	temperature    float64

	emitter core.EventEmitter
	audit   AuditStore
	metrics *telemetry.RunMetrics
	tracer  trace.Tracer
	factory AgentFactory

	mu          sync.Mutex
	delegations []Delegation
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithEmitter streams orchestrator and delegated agent events to emitter.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(o *Orchestrator) error {
		if emitter == nil {
			emitter = core.NoopEventEmitter{}
		}
		o.emitter = emitter
		return nil
	}
}

// WithAuditStore persists plan and task lifecycle records to store. Store
// failures are logged and never fail a run.
func WithAuditStore(store AuditStore) Option {
	return func(o *Orchestrator) error {
		o.audit = store
		return nil
	}
}

// WithAgentFactory replaces how delegated agents are built. The factory
// must handle the planner and coder roles plus RoleSynthesizer.
func WithAgentFactory(factory AgentFactory) Option {
	return func(o *Orchestrator) error {
		if factory == nil {
			return errors.New(errors.CodeValidation, "agent factory must not be nil", nil)
		}
		o.factory = factory
		return nil
	}
}

// WithRunMetrics replaces the run metrics instruments, mainly for tests.
func WithRunMetrics(metrics *telemetry.RunMetrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = metrics
		return nil
	}
}

// New builds an orchestrator over the given provider and tool registry.
// A nil cfg falls back to package defaults; a nil registry means delegated
// agents run without tools.
func New(provider llm.Provider, registry *tools.Registry, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeValidation, "orchestrator requires an LLM provider", nil)
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	o := &Orchestrator{
		id:       "orchestrator-" + uuid.NewString()[:8],
		provider: provider,
		registry: registry,
		cfg:      cfg.Orchestrator,
		agentCfg: cfg.Agent,

		model:          cfg.LLM.Model,
		plannerModel:   cfg.Orchestrator.PlannerModel,
		synthesisModel: cfg.Orchestrator.SynthesisModel,
		temperature:    cfg.LLM.Temperature,

		emitter: core.NoopEventEmitter{},
		tracer:  otel.Tracer("haf/orchestrator"),
	}
	if o.cfg.MaxConcurrent < 1 {
		o.cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.cfg.TaskTimeoutSeconds < 1 {
		o.cfg.TaskTimeoutSeconds = DefaultTaskTimeoutSeconds
	}
	if o.plannerModel == "" {
		o.plannerModel = o.model
	}
	if o.synthesisModel == "" {
		o.synthesisModel = o.model
	}
	o.factory = o.buildAgent

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	metrics, err := telemetry.NewRunMetrics(context.Background())
	if err != nil {
		slog.Default().Warn("orchestrator.metrics.init_error", slog.String("error", err.Error()))
	} else if o.metrics == nil {
		o.metrics = metrics
	}
	return o, nil
}

// ID returns the orchestrator instance id used as the agent name on events.
func (o *Orchestrator) ID() string { return o.id }

// buildAgent is the default factory: role presets over the shared provider
// and registry, with per-role model overrides.
func (o *Orchestrator) buildAgent(role string) (TaskRunner, error) {
	if role == RoleSynthesizer {
		return o.buildSynthesizer()
	}
	opts := []agent.Option{
		agent.WithEmitter(o.emitter),
		agent.WithTemperature(o.temperature),
	}
	model := o.model
	if role == agent.RolePlanner {
		model = o.plannerModel
	}
	if model != "" {
		opts = append(opts, agent.WithModel(model))
	}
	return agent.NewForRole(role, o.provider, o.registry, o.agentCfg, opts...)
}

const synthesisInstructions = `You are a senior editor assembling the work of several specialist agents.

Combine the subtask results into one coherent final response to the
original goal. Preserve concrete details from the results, resolve
redundancy between them, and do not report work that no subtask did.`

// buildSynthesizer builds the merge agent: no tools, default iteration
// budget so empty completions are retried rather than fatal.
func (o *Orchestrator) buildSynthesizer() (TaskRunner, error) {
	opts := []agent.Option{
		agent.WithRole(RoleSynthesizer),
		agent.WithInstructions(synthesisInstructions),
		agent.WithEmitter(o.emitter),
		agent.WithTemperature(o.temperature),
		agent.WithMalformedRetries(normalizeRetries(o.agentCfg.MalformedRetries)),
	}
	if o.synthesisModel != "" {
		opts = append(opts, agent.WithModel(o.synthesisModel))
	}
	return agent.New(RoleSynthesizer+"-"+uuid.NewString()[:8], o.provider, opts...)
}

// Decompose asks the planner agent to break goal into a validated plan.
// Unparsable planner output is retried within the malformed-retry budget;
// output that parses into a structurally invalid plan fails immediately,
// because a planner that emits cycles keeps emitting cycles.
func (o *Orchestrator) Decompose(ctx context.Context, goal string) (*Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, errors.New(errors.CodeValidation, "goal must not be empty", nil)
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Decompose")
	defer span.End()
	log := slog.Default()
	started := time.Now().UTC()

	planner, err := o.factory(agent.RolePlanner)
	if err != nil {
		return nil, err
	}
	prompt := "Create an execution plan for this goal:\n\n" + goal

	var plan *Plan
	var lastErr error
	for attempt := 0; attempt <= normalizeRetries(o.agentCfg.MalformedRetries); attempt++ {
		result, runErr := planner.Run(ctx, prompt)
		o.recordDelegation(ctx, Delegation{
			Agent:   agent.RolePlanner,
			Task:    goal,
			Success: runErr == nil,
			Error:   errorText(runErr),
			At:      time.Now().UTC(),
		})
		if runErr != nil {
			return nil, runErr
		}

		plan, lastErr = parsePlanOutput(goal, result.Answer)
		if lastErr == nil {
			break
		}
		if !errors.HasCode(lastErr, errors.CodeMalformedResponse) {
			return nil, lastErr
		}
		log.Warn("orchestrator.plan.malformed",
			slog.String("run_id", runID),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)
	}
	if plan == nil {
		return nil, lastErr
	}

	span.SetAttributes(telemetry.PlanAttributes(plan.ID, goal, len(plan.Tasks))...)
	log.Info("orchestrator.plan.created",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.Int("tasks", len(plan.Tasks)),
		slog.Int("waves", len(plan.Waves())),
	)
	o.emit(ctx, core.EventPlanCreated, "", map[string]any{
		"plan_id": plan.ID,
		"tasks":   len(plan.Tasks),
	})
	o.auditRecord(ctx, AuditEvent{
		PlanID:     plan.ID,
		Status:     "plan.created",
		Output:     planTaskIDs(plan),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})
	return plan, nil
}

// Synthesize merges the completed results of a fully terminal plan into
// the overall run result. The returned result carries one delegation step
// per plan task plus the synthesized answer, with token usage summed
// across every delegated run.
func (o *Orchestrator) Synthesize(ctx context.Context, plan *Plan) (*core.AgentResult, error) {
	if plan == nil {
		return nil, errors.New(errors.CodeValidation, "synthesis requires a plan", nil)
	}
	if !plan.AllTerminal() {
		return nil, errors.New(errors.CodeValidation, "synthesis requires every plan task to be terminal", nil).
			WithContext("plan_id", plan.ID)
	}
	if failed := plan.FailedIDs(); len(failed) > 0 {
		return nil, errors.Newf(errors.CodePlanExecution, "cannot synthesize a plan with %d failed tasks", len(failed)).
			WithContext("plan_id", plan.ID).
			WithContext("failed_tasks", failed)
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Synthesize")
	defer span.End()
	span.SetAttributes(telemetry.PlanAttributes(plan.ID, plan.Goal, len(plan.Tasks))...)
	log := slog.Default()
	started := time.Now().UTC()

	synth, err := o.factory(RoleSynthesizer)
	if err != nil {
		return nil, err
	}
	result, runErr := synth.Run(ctx, synthesisPrompt(plan))
	o.recordDelegation(ctx, Delegation{
		Agent:   RoleSynthesizer,
		Task:    plan.Goal,
		Success: runErr == nil,
		Error:   errorText(runErr),
		At:      time.Now().UTC(),
	})
	if runErr != nil {
		return nil, runErr
	}

	log.Info("orchestrator.synthesis.complete",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.Int("answer_size", len(result.Answer)),
	)
	o.emit(ctx, core.EventSynthesis, "", map[string]any{
		"plan_id":     plan.ID,
		"answer_size": len(result.Answer),
	})
	o.auditRecord(ctx, AuditEvent{
		PlanID:     plan.ID,
		Role:       RoleSynthesizer,
		Status:     "synthesis",
		Output:     result.Answer,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})
	return o.overallResult(plan, result), nil
}

// synthesisPrompt lays out every completed result under the original goal.
func synthesisPrompt(plan *Plan) string {
	var b strings.Builder
	b.WriteString("Synthesize these results into a final response:\n\nTask: ")
	b.WriteString(plan.Goal)
	b.WriteString("\n\nResults:\n")
	for _, t := range plan.Completed() {
		answer := ""
		if t.Result != nil {
			answer = t.Result.Answer
		}
		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", t.ID, t.Role, answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Execute runs the full pipeline: decompose the goal, execute the plan,
// synthesize the answer. When plan execution or synthesis fails, the
// returned result still carries the per-task delegation trail alongside
// the error so callers can see how far the run got.
func (o *Orchestrator) Execute(ctx context.Context, goal string) (*core.AgentResult, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Execute")
	defer span.End()
	log := slog.Default()
	started := time.Now()

	log.Info("orchestrator.run.start",
		slog.String("run_id", runID),
		slog.String("orchestrator_id", o.id),
		slog.Int("goal_size", len(goal)),
	)

	plan, err := o.Decompose(ctx, goal)
	if err != nil {
		o.metrics.RecordRun(ctx, false)
		log.Error("orchestrator.run.failed",
			slog.String("run_id", runID),
			slog.String("stage", "decompose"),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := o.ExecutePlan(ctx, plan); err != nil {
		o.metrics.RecordRun(ctx, false)
		log.Error("orchestrator.run.failed",
			slog.String("run_id", runID),
			slog.String("stage", "execute"),
			slog.String("error", err.Error()),
		)
		return o.failedResult(plan, err), err
	}

	result, err := o.Synthesize(ctx, plan)
	if err != nil {
		o.metrics.RecordRun(ctx, false)
		log.Error("orchestrator.run.failed",
			slog.String("run_id", runID),
			slog.String("stage", "synthesize"),
			slog.String("error", err.Error()),
		)
		return o.failedResult(plan, err), err
	}

	o.metrics.RecordRun(ctx, true)
	log.Info("orchestrator.run.complete",
		slog.String("run_id", runID),
		slog.Int("tasks", len(plan.Tasks)),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return result, nil
}

// DelegateToPlanner hands one planning task to a fresh planner agent and
// returns its answer.
func (o *Orchestrator) DelegateToPlanner(ctx context.Context, task string) (string, error) {
	return o.delegate(ctx, agent.RolePlanner, task)
}

// DelegateToCoder hands one implementation task to a fresh coder agent and
// returns its answer.
func (o *Orchestrator) DelegateToCoder(ctx context.Context, task string) (string, error) {
	return o.delegate(ctx, agent.RoleCoder, task)
}

func (o *Orchestrator) delegate(ctx context.Context, role, task string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", errors.New(errors.CodeValidation, "delegated task must not be empty", nil)
	}
	ctx, _ = core.EnsureRunID(ctx)

	runner, err := o.factory(role)
	if err != nil {
		return "", err
	}
	result, runErr := runner.Run(ctx, task)

	d := Delegation{Agent: role, Task: task, At: time.Now().UTC()}
	switch {
	case runErr != nil:
		d.Error = runErr.Error()
	case result == nil:
		d.Error = "agent returned no result"
	default:
		d.Success = result.Success
		if !result.Success {
			d.Error = result.FailureCode
		}
	}
	o.recordDelegation(ctx, d)

	if runErr != nil {
		return "", runErr
	}
	if result == nil {
		return "", errors.New(errors.CodeInternal, "agent returned no result", nil)
	}
	return result.Answer, nil
}

// DelegationLog returns a copy of every delegation recorded so far, in
// order.
func (o *Orchestrator) DelegationLog() []Delegation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Delegation, len(o.delegations))
	copy(out, o.delegations)
	return out
}

// ClearDelegationLog drops the recorded delegations.
func (o *Orchestrator) ClearDelegationLog() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delegations = nil
}

// overallResult folds the plan and the synthesis run into the result
// Execute returns: one step per delegated task in plan order, then the
// final answer, with usage summed across everything.
func (o *Orchestrator) overallResult(plan *Plan, synthesis *core.AgentResult) *core.AgentResult {
	res := &core.AgentResult{
		AgentID: o.id,
		Answer:  synthesis.Answer,
		Success: true,
	}
	o.appendDelegationSteps(res, plan)

	now := time.Now().UTC()
	start, finish := now, now
	if n := len(synthesis.Steps); n > 0 {
		start = synthesis.Steps[0].StartedAt
		finish = synthesis.Steps[n-1].FinishedAt
	}
	res.Steps = append(res.Steps, core.AgentStep{
		Index:      len(res.Steps) + 1,
		Answer:     synthesis.Answer,
		StartedAt:  start,
		FinishedAt: finish,
	})
	res.Usage.Add(synthesis.Usage.PromptTokens, synthesis.Usage.CompletionTokens, synthesis.Usage.TotalTokens)
	return res
}

// failedResult reports how far a failed run got: the delegation trail so
// far and the failure code of the terminal error.
func (o *Orchestrator) failedResult(plan *Plan, cause error) *core.AgentResult {
	res := &core.AgentResult{
		AgentID:     o.id,
		Success:     false,
		FailureCode: string(errors.CodeOf(cause)),
	}
	o.appendDelegationSteps(res, plan)
	return res
}

func (o *Orchestrator) appendDelegationSteps(res *core.AgentResult, plan *Plan) {
	for _, t := range plan.Tasks {
		step := core.AgentStep{
			Index:      len(res.Steps) + 1,
			Thought:    fmt.Sprintf("delegate %s to %s: %s", t.ID, t.Role, t.Description),
			StartedAt:  t.StartedAt,
			FinishedAt: t.FinishedAt,
		}
		switch {
		case t.Status == core.TaskStatusCompleted && t.Result != nil:
			step.Observation = t.Result.Answer
		case t.Error != "":
			step.Observation = "failed: " + t.Error
		}
		res.Steps = append(res.Steps, step)
		if t.Result != nil {
			res.Usage.Add(t.Result.Usage.PromptTokens, t.Result.Usage.CompletionTokens, t.Result.Usage.TotalTokens)
		}
	}
}

func (o *Orchestrator) emit(ctx context.Context, eventType core.EventType, taskID string, payload map[string]any) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(ctx, core.NewEvent(ctx, eventType, o.id, taskID, payload))
}

// recordDelegation appends to the delegation log and mirrors the entry as
// an event. The log is the in-memory trail; durable records go through the
// audit store with the task lifecycle.
func (o *Orchestrator) recordDelegation(ctx context.Context, d Delegation) {
	o.mu.Lock()
	o.delegations = append(o.delegations, d)
	o.mu.Unlock()

	o.emit(ctx, core.EventDelegation, d.TaskID, map[string]any{
		"agent":   d.Agent,
		"task":    d.Task,
		"success": d.Success,
		"error":   d.Error,
	})
}

// auditRecord persists one lifecycle record. Audit failures are logged and
// swallowed; losing an audit row must not fail the run it describes.
func (o *Orchestrator) auditRecord(ctx context.Context, ev AuditEvent) {
	if o.audit == nil {
		return
	}
	if ev.RunID == "" {
		if id, ok := core.RunID(ctx); ok {
			ev.RunID = id
		}
	}
	if err := o.audit.Record(ctx, ev); err != nil {
		slog.Default().Warn("orchestrator.audit.store_error",
			slog.String("plan_id", ev.PlanID),
			slog.String("task_id", ev.TaskID),
			slog.String("status", ev.Status),
			slog.String("error", err.Error()),
		)
	}
}

func planTaskIDs(plan *Plan) []string {
	ids := make([]string, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// normalizeRetries mirrors the agent preset fallback so the decompose
// retry loop and the synthesizer agree with delegated agents.
func normalizeRetries(n int) int {
	if n < 0 {
		return agent.DefaultMalformedRetries
	}
	return n
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
