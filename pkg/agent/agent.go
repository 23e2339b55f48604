// Package agent implements the LLM-driven agent runtime: a think/act/observe
// loop over a chat provider and a tool registry, plus the role presets the
// orchestrator delegates to.
package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/guardrails"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/resilience"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

const (
	// DefaultMaxIterations bounds the loop when no explicit cap is set.
	DefaultMaxIterations = 10

	// DefaultMalformedRetries is how often an empty or unparseable model
	// response is retried before the run fails.
	DefaultMalformedRetries = 2
)

// Agent runs tasks against an LLM provider. Behavior is fixed at
// construction; specialization happens through options, not subtypes.
// An Agent is safe for concurrent Run calls: the loop keeps all mutable
// state on the stack.
type Agent struct {
	id               string
	role             string
	instructions     string
	outputContract   string
	model            string
	temperature      float64
	maxTokens        int
	maxIterations    int
	malformedRetries int

	provider  llm.Provider
	registry  *tools.Registry
	toolNames []string
	retry     resilience.RetryConfig

	memory       core.Memory
	conversation memory.ConversationMemory
	sessionID    string

	emitter  core.EventEmitter
	manifest *core.RoleManifest
	guards   *guardrails.Guardrails
	tracer   trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent bound to the given provider. The id identifies the
// agent in logs, events, and results; empty ids and nil providers are
// rejected.
func New(id string, provider llm.Provider, opts ...Option) (*Agent, error) {
	if id == "" {
		return nil, errors.Newf(errors.CodeValidation, "agent id is required")
	}
	if provider == nil {
		return nil, errors.Newf(errors.CodeValidation, "agent provider is required")
	}

	a := &Agent{
		id:               id,
		provider:         provider,
		maxIterations:    DefaultMaxIterations,
		malformedRetries: DefaultMalformedRetries,
		retry:            resilience.DefaultRetryConfig(),
		emitter:          core.NoopEventEmitter{},
		tracer:           otel.Tracer("haf/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// WithRole sets the agent role, e.g. "planner" or "coder".
func WithRole(role string) Option {
	return func(a *Agent) error {
		a.role = role
		return nil
	}
}

// WithInstructions sets the system prompt. When empty, a generic prompt
// derived from the role is used.
func WithInstructions(instructions string) Option {
	return func(a *Agent) error {
		a.instructions = instructions
		return nil
	}
}

// WithOutputContract appends an output format contract to the system
// prompt. Kept separate from instructions so presets can fix the contract
// while callers adjust the persona.
func WithOutputContract(contract string) Option {
	return func(a *Agent) error {
		a.outputContract = contract
		return nil
	}
}

// WithModel sets the model name passed to the provider.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) error {
		if t < 0 || t > 2 {
			return errors.Newf(errors.CodeValidation, "temperature %v out of range [0, 2]", t)
		}
		a.temperature = t
		return nil
	}
}

// WithMaxTokens caps the completion length per LLM call. Zero leaves the
// provider default in place.
func WithMaxTokens(n int) Option {
	return func(a *Agent) error {
		if n < 0 {
			return errors.Newf(errors.CodeValidation, "max tokens must not be negative")
		}
		a.maxTokens = n
		return nil
	}
}

// WithTools gives the agent access to a tool registry.
func WithTools(registry *tools.Registry) Option {
	return func(a *Agent) error {
		a.registry = registry
		return nil
	}
}

// WithToolNames restricts the agent to a subset of the registry. Names not
// present in the registry are ignored, so role presets can list tools that
// a particular deployment does not wire.
func WithToolNames(names ...string) Option {
	return func(a *Agent) error {
		a.toolNames = append([]string(nil), names...)
		return nil
	}
}

// WithMaxIterations bounds the think/act/observe loop.
func WithMaxIterations(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return errors.Newf(errors.CodeValidation, "max iterations must be at least 1")
		}
		a.maxIterations = n
		return nil
	}
}

// WithMalformedRetries sets how often an empty or unparseable response is
// retried before the run fails. Zero disables retries.
func WithMalformedRetries(n int) Option {
	return func(a *Agent) error {
		if n < 0 {
			return errors.Newf(errors.CodeValidation, "malformed retries must not be negative")
		}
		a.malformedRetries = n
		return nil
	}
}

// WithRetry sets the retry policy for provider calls.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(a *Agent) error {
		a.retry = rc
		return nil
	}
}

// WithMemory attaches a long-term memory backend. The agent consults it
// before the run and stores the outcome after a successful one.
func WithMemory(mem core.Memory) Option {
	return func(a *Agent) error {
		a.memory = mem
		return nil
	}
}

// WithConversation attaches a conversation store so runs in the same
// session share message history.
func WithConversation(store memory.ConversationMemory, sessionID string) Option {
	return func(a *Agent) error {
		if store != nil && sessionID == "" {
			return errors.Newf(errors.CodeValidation, "conversation session id is required")
		}
		a.conversation = store
		a.sessionID = sessionID
		return nil
	}
}

// WithEmitter sets the receiver for semantic run events.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(a *Agent) error {
		if emitter == nil {
			emitter = core.NoopEventEmitter{}
		}
		a.emitter = emitter
		return nil
	}
}

// WithManifest sets the role manifest returned by RoleManifest.
func WithManifest(manifest core.RoleManifest) Option {
	return func(a *Agent) error {
		a.manifest = &manifest
		return nil
	}
}

// WithGuardrails screens the task before the run and filters the answer
// after it. A nil set disables screening.
func WithGuardrails(g *guardrails.Guardrails) Option {
	return func(a *Agent) error {
		a.guards = g
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Role returns the agent role.
func (a *Agent) Role() string { return a.role }

// Model returns the configured model name.
func (a *Agent) Model() string { return a.model }

// Memory returns the attached memory backend, if any.
func (a *Agent) Memory() core.Memory { return a.memory }

// RoleManifest describes the agent for discovery and logging surfaces.
// The returned manifest is a copy; callers cannot mutate the agent's own.
func (a *Agent) RoleManifest() core.RoleManifest {
	if a.manifest != nil {
		return a.manifest.Clone()
	}
	return core.RoleManifest{Role: a.role}
}

// resolveTools returns the registry the run draws from, restricted to the
// configured subset when one is set.
func (a *Agent) resolveTools() *tools.Registry {
	if a.registry == nil {
		return tools.NewRegistry()
	}
	if len(a.toolNames) > 0 {
		return a.registry.Subset(a.toolNames...)
	}
	return a.registry
}

// resolveMemory prefers the agent's own memory and falls back to one
// carried in the context, so the orchestrator can share a backend across
// delegated agents.
func (a *Agent) resolveMemory(ctx context.Context) core.Memory {
	if a.memory != nil {
		return a.memory
	}
	if mem, ok := core.MemoryFromContext(ctx); ok {
		return mem
	}
	return nil
}

// instanceID appends a short random suffix so concurrently delegated
// agents of the same role stay distinguishable in logs and audit records.
func instanceID(role string) string {
	return role + "-" + uuid.NewString()[:8]
}

var _ core.RoleManifestProvider = (*Agent)(nil)
