package agent

import (
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/config"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Roles the orchestrator can delegate to. Specialization is configuration
// over the same runtime: a role fixes the prompt, the output contract, and
// the tool subset, nothing else.
const (
	RolePlanner = "planner"
	RoleCoder   = "coder"
)

// KnownRole reports whether a preset exists for the role.
func KnownRole(role string) bool {
	switch role {
	case RolePlanner, RoleCoder:
		return true
	}
	return false
}

var (
	plannerToolNames = []string{"file_read", "list_directory", "web_search"}
	coderToolNames   = []string{"file_read", "file_write", "list_directory", "code_execute"}
)

const plannerInstructions = `You are an expert system architect and planner.

Your role is to analyze a goal and produce a detailed, actionable execution plan.

When given a goal:
1. Analyze the requirements and constraints.
2. Break the goal down into clear, self-contained tasks.
3. Identify dependencies between tasks and order them accordingly.
4. Assign each task the role best suited to execute it.
5. Keep plans as small as the goal allows; do not pad them with busywork.

Planning is mostly reasoning. Use the read-only tools to inspect existing
files when the goal refers to them; otherwise answer directly.`

const plannerContract = `Respond with a single JSON object, optionally inside a json code fence:

{"tasks": [
  {"id": "t1", "description": "what to do", "role": "coder", "depends_on": []},
  {"id": "t2", "description": "the next step", "role": "coder", "depends_on": ["t1"]}
]}

Rules:
- ids are short and unique within the plan
- depends_on lists the ids of tasks that must complete first
- role is "planner" or "coder"
- put everything an executing agent needs into the description; agents do
  not see each other's tasks
- no commentary outside the JSON object`

const coderInstructions = `You are an expert senior software developer.

Your role is to implement tasks as high-quality, production-ready code.

When implementing a task:
1. Use list_directory to understand the project structure.
2. Use file_read to understand existing code before changing it.
3. Follow the patterns and conventions the codebase already uses.
4. Use file_write to create or modify files.
5. Handle errors and edge cases deliberately, not as an afterthought.

Prefer clear names and small functions. Comment only where the code cannot
speak for itself.`

const coderContract = `When the work is done, reply with a short summary of what you changed and
why, naming every file you touched. Do not paste whole files back into the
answer; the files themselves are the deliverable.`

// PlannerAgent builds the planning preset: read-only tools and a JSON plan
// contract the orchestrator can parse.
func PlannerAgent(provider llm.Provider, registry *tools.Registry, cfg config.AgentConfig, opts ...Option) (*Agent, error) {
	base := []Option{
		WithRole(RolePlanner),
		WithInstructions(plannerInstructions),
		WithOutputContract(plannerContract),
		WithTools(registry),
		WithToolNames(plannerToolNames...),
		WithMaxIterations(normalizeIterations(cfg.MaxIterations)),
		WithMalformedRetries(normalizeRetries(cfg.MalformedRetries)),
		WithManifest(core.RoleManifest{
			Role:           RolePlanner,
			Responsibility: "Decompose goals into ordered, dependency-aware task plans",
			Inputs:         []string{"goal"},
			Outputs:        []string{"plan"},
			Constraints:    map[string]any{"tools": "read-only"},
		}),
	}
	return New(instanceID(RolePlanner), provider, append(base, opts...)...)
}

// CoderAgent builds the implementation preset: file and execution tools and
// a summary contract.
func CoderAgent(provider llm.Provider, registry *tools.Registry, cfg config.AgentConfig, opts ...Option) (*Agent, error) {
	base := []Option{
		WithRole(RoleCoder),
		WithInstructions(coderInstructions),
		WithOutputContract(coderContract),
		WithTools(registry),
		WithToolNames(coderToolNames...),
		WithMaxIterations(normalizeIterations(cfg.MaxIterations)),
		WithMalformedRetries(normalizeRetries(cfg.MalformedRetries)),
		WithManifest(core.RoleManifest{
			Role:           RoleCoder,
			Responsibility: "Implement tasks by reading and writing project files",
			Inputs:         []string{"task"},
			Outputs:        []string{"summary"},
			Constraints:    map[string]any{"tools": "file, execution"},
		}),
	}
	return New(instanceID(RoleCoder), provider, append(base, opts...)...)
}

// NewForRole builds the preset agent for a role. The orchestrator goes
// through here when delegating plan tasks.
func NewForRole(role string, provider llm.Provider, registry *tools.Registry, cfg config.AgentConfig, opts ...Option) (*Agent, error) {
	switch role {
	case RolePlanner:
		return PlannerAgent(provider, registry, cfg, opts...)
	case RoleCoder:
		return CoderAgent(provider, registry, cfg, opts...)
	default:
		return nil, errors.Newf(errors.CodeValidation, "no agent preset for role %q", role).
			WithContext("role", role)
	}
}

// Invalid config values fall back to the package defaults so presets work
// without a loaded config file. Zero malformed retries is a valid setting
// and passes through.
func normalizeIterations(n int) int {
	if n < 1 {
		return DefaultMaxIterations
	}
	return n
}

func normalizeRetries(n int) int {
	if n < 0 {
		return DefaultMalformedRetries
	}
	return n
}
