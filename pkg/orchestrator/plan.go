// Package orchestrator turns one top-level goal into a synthesized result.
// Decompose asks a planner agent for a dependency-ordered plan, ExecutePlan
// runs the plan in bounded concurrent waves through role agents, and
// Synthesize combines the completed results into the final answer.
package orchestrator

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/agent"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// Plan is an acyclic set of tasks produced by decomposition. Task order is
// the declaration order of the planner output; the scheduler keeps it as the
// tie-break within a wave, so an identical plan always schedules identically.
// The plan and its task statuses are owned by the scheduling loop for the
// duration of one run; agent runs never touch them.
type Plan struct {
	ID    string       `json:"id" yaml:"id"`
	Goal  string       `json:"goal" yaml:"goal"`
	Tasks []*core.Task `json:"tasks" yaml:"tasks"`
}

// NewPlan builds a validated plan over the given tasks.
func NewPlan(goal string, tasks ...*core.Task) (*Plan, error) {
	p := &Plan{
		ID:    uuid.NewString(),
		Goal:  goal,
		Tasks: tasks,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects plans the scheduler cannot run: missing or duplicate
// task ids, unknown roles, unresolvable dependencies, and dependency
// cycles. Cycles are never repaired. Tasks without a status are
// normalized to pending so parsed plans start schedulable.
func (p *Plan) Validate() error {
	if p == nil || len(p.Tasks) == 0 {
		return errors.Newf(errors.CodeInvalidPlan, "plan has no tasks")
	}
	byID := make(map[string]*core.Task, len(p.Tasks))
	for _, t := range p.Tasks {
		if t == nil || t.ID == "" {
			return errors.Newf(errors.CodeInvalidPlan, "plan contains a task without an id")
		}
		if _, dup := byID[t.ID]; dup {
			return errors.Newf(errors.CodeInvalidPlan, "duplicate task id %q", t.ID)
		}
		if strings.TrimSpace(t.Description) == "" {
			return errors.Newf(errors.CodeInvalidPlan, "task %q has no description", t.ID)
		}
		if !agent.KnownRole(t.Role) {
			return errors.Newf(errors.CodeInvalidPlan, "task %q has unknown role %q", t.ID, t.Role)
		}
		if t.Status == "" {
			t.Status = core.TaskStatusPending
		}
		byID[t.ID] = t
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return errors.Newf(errors.CodeInvalidPlan, "task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	if id, cyclic := p.findCycle(); cyclic {
		return errors.Newf(errors.CodeInvalidPlan, "dependency cycle through task %q", id)
	}
	return nil
}

// findCycle runs a depth-first search with white/gray/black coloring over
// the dependency edges. Reaching a gray node is a back edge and therefore
// a cycle.
func (p *Plan) findCycle() (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(p.Tasks))
	deps := p.depsByID()

	var found string
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range deps[id] {
			switch colors[dep] {
			case gray:
				found = dep
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, t := range p.Tasks {
		if colors[t.ID] == white && visit(t.ID) {
			return found, true
		}
	}
	return "", false
}

// Task returns the task with the given id, or nil.
func (p *Plan) Task(id string) *core.Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ready returns pending tasks whose dependencies have all completed, in
// declaration order.
func (p *Plan) ready() []*core.Task {
	byID := make(map[string]*core.Task, len(p.Tasks))
	for _, t := range p.Tasks {
		byID[t.ID] = t
	}
	var out []*core.Task
	for _, t := range p.Tasks {
		if t.Status != core.TaskStatusPending {
			continue
		}
		satisfied := true
		for _, dep := range t.DependsOn {
			if byID[dep].Status != core.TaskStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			out = append(out, t)
		}
	}
	return out
}

// AllTerminal reports whether every task has completed or failed.
func (p *Plan) AllTerminal() bool {
	for _, t := range p.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// Completed returns completed tasks in declaration order.
func (p *Plan) Completed() []*core.Task {
	var out []*core.Task
	for _, t := range p.Tasks {
		if t.Status == core.TaskStatusCompleted {
			out = append(out, t)
		}
	}
	return out
}

// FailedIDs returns the ids of failed tasks, sorted.
func (p *Plan) FailedIDs() []string {
	var out []string
	for _, t := range p.Tasks {
		if t.Status == core.TaskStatusFailed {
			out = append(out, t.ID)
		}
	}
	sort.Strings(out)
	return out
}

// depsByID maps each task to its dependency ids.
func (p *Plan) depsByID() map[string][]string {
	deps := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		deps[t.ID] = t.DependsOn
	}
	return deps
}

// dependents maps each task to the tasks that directly depend on it, in
// declaration order.
func (p *Plan) dependents() map[string][]string {
	out := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			out[dep] = append(out[dep], t.ID)
		}
	}
	return out
}

// Waves groups task ids by dependency depth: wave 0 holds tasks with no
// dependencies, wave n tasks whose longest dependency chain has length n.
// Declaration order is preserved within each wave. Assumes a validated
// (acyclic) plan.
func (p *Plan) Waves() [][]string {
	deps := p.depsByID()
	depth := make(map[string]int, len(p.Tasks))

	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, dep := range deps[id] {
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	deepest := 0
	for _, t := range p.Tasks {
		if d := depthOf(t.ID); d > deepest {
			deepest = d
		}
	}
	waves := make([][]string, deepest+1)
	for _, t := range p.Tasks {
		waves[depth[t.ID]] = append(waves[depth[t.ID]], t.ID)
	}
	return waves
}

// ParseJSON loads a plan from JSON and validates it.
func ParseJSON(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, errors.Newf(errors.CodeInvalidPlan, "empty JSON payload")
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, errors.New(errors.CodeInvalidPlan, "parse json plan", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ParseYAML loads a plan from YAML and validates it.
func ParseYAML(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, errors.Newf(errors.CodeInvalidPlan, "empty YAML payload")
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.New(errors.CodeInvalidPlan, "parse yaml plan", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// MarshalJSON serializes a plan. Use pretty for indented output.
func MarshalJSON(p *Plan, pretty bool) ([]byte, error) {
	if p == nil {
		return nil, errors.Newf(errors.CodeInvalidPlan, "plan is nil")
	}
	if pretty {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}

// MarshalYAML serializes a plan to YAML.
func MarshalYAML(p *Plan) ([]byte, error) {
	if p == nil {
		return nil, errors.Newf(errors.CodeInvalidPlan, "plan is nil")
	}
	return yaml.Marshal(p)
}
