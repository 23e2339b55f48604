package orchestrator

import (
	"reflect"
	"testing"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/agent"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

func TestParsePlanOutputFencedJSON(t *testing.T) {
	text := "Here is the plan you asked for:\n\n" +
		"```json\n" +
		`{"tasks": [
			{"id": "t1", "description": "survey the codebase", "role": "Planner", "depends_on": []},
			{"id": "t2", "description": "implement the endpoint", "role": "", "depends_on": ["t1"]}
		]}` + "\n```\n\nLet me know if you need changes."

	plan, err := parsePlanOutput("build the endpoint", text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Goal != "build the endpoint" {
		t.Fatalf("goal = %q", plan.Goal)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(plan.Tasks))
	}
	if plan.Tasks[0].Role != agent.RolePlanner {
		t.Fatalf("role not normalized: %q", plan.Tasks[0].Role)
	}
	if plan.Tasks[1].Role != agent.RoleCoder {
		t.Fatalf("empty role should default to coder, got %q", plan.Tasks[1].Role)
	}
	if !reflect.DeepEqual(plan.Tasks[1].DependsOn, []string{"t1"}) {
		t.Fatalf("deps = %v", plan.Tasks[1].DependsOn)
	}
}

func TestParsePlanOutputWholeReplyJSON(t *testing.T) {
	text := `{"goal": "document the API", "tasks": [{"id": "t1", "description": "write the docs", "role": "coder"}]}`
	plan, err := parsePlanOutput("", text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Goal != "document the API" {
		t.Fatalf("goal should come from the document when absent: %q", plan.Goal)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].ID != "t1" {
		t.Fatalf("tasks = %+v", plan.Tasks)
	}
}

func TestParsePlanOutputEmbeddedJSON(t *testing.T) {
	// Braces inside string values must not end the balanced scan.
	text := `Sure. The plan object is {"tasks": [{"id": "t1", "description": "emit {\"status\": \"ok\"} from the handler", "role": "coder"}]} which covers it.`
	plan, err := parsePlanOutput("goal", text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(plan.Tasks))
	}
	if want := `emit {"status": "ok"} from the handler`; plan.Tasks[0].Description != want {
		t.Fatalf("description = %q, want %q", plan.Tasks[0].Description, want)
	}
}

func TestParsePlanOutputLineFormat(t *testing.T) {
	text := `PLAN FOR: data pipeline
GOAL: ship the pipeline

STEPS:
1. Design the schema for the events table
2. Implement the ingestion job
   with retry handling for flaky sources
3. Wire the dashboard

DEPENDENCIES:
- Step 2 requires: Step 1
- Step 3 requires: Step 1 and Step 2

CONSIDERATIONS:
- Step ordering matters for deploys
`
	plan, err := parsePlanOutput("ship the pipeline", text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(plan.Tasks))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if plan.Tasks[i].ID != want {
			t.Fatalf("task %d id = %q, want %q", i, plan.Tasks[i].ID, want)
		}
		if plan.Tasks[i].Role != agent.RoleCoder {
			t.Fatalf("line-format tasks default to coder, got %q", plan.Tasks[i].Role)
		}
	}
	if want := "Implement the ingestion job with retry handling for flaky sources"; plan.Tasks[1].Description != want {
		t.Fatalf("continuation line lost: %q", plan.Tasks[1].Description)
	}
	if !reflect.DeepEqual(plan.Tasks[1].DependsOn, []string{"t1"}) {
		t.Fatalf("t2 deps = %v", plan.Tasks[1].DependsOn)
	}
	if !reflect.DeepEqual(plan.Tasks[2].DependsOn, []string{"t1", "t2"}) {
		t.Fatalf("t3 deps = %v", plan.Tasks[2].DependsOn)
	}
}

func TestParsePlanOutputLineFormatUnknownStep(t *testing.T) {
	text := "STEPS:\n1. Only step\n\nDEPENDENCIES:\n- Step 1 requires: Step 9\n"
	_, err := parsePlanOutput("goal", text)
	if err == nil {
		t.Fatal("expected invalid plan error")
	}
	if !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("error code = %v, want INVALID_PLAN", errors.CodeOf(err))
	}
}

func TestParsePlanOutputCycleIsInvalid(t *testing.T) {
	text := `{"tasks": [
		{"id": "t1", "description": "first", "role": "coder", "depends_on": ["t2"]},
		{"id": "t2", "description": "second", "role": "coder", "depends_on": ["t1"]}
	]}`
	_, err := parsePlanOutput("goal", text)
	if !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("error = %v, want INVALID_PLAN", err)
	}
}

func TestParsePlanOutputUnknownRoleIsInvalid(t *testing.T) {
	text := `{"tasks": [{"id": "t1", "description": "research", "role": "researcher"}]}`
	_, err := parsePlanOutput("goal", text)
	if !errors.HasCode(err, errors.CodeInvalidPlan) {
		t.Fatalf("error = %v, want INVALID_PLAN", err)
	}
}

func TestParsePlanOutputGarbage(t *testing.T) {
	_, err := parsePlanOutput("goal", "I could not come up with a plan, sorry.")
	if err == nil {
		t.Fatal("expected malformed response error")
	}
	if !errors.HasCode(err, errors.CodeMalformedResponse) {
		t.Fatalf("error code = %v, want MALFORMED_RESPONSE", errors.CodeOf(err))
	}
}

func TestParsePlanOutputEmptyTasksFallsThrough(t *testing.T) {
	// A JSON object without tasks is not a plan; with nothing else in the
	// reply the output is malformed, not an empty valid plan.
	_, err := parsePlanOutput("goal", `{"tasks": []}`)
	if !errors.HasCode(err, errors.CodeMalformedResponse) {
		t.Fatalf("error = %v, want MALFORMED_RESPONSE", err)
	}
}
