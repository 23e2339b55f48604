package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/agent"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// planDocument is the JSON shape the planner is contracted to emit.
type planDocument struct {
	Goal  string `json:"goal"`
	Tasks []struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Role        string   `json:"role"`
		DependsOn   []string `json:"depends_on"`
	} `json:"tasks"`
}

// parsePlanOutput turns raw planner output into a validated plan. JSON is
// tried first: fenced blocks, the whole reply, then the first balanced
// object literal. Replies that ignore the JSON contract fall back to the
// numbered STEPS / DEPENDENCIES layout. Output with no parsable plan at
// all is a malformed response; structural violations inside a parsed plan
// (cycles, unknown dependencies, unknown roles) surface as INVALID_PLAN.
func parsePlanOutput(goal, text string) (*Plan, error) {
	for _, candidate := range jsonCandidates(text) {
		var doc planDocument
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			continue
		}
		if len(doc.Tasks) == 0 {
			continue
		}
		return planFromDocument(goal, doc)
	}

	plan, err := parseLineFormat(goal, text)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return plan, nil
	}

	return nil, errors.Newf(errors.CodeMalformedResponse, "planner output contains no parsable plan").
		WithContext("output_size", len(text))
}

func planFromDocument(goal string, doc planDocument) (*Plan, error) {
	if goal == "" {
		goal = doc.Goal
	}
	tasks := make([]*core.Task, 0, len(doc.Tasks))
	for _, dt := range doc.Tasks {
		role := strings.ToLower(strings.TrimSpace(dt.Role))
		if role == "" {
			role = agent.RoleCoder
		}
		deps := make([]string, 0, len(dt.DependsOn))
		for _, dep := range dt.DependsOn {
			if dep = strings.TrimSpace(dep); dep != "" {
				deps = append(deps, dep)
			}
		}
		tasks = append(tasks, &core.Task{
			ID:          strings.TrimSpace(dt.ID),
			Description: strings.TrimSpace(dt.Description),
			Role:        role,
			DependsOn:   deps,
			Status:      core.TaskStatusPending,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return NewPlan(goal, tasks...)
}

// jsonCandidates collects payloads worth handing to the JSON decoder, in
// decreasing order of confidence.
func jsonCandidates(text string) []string {
	var out []string
	out = append(out, fencedBlocks(text)...)
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") {
		out = append(out, trimmed)
	}
	if obj, ok := firstJSONObject(text); ok {
		out = append(out, obj)
	}
	return out
}

// fencedBlocks returns the bodies of ``` fences whose content looks like a
// JSON object. The language tag on the opening fence is ignored.
func fencedBlocks(text string) []string {
	var out []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return out
		}
		rest = rest[open+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		closing := strings.Index(rest, "```")
		if closing < 0 {
			return out
		}
		body := strings.TrimSpace(rest[:closing])
		if strings.HasPrefix(body, "{") {
			out = append(out, body)
		}
		rest = rest[closing+3:]
	}
}

// firstJSONObject scans for the first balanced object literal, honoring
// string quoting so braces inside descriptions do not end the object.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var (
	stepLineRe = regexp.MustCompile(`^(\d+)[.)]\s+(.+)$`)
	stepNumRe  = regexp.MustCompile(`[Ss]tep\s+(\d+)`)
	headerRe   = regexp.MustCompile(`^[A-Z][A-Z ]*:`)
)

// parseLineFormat reads the numbered plan layout some models produce
// instead of JSON:
//
//	STEPS:
//	1. First step
//	2. Second step
//	DEPENDENCIES:
//	- Step 2 requires: Step 1
//
// Steps become coder tasks t1..tN; dependency lines resolve step numbers.
// A nil plan with nil error means the text holds no steps at all; a
// non-nil error means steps were found but form an invalid plan.
func parseLineFormat(goal, text string) (*Plan, error) {
	type section int
	const (
		sectionNone section = iota
		sectionSteps
		sectionDeps
	)

	descriptions := map[string]string{}
	var order []string
	deps := map[string][]string{}

	current := sectionNone
	lastStep := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToUpper(line) {
		case "STEPS:":
			current = sectionSteps
			continue
		case "DEPENDENCIES:":
			current = sectionDeps
			continue
		}
		if headerRe.MatchString(line) {
			current = sectionNone
			continue
		}

		switch current {
		case sectionSteps:
			if m := stepLineRe.FindStringSubmatch(line); m != nil {
				lastStep = "t" + m[1]
				descriptions[lastStep] = m[2]
				order = append(order, lastStep)
			} else if lastStep != "" {
				// Wrapped continuation of the previous step.
				descriptions[lastStep] += " " + line
			}
		case sectionDeps:
			nums := stepNumRe.FindAllStringSubmatch(line, -1)
			if len(nums) < 2 {
				continue
			}
			target := "t" + nums[0][1]
			for _, m := range nums[1:] {
				deps[target] = append(deps[target], "t"+m[1])
			}
		}
	}

	if len(order) == 0 {
		return nil, nil
	}

	tasks := make([]*core.Task, 0, len(order))
	for _, id := range order {
		tasks = append(tasks, &core.Task{
			ID:          id,
			Description: descriptions[id],
			Role:        agent.RoleCoder,
			DependsOn:   deps[id],
			Status:      core.TaskStatusPending,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return NewPlan(goal, tasks...)
}
