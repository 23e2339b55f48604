package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// CodeExecuteTool runs code in an interpreter subprocess. Execution
// outcomes, including non-zero exits and timeouts, are reported in the
// result rather than as errors so the agent can read stderr and react.
//
// The subprocess is isolation in the loosest sense only: it shares the
// filesystem and network with the host. Deployments that run untrusted
// plans must disable this tool or wrap the interpreter in a sandbox.
type CodeExecuteTool struct {
	interpreter string
	timeout     time.Duration
}

// NewCodeExecute creates a code_execute tool. interpreter defaults to
// "python3" and timeout to 30s.
func NewCodeExecute(interpreter string, timeout time.Duration) *CodeExecuteTool {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CodeExecuteTool{interpreter: interpreter, timeout: timeout}
}

func (t *CodeExecuteTool) Name() string { return "code_execute" }

func (t *CodeExecuteTool) Definition() mcp.Tool {
	return tools.NewDefinition("code_execute",
		fmt.Sprintf("Executes code in an isolated %s subprocess with a %s timeout", t.interpreter, t.timeout),
		map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The code to execute",
			},
		},
		"code",
	)
}

// ResultSchema declares the execution report shape.
func (t *CodeExecuteTool) ResultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"success":   map[string]any{"type": "boolean"},
			"stdout":    map[string]any{"type": "string"},
			"stderr":    map[string]any{"type": "string"},
			"exit_code": map[string]any{"type": "integer"},
		},
	}
}

func (t *CodeExecuteTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	code, _ := args["code"].(string)

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, t.interpreter, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return map[string]any{
			"success":   false,
			"stdout":    stdout.String(),
			"stderr":    fmt.Sprintf("execution timed out after %s", t.timeout),
			"exit_code": -1,
		}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			// Interpreter missing or not startable.
			return map[string]any{
				"success":   false,
				"stdout":    "",
				"stderr":    fmt.Sprintf("failed to run %s: %v", t.interpreter, err),
				"exit_code": -1,
			}, nil
		}
	}

	return map[string]any{
		"success":   exitCode == 0,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}

var (
	_ tools.Tool          = (*CodeExecuteTool)(nil)
	_ tools.ResultSchemer = (*CodeExecuteTool)(nil)
)
