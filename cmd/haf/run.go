package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/orchestrator"
)

type runResult struct {
	Goal        string                    `json:"goal"`
	Result      *core.AgentResult         `json:"result,omitempty"`
	Delegations []orchestrator.Delegation `json:"delegations,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	var (
		quiet           bool
		showDelegations bool
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Decompose a goal, execute the plan, print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.TrimSpace(strings.Join(args, " "))
			if goal == "" {
				return fmt.Errorf("goal must not be blank")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()

			a, err := buildApp(ctx, appOptions{provider: true, memory: true, mcp: true, audit: true})
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []orchestrator.Option{orchestrator.WithAuditStore(a.audit)}
			if !global.JSON && !quiet {
				opts = append(opts, orchestrator.WithEmitter(progressEmitter(os.Stderr)))
			}
			orch, err := orchestrator.New(a.provider, a.registry, a.cfg, opts...)
			if err != nil {
				return err
			}

			result, runErr := orch.Execute(a.runContext(ctx), goal)

			if global.JSON {
				out := runResult{Goal: goal, Result: result}
				if showDelegations {
					out.Delegations = orch.DelegationLog()
				}
				if runErr != nil {
					out.Error = runErr.Error()
				}
				if err := printJSON(out); err != nil {
					return err
				}
				return runErr
			}

			if runErr != nil {
				if showDelegations {
					printDelegations(orch.DelegationLog())
				}
				return runErr
			}
			fmt.Println(result.Answer)
			if showDelegations {
				printDelegations(orch.DelegationLog())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress progress events on stderr")
	cmd.Flags().BoolVar(&showDelegations, "show-delegations", false, "print the delegation log after the answer")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "plan <goal>",
		Short: "Decompose a goal and print the plan without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.TrimSpace(strings.Join(args, " "))
			if goal == "" {
				return fmt.Errorf("goal must not be blank")
			}
			if global.JSON {
				format = "json"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()

			a, err := buildApp(ctx, appOptions{provider: true, audit: true})
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := orchestrator.New(a.provider, a.registry, a.cfg, orchestrator.WithAuditStore(a.audit))
			if err != nil {
				return err
			}

			plan, err := orch.Decompose(ctx, goal)
			if err != nil {
				return err
			}

			var payload []byte
			switch format {
			case "yaml":
				payload, err = orchestrator.MarshalYAML(plan)
			case "json":
				payload, err = orchestrator.MarshalJSON(plan, true)
			default:
				return fmt.Errorf("unknown plan format %q", format)
			}
			if err != nil {
				return err
			}
			fmt.Println(strings.TrimRight(string(payload), "\n"))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "plan output format: yaml or json")
	return cmd
}

// progressEmitter narrates plan execution on w. It only handles the
// orchestrator event types; agent-level events pass through silently.
func progressEmitter(w io.Writer) core.EventEmitter {
	return core.EmitterFunc(func(_ context.Context, event core.Event) {
		switch event.Type {
		case core.EventPlanCreated:
			fmt.Fprintf(w, "plan %v: %v task(s)\n", event.Payload["plan_id"], event.Payload["tasks"])
		case core.EventTaskStarted:
			fmt.Fprintf(w, "[wave %v] %s -> %v\n", event.Payload["wave"], event.TaskID, event.Payload["role"])
		case core.EventTaskCompleted:
			fmt.Fprintf(w, "[wave %v] %s done\n", event.Payload["wave"], event.TaskID)
		case core.EventTaskFailed:
			fmt.Fprintf(w, "[wave %v] %s failed: %v\n", event.Payload["wave"], event.TaskID, event.Payload["reason"])
		case core.EventSynthesis:
			fmt.Fprintf(w, "synthesizing answer for plan %v\n", event.Payload["plan_id"])
		}
	})
}

func printDelegations(log []orchestrator.Delegation) {
	if len(log) == 0 {
		return
	}
	t := newTable("AGENT", "TASK", "OK", "ERROR")
	for _, d := range log {
		t.row(d.Agent, clip(d.Task, 60), fmt.Sprintf("%t", d.Success), clip(d.Error, 40))
	}
	if err := t.flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
