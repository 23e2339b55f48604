package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/orchestrator"
)

// defaultAuditLimit bounds the table when no --limit is given. --limit 0
// lifts the bound.
const defaultAuditLimit = 50

// newAuditCmd lists recorded audit events. Only useful with the sqlite
// audit store; the in-memory store starts empty in a fresh process.
func newAuditCmd() *cobra.Command {
	var filter orchestrator.AuditFilter

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()

			a, err := buildApp(ctx, appOptions{audit: true})
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.audit.List(ctx, filter)
			if err != nil {
				return err
			}

			if global.JSON {
				return printJSON(events)
			}

			t := newTable("PLAN", "RUN", "TASK", "ROLE", "STATUS", "ERROR")
			for _, ev := range events {
				t.row(ev.PlanID, ev.RunID, ev.TaskID, ev.Role, ev.Status, clip(ev.Error, 50))
			}
			if err := t.flush(); err != nil {
				return err
			}
			fmt.Printf("%d events\n", len(events))
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.PlanID, "plan", "", "filter by plan id")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "filter by run id")
	cmd.Flags().StringVar(&filter.TaskID, "task", "", "filter by task id")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by task status")
	cmd.Flags().IntVar(&filter.Limit, "limit", defaultAuditLimit, "max events to list (0 lifts the bound)")
	return cmd
}
