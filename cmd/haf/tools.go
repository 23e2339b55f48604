package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/agent"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type healthComponent struct {
	Component string            `json:"component"`
	Status    core.HealthStatus `json:"status"`
	Message   string            `json:"message,omitempty"`
}

type healthReport struct {
	Status     core.HealthStatus `json:"status"`
	Components []healthComponent `json:"components"`
}

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools, including those discovered over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()

			// No provider here: listing tools should work without model credentials.
			a, err := buildApp(ctx, appOptions{memory: true, mcp: true})
			if err != nil {
				return err
			}
			defer a.Close()

			infos := make([]toolInfo, 0, a.registry.Len())
			for _, name := range a.registry.Names() {
				info := toolInfo{Name: name}
				if tool, ok := a.registry.Get(name); ok {
					info.Description = tool.Definition().Description
				}
				infos = append(infos, info)
			}

			if global.JSON {
				return printJSON(infos)
			}

			t := newTable("NAME", "DESCRIPTION")
			for _, info := range infos {
				t.row(info.Name, clip(info.Description, 80))
			}
			return t.flush()
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check provider, memory, and MCP server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), global.Timeout)
			defer cancel()

			a, err := buildApp(ctx, appOptions{provider: true, memory: true, mcp: true})
			if err != nil {
				return err
			}
			defer a.Close()

			health := core.NewHealthRegistry()
			health.Register("provider", agent.NewProviderHealthChecker(a.cfg.LLM.Provider, func(ctx context.Context) error {
				_, err := a.provider.Chat(ctx, llm.ChatRequest{
					Model:     a.cfg.LLM.Model,
					Messages:  []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
					MaxTokens: 1,
				})
				return err
			}))
			if a.memory != nil {
				health.Register("memory", agent.NewMemoryHealthChecker(a.cfg.Memory.Provider, a.memory))
			}
			for _, server := range a.cfg.MCP.Servers {
				name := server.Name
				health.Register("mcp:"+name, agent.NewMCPHealthChecker(name, func(ctx context.Context) (int, error) {
					client, err := a.pool.Get(ctx, name)
					if err != nil {
						return 0, err
					}
					defer a.pool.Release(name)
					list, err := client.ListTools(ctx)
					if err != nil {
						return 0, err
					}
					return len(list), nil
				}))
			}

			results, overall := health.CheckAll(ctx)

			if global.JSON {
				report := healthReport{Status: overall, Components: make([]healthComponent, 0, len(results))}
				for _, res := range results {
					report.Components = append(report.Components, healthComponent{
						Component: res.Component,
						Status:    res.Status,
						Message:   res.Message,
					})
				}
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				t := newTable("COMPONENT", "STATUS", "MESSAGE")
				for _, res := range results {
					t.row(res.Component, string(res.Status), clip(res.Message, 60))
				}
				if err := t.flush(); err != nil {
					return err
				}
				fmt.Printf("overall: %s\n", overall)
			}

			if overall == core.HealthUnhealthy {
				return fmt.Errorf("one or more components unhealthy")
			}
			return nil
		},
	}
}
