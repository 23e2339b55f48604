// Command haf runs goals through the hierarchical agent framework: it
// decomposes a goal into a plan, executes the plan with role agents, and
// prints the synthesized answer. Secondary commands inspect the plan,
// the tool registry, audit records, and component health without running
// anything.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

const defaultTimeout = 5 * time.Minute

// globalOptions holds the persistent flag values shared by every
// subcommand.
type globalOptions struct {
	ConfigPath string
	Profile    string
	Sets       []string
	Timeout    time.Duration
	JSON       bool
}

var global globalOptions

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "haf",
		Short: "Hierarchical agent framework CLI",
		Long: `haf decomposes a goal into a task plan, executes the plan with
role agents under bounded concurrency, and prints the synthesized answer.
Secondary commands inspect the plan, the tool registry, audit records,
and component health without running anything.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&global.ConfigPath, "config", os.Getenv("HAF_CONFIG"), "path to config YAML")
	flags.StringVar(&global.Profile, "profile", "", "overlay config.<name>.yaml on the base config")
	flags.StringArrayVar(&global.Sets, "set", nil, "override a config key (key=value, repeatable)")
	flags.DurationVar(&global.Timeout, "timeout", defaultTimeout, "overall command timeout")
	flags.BoolVar(&global.JSON, "json", false, "JSON output")

	cmd.AddCommand(
		newRunCmd(),
		newPlanCmd(),
		newToolsCmd(),
		newHealthCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if global.JSON {
				return printJSON(map[string]string{"version": version})
			}
			fmt.Println(version)
			return nil
		},
	}
}
