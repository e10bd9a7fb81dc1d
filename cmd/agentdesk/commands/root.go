// Package commands implements the agentdesk CLI commands using cobra.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/app"
	"github.com/agentdesk/agentdesk/internal/application/executor"
	"github.com/agentdesk/agentdesk/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentdesk",
		Short: "Route tasks to AI agents and run agent workflows",
		Long: `agentdesk keeps a queue of tasks, routes each one to a specialised agent,
dispatches them through the agent executors, and runs multi-step workflows
built from agent, condition, delay and action nodes.

Configuration comes from environment variables or a --config file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (yaml, json or toml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDispatchCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newWorkflowCmd())
	root.AddCommand(newAgentsCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// openApp builds the application for one-shot commands; the scheduler stays off.
func openApp(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg.DispatchSchedule = ""
	logger := app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, stores, executor.Ports{}, logger)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}
	return a, func() { _ = a.Close(context.Background()) }, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
