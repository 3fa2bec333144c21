package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheetpilot/sheetpilot/internal/agent"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/shared/llmutils"
)

var toolArgs string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call the spreadsheet tool server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the server exposes",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call NAME",
	Short: "Call one tool directly",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsCall,
}

func init() {
	toolsCallCmd.Flags().StringVar(&toolArgs, "args", "{}", "Tool arguments as a JSON object")
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}

// withToolClient starts the tool server, runs fn and shuts the server down.
func withToolClient(fn func(ctx context.Context, c *mcp.Client) error) error {
	container, err := buildContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := container.ToolClient()
	if err := client.EnsureReady(ctx); err != nil {
		container.Logger().Error("toolserver.start_failed", "error", err.Error())
		return fmt.Errorf("%s", agent.UserMessage(fmt.Errorf("start tool server: %w", err)))
	}
	return fn(ctx, client)
}

func runToolsList(_ *cobra.Command, _ []string) error {
	return withToolClient(func(ctx context.Context, c *mcp.Client) error {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		fmt.Printf("%s %d tools\n\n", logo, len(tools))
		for _, t := range tools {
			fmt.Printf("  %-28s %s\n", t.Name, llmutils.Truncate(t.Description, 80))
		}
		return nil
	})
}

func runToolsCall(_ *cobra.Command, args []string) error {
	var input map[string]any
	if err := json.Unmarshal([]byte(toolArgs), &input); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	return withToolClient(func(ctx context.Context, c *mcp.Client) error {
		out, err := c.CallTool(ctx, args[0], input)
		if err != nil {
			// The tool's own message is already user-facing.
			if mcp.IsToolError(err) {
				return err
			}
			return fmt.Errorf("call %s: %w", args[0], err)
		}
		fmt.Println(out)
		return nil
	})
}
