package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sheetpilot/sheetpilot/internal/agent"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/providers"
	"github.com/sheetpilot/sheetpilot/internal/shared/cmdutils"
)

const singleMessageTimeout = 5 * time.Minute

var (
	chatMessage  string
	chatProvider string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the spreadsheet assistant",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "AI backend (anthropic, openai, gemini, langchain)")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	container, err := buildContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	orch := container.Orchestrator()
	if chatProvider != "" {
		orch.SetProvider(providerName(chatProvider))
	}

	if chatMessage != "" {
		return runSingleMessage(orch)
	}
	return runInteractive(orch, container.ToolClient(), container.Monitor())
}

// runSingleMessage sends one message and prints the reply.
func runSingleMessage(orch *agent.Orchestrator) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, singleMessageTimeout)
	defer cancelTimeout()

	orch.OnProgress(printProgress)
	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	reply, err := orch.ProcessMessage(ctx, chatMessage)
	if err != nil {
		return fmt.Errorf("%s", agent.UserMessage(err))
	}
	cmdutils.PrintResponse(reply)
	return nil
}

// runInteractive runs the REPL next to the tool-server health monitor. The
// first of the two to finish stops the other.
func runInteractive(orch *agent.Orchestrator, client *mcp.Client, monitor *mcp.Monitor) error {
	fmt.Printf("%s Interactive mode with %s (type 'exit' or Ctrl+C to quit, /reset to start over, /restart to restart the tool server)\n\n", logo, orch.Provider())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := monitor.Start(); err != nil {
			return fmt.Errorf("start health monitor: %w", err)
		}
		<-ctx.Done()
		monitor.Stop()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return repl(ctx, orch, client)
	})

	err := g.Wait()
	fmt.Println("\nGoodbye!")
	return err
}

func repl(ctx context.Context, orch *agent.Orchestrator, client *mcp.Client) error {
	rl, err := readline.New("You: ")
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()
	// Closing the instance unblocks a pending Readline.
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	orch.OnProgress(printProgress)
	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		line := strings.TrimSpace(input)
		switch {
		case line == "":
			continue
		case exitCommands[strings.ToLower(line)]:
			return nil
		case line == "/reset":
			orch.Reset()
			fmt.Println("  ↳ conversation cleared")
			continue
		case line == "/restart":
			// Clears a Failed state left by an exhausted restart budget.
			if err := client.Reinitialize(ctx); err != nil {
				fmt.Printf("  ↳ %s\n", agent.UserMessage(fmt.Errorf("restart tool server: %w", err)))
			} else {
				fmt.Println("  ↳ tool server restarted")
			}
			continue
		case strings.HasPrefix(line, "/provider"):
			if name := strings.TrimSpace(strings.TrimPrefix(line, "/provider")); name != "" {
				orch.SetProvider(providerName(name))
			}
			fmt.Printf("  ↳ using %s\n", orch.Provider())
			continue
		}

		reply, err := orch.ProcessMessage(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("\n%s %s\n\n", logo, agent.UserMessage(err))
			continue
		}
		cmdutils.PrintResponse(reply)
	}
}

// providerName accepts a backend name or a model name such as "gpt-4o".
func providerName(s string) string {
	if providers.FindByName(s) != nil {
		return s
	}
	if spec := providers.FindByModel(s); spec != nil {
		return spec.Name
	}
	return s
}

func printProgress(hint string) {
	fmt.Printf("  ↳ %s\n", hint)
}
