package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/providers"
)

var statusProbe bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sheetpilot status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Start the tool server and report its health")
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s sheetpilot Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	ws := cfg.WorkspacePath()
	fmt.Printf("Workspace: %s %s\n", ws, mark(ws))
	fmt.Printf("Provider:  %s\n\n", cfg.Agents.Defaults.Provider)

	fmt.Println("Providers:")
	for _, spec := range providers.PROVIDERS {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		key := spec.APIKey(p.APIKey)
		switch {
		case key != "":
			source := ""
			if p.APIKey == "" {
				source = " (from $" + spec.EnvKey + ")"
			}
			fmt.Printf("  %-30s ✓ %s%s  model=%s\n", spec.Label(), logging.RedactValue(key), source, p.Model)
		case spec.KeyOptional && p.APIBase != "":
			fmt.Printf("  %-30s ✓ %s  model=%s\n", spec.Label(), p.APIBase, p.Model)
		default:
			fmt.Printf("  %-30s (not set)\n", spec.Label())
		}
		if len(p.ExtraHeaders) > 0 {
			fmt.Printf("  %-30s headers=%v\n", "", logging.RedactHeaders(p.ExtraHeaders))
		}
	}

	ts := cfg.ToolServer
	fmt.Println("\nTool server:")
	fmt.Printf("  primary:   %s\n", commandLine(ts.Primary.Command, ts.Primary.Args))
	for _, fb := range ts.Fallbacks {
		fmt.Printf("  fallback:  %s\n", commandLine(fb.Command, fb.Args))
	}
	if ts.AutoInstall && ts.InstallCommand != "" {
		fmt.Printf("  install:   %s\n", ts.InstallCommand)
	}
	fmt.Printf("  restarts:  max %d, auto=%v\n", ts.MaxRestarts, ts.AutoRestart)

	if !statusProbe {
		return nil
	}
	return probeToolServer()
}

func probeToolServer() error {
	return withToolClient(func(ctx context.Context, c *mcp.Client) error {
		health := "ok"
		if err := c.HealthCheck(ctx); err != nil {
			health = err.Error()
		}
		status := c.Status()
		keys := make([]string, 0, len(status))
		for k := range status {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("\nProbe:      health=%s\n", health)
		for _, k := range keys {
			fmt.Printf("  %-14s %v\n", k+":", status[k])
		}
		return nil
	})
}

func mark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}

func commandLine(command string, args []string) string {
	return strings.TrimSpace(command + " " + strings.Join(args, " "))
}
