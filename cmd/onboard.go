package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and workspace",
	RunE:  runOnboard,
}

const toolServerTemplate = `# Tried before the commands in config.json, top to bottom.
# command: python
# args: ["-m", "excel_mcp", "stdio"]
# env:
#   EXCEL_FILES_PATH: ~/.sheetpilot/workspace
# fallbacks:
#   - command: uvx
#     args: ["excel-mcp-server", "stdio"]
`

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	if _, err := os.Stat(cfgPath); err == nil {
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	def := config.DefaultConfig()
	workspace := def.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	discovery := filepath.Join(config.DataDir(), mcp.DiscoveryFile)
	if _, err := os.Stat(discovery); os.IsNotExist(err) {
		if err := os.WriteFile(discovery, []byte(toolServerTemplate), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", mcp.DiscoveryFile, err)
		}
		fmt.Printf("✓ Tool server overrides at %s\n", discovery)
	}

	fmt.Printf("\n%s sheetpilot is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add an API key to %s (or export ANTHROPIC_API_KEY)\n", cfgPath)
	fmt.Println("  2. Install the tool server: pip install --user excel-mcp-server")
	fmt.Printf("  3. Chat: sheetpilot chat -m \"Sum column B of budget.xlsx\"\n")
	return nil
}
