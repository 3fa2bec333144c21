// Package cmd implements the sheetpilot CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/dependency"
)

const logo = "📊"

var (
	configPath string
	debugLog   bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "sheetpilot",
	Short:         logo + " sheetpilot — chat with your spreadsheets",
	Long:          logo + " sheetpilot — an AI assistant that edits Excel workbooks through a local MCP tool server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = dependency.Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.sheetpilot/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Write debug logs to ~/.sheetpilot/logs/sheetpilot.log")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildContainer() (*dependency.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return dependency.New(cfg, debugLog)
}
