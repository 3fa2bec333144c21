// Package config defines the configuration schema for sheetpilot.
//
// JSON keys use camelCase. The file lives at ~/.sheetpilot/config.json.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sheetpilot/sheetpilot/internal/config/agent"
	"github.com/sheetpilot/sheetpilot/internal/config/provider"
	"github.com/sheetpilot/sheetpilot/internal/config/tool"
)

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Config is the root configuration object.
type Config struct {
	Agents     agent.AgentsConfig       `json:"agents"`
	Providers  provider.ProvidersConfig `json:"providers"`
	ToolServer tool.ToolServerConfig    `json:"toolServer"`
	Logging    LoggingConfig            `json:"logging"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agents:     agent.DefaultAgentsConfig(),
		Providers:  provider.DefaultProvidersConfig(),
		ToolServer: tool.DefaultToolServerConfig(),
		Logging:    LoggingConfig{Level: "warn"},
	}
}

// WorkspacePath returns the expanded absolute path to the workspace.
func (c *Config) WorkspacePath() string {
	ws := c.Agents.Defaults.Workspace
	if ws == "" {
		ws = "~/.sheetpilot/workspace"
	}
	return expandHome(ws)
}

// ProviderByName returns the settings for the named backend, matched
// case-insensitively. Returns nil if unknown.
func (c *Config) ProviderByName(name string) *provider.ProviderConfig {
	return c.Providers.ByName(strings.ToLower(strings.TrimSpace(name)))
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
