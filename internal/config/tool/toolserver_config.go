package tool

import "time"

// CommandSpec is one way of launching the tool server.
type CommandSpec struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env"`
	WorkDir string            `json:"workDir,omitempty" yaml:"workDir"`
}

// ToolServerConfig describes how the local tool server is launched and
// supervised. Durations are expressed in milliseconds.
type ToolServerConfig struct {
	// ConfigFile points at a toolserver.yaml; when empty the file is searched
	// for in the workspace, the working directory and the data directory.
	ConfigFile     string        `json:"configFile,omitempty"`
	Primary        CommandSpec   `json:"primary"`
	Fallbacks      []CommandSpec `json:"fallbacks,omitempty"`
	AutoInstall    bool          `json:"autoInstall"`
	InstallCommand []string      `json:"installCommand,omitempty"`

	AutoRestart bool `json:"autoRestart"`
	MaxRestarts int  `json:"maxRestarts"`

	StartGraceMs       int `json:"startGraceMs"`
	HandshakeTimeoutMs int `json:"handshakeTimeoutMs"`
	DiscoveryTimeoutMs int `json:"discoveryTimeoutMs"`
	CallTimeoutMs      int `json:"callTimeoutMs"`
	HealthTimeoutMs    int `json:"healthTimeoutMs"`
	ShutdownTimeoutMs  int `json:"shutdownTimeoutMs"`
	InstallTimeoutMs   int `json:"installTimeoutMs"`
	RestartBackoffMs   int `json:"restartBackoffMs"`
	RestartWindowMs    int `json:"restartWindowMs"`

	// HealthSchedule is a robfig/cron spec, e.g. "@every 30s". Empty disables it.
	HealthSchedule string `json:"healthSchedule,omitempty"`
}

func DefaultToolServerConfig() ToolServerConfig {
	return ToolServerConfig{
		Primary: CommandSpec{Command: "python", Args: []string{"-m", "excel_mcp", "stdio"}},
		Fallbacks: []CommandSpec{
			{Command: "python3", Args: []string{"-m", "excel_mcp", "stdio"}},
			{Command: "uvx", Args: []string{"excel-mcp-server", "stdio"}},
		},
		AutoInstall:        false,
		InstallCommand:     []string{"python", "-m", "pip", "install", "--user", "excel-mcp-server"},
		AutoRestart:        true,
		MaxRestarts:        3,
		StartGraceMs:       500,
		HandshakeTimeoutMs: 15_000,
		DiscoveryTimeoutMs: 15_000,
		CallTimeoutMs:      60_000,
		HealthTimeoutMs:    5_000,
		ShutdownTimeoutMs:  3_000,
		InstallTimeoutMs:   180_000,
		RestartBackoffMs:   1_000,
		RestartWindowMs:    60_000,
		HealthSchedule:     "@every 30s",
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c ToolServerConfig) StartGrace() time.Duration       { return ms(c.StartGraceMs) }
func (c ToolServerConfig) HandshakeTimeout() time.Duration { return ms(c.HandshakeTimeoutMs) }
func (c ToolServerConfig) DiscoveryTimeout() time.Duration { return ms(c.DiscoveryTimeoutMs) }
func (c ToolServerConfig) CallTimeout() time.Duration      { return ms(c.CallTimeoutMs) }
func (c ToolServerConfig) HealthTimeout() time.Duration    { return ms(c.HealthTimeoutMs) }
func (c ToolServerConfig) ShutdownTimeout() time.Duration  { return ms(c.ShutdownTimeoutMs) }
func (c ToolServerConfig) InstallTimeout() time.Duration   { return ms(c.InstallTimeoutMs) }
func (c ToolServerConfig) RestartBackoff() time.Duration   { return ms(c.RestartBackoffMs) }
func (c ToolServerConfig) RestartWindow() time.Duration    { return ms(c.RestartWindowMs) }
