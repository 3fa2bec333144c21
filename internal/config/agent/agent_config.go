package agent

// DefaultMaxToolRounds bounds the send/reply/tool-call cycles of one request.
const DefaultMaxToolRounds = 10

// DefaultSystemPrompt is sent when the config leaves SystemPrompt empty.
const DefaultSystemPrompt = `You are sheetpilot, an assistant that works on Excel workbooks through tools.
Use the available tools to read and modify workbooks instead of guessing their contents.
Refer to cells and ranges in A1 notation. When a tool reports an error, explain it briefly and suggest a fix.
Keep answers short and say what you changed.`

type AgentDefaults struct {
	Workspace     string  `json:"workspace"`
	Provider      string  `json:"provider"`
	MaxTokens     int     `json:"maxTokens"`
	Temperature   float64 `json:"temperature"`
	MaxToolRounds int     `json:"maxToolRounds"`
	SystemPrompt  string  `json:"systemPrompt,omitempty"`
}

// Prompt returns SystemPrompt, or DefaultSystemPrompt when it is unset.
func (d AgentDefaults) Prompt() string {
	if d.SystemPrompt != "" {
		return d.SystemPrompt
	}
	return DefaultSystemPrompt
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

func defaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Workspace:     "~/.sheetpilot/workspace",
		Provider:      "anthropic",
		MaxTokens:     4096,
		Temperature:   0.2,
		MaxToolRounds: DefaultMaxToolRounds,
	}
}

func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{Defaults: defaultAgentDefaults()}
}
