package provider

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderLangChain = "langchain"
)

// ProviderConfig holds credentials and transport settings for one backend.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	Model        string            `json:"model,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
	// RequestsPerMinute throttles outgoing calls; 0 disables throttling.
	RequestsPerMinute int `json:"requestsPerMinute,omitempty"`
}

// Configured reports whether the backend has enough settings to be used.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" || p.APIBase != ""
}

// ProvidersConfig holds settings for every supported backend.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
	Gemini    ProviderConfig `json:"gemini"`
	LangChain ProviderConfig `json:"langchain"`
}

func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Anthropic: ProviderConfig{Model: "claude-sonnet-4-5", RequestsPerMinute: 50},
		OpenAI:    ProviderConfig{Model: "gpt-4o", RequestsPerMinute: 60},
		Gemini:    ProviderConfig{Model: "gemini-2.5-flash", RequestsPerMinute: 15},
		LangChain: ProviderConfig{Model: "llama3.1", APIBase: "http://localhost:11434/v1"},
	}
}

// ByName returns a pointer to the ProviderConfig field matching the given
// registry name. Returns nil if the name is unknown.
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case ProviderAnthropic:
		return &p.Anthropic
	case ProviderOpenAI:
		return &p.OpenAI
	case ProviderGemini:
		return &p.Gemini
	case ProviderLangChain:
		return &p.LangChain
	}
	return nil
}
