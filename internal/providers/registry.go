package providers

import (
	"os"
	"strings"
)

// Transport kinds a ProviderSpec can be served by.
const (
	KindAnthropic = "anthropic"
	KindOpenAI    = "openai"
	KindGemini    = "gemini"
	KindLangChain = "langchain"
)

// ProviderSpec is the metadata record for one AI backend.
type ProviderSpec struct {
	Name           string   // config field name, e.g. "anthropic"
	Keywords       []string // model-name keywords for matching (lowercase)
	EnvKey         string   // env var consulted when no API key is configured
	DisplayName    string   // shown in `sheetpilot status`
	Kind           string   // which transport serves it
	DefaultAPIBase string
	// KeyOptional marks local servers that accept unauthenticated calls.
	KeyOptional bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// APIKey returns configured if set, else the value of EnvKey.
func (s ProviderSpec) APIKey(configured string) string {
	if configured != "" || s.EnvKey == "" {
		return configured
	}
	return os.Getenv(s.EnvKey)
}

// PROVIDERS is the registry. Order = match priority.
var PROVIDERS = []ProviderSpec{
	{
		Name:           "anthropic",
		Keywords:       []string{"anthropic", "claude"},
		EnvKey:         "ANTHROPIC_API_KEY",
		DisplayName:    "Anthropic",
		Kind:           KindAnthropic,
		DefaultAPIBase: "https://api.anthropic.com/v1",
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt", "o1", "o3", "o4"},
		EnvKey:         "OPENAI_API_KEY",
		DisplayName:    "OpenAI",
		Kind:           KindOpenAI,
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "gemini",
		Keywords:       []string{"gemini"},
		EnvKey:         "GEMINI_API_KEY",
		DisplayName:    "Gemini",
		Kind:           KindGemini,
		DefaultAPIBase: "https://generativelanguage.googleapis.com",
	},
	{
		Name:           "langchain",
		Keywords:       []string{"llama", "qwen", "mistral", "ollama"},
		EnvKey:         "LANGCHAIN_API_KEY",
		DisplayName:    "LangChain (OpenAI-compatible)",
		Kind:           KindLangChain,
		DefaultAPIBase: "http://localhost:11434/v1",
		KeyOptional:    true,
	},
}

// FindByName returns the ProviderSpec whose Name equals name, ignoring case.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}

// FindByModel matches a model name against provider keywords.
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	if prefix, _, ok := strings.Cut(modelLower, "/"); ok {
		if s := FindByName(prefix); s != nil {
			return s
		}
	}
	for i := range PROVIDERS {
		for _, kw := range PROVIDERS[i].Keywords {
			if strings.Contains(modelLower, kw) {
				return &PROVIDERS[i]
			}
		}
	}
	return nil
}
