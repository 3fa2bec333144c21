package providers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// NewBackend builds the backend for spec from its Params.
func NewBackend(spec ProviderSpec, p Params) (schema.Backend, error) {
	p.Name = spec.Name
	p.APIKey = spec.APIKey(p.APIKey)
	if p.APIBase == "" {
		p.APIBase = spec.DefaultAPIBase
	}
	switch spec.Kind {
	case KindAnthropic:
		return NewAnthropicBackend(p)
	case KindOpenAI:
		return NewOpenAIBackend(p)
	case KindGemini:
		return NewGeminiBackend(p)
	case KindLangChain:
		if p.APIKey == "" && !spec.KeyOptional {
			return nil, ErrNoAPIKey
		}
		model, err := NewLangChainModel(p)
		if err != nil {
			return nil, err
		}
		return NewLangChainBackend(p, model), nil
	}
	return nil, fmt.Errorf("unknown backend kind %q", spec.Kind)
}

// BuildGateway registers every backend that has credentials in cfg and
// makes the configured agent provider the default. Backends without a key
// are skipped; an empty gateway is not an error until a message is sent.
func BuildGateway(cfg *config.Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = logging.Nop()
	}
	g := NewGateway(logger)
	defaults := cfg.Agents.Defaults
	for _, spec := range PROVIDERS {
		pc := cfg.Providers.ByName(spec.Name)
		if pc == nil {
			continue
		}
		b, err := NewBackend(spec, Params{
			APIKey:            pc.APIKey,
			APIBase:           pc.APIBase,
			Model:             pc.Model,
			MaxTokens:         defaults.MaxTokens,
			Temperature:       defaults.Temperature,
			SystemPrompt:      defaults.Prompt(),
			ExtraHeaders:      pc.ExtraHeaders,
			RequestsPerMinute: pc.RequestsPerMinute,
			Logger:            logger,
		})
		if err != nil {
			if !errors.Is(err, ErrNoAPIKey) {
				logger.Warn("gateway.backend_skipped", "backend", spec.Name, "error", err.Error())
			}
			continue
		}
		g.Register(spec.Name, b)
	}
	if !g.SetDefault(defaults.Provider) && defaults.Provider != "" {
		logger.Warn("gateway.default_unavailable", "provider", defaults.Provider, "using", g.Default())
	}
	return g
}
