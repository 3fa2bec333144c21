package providers

import (
	"context"

	"github.com/sheetpilot/sheetpilot/internal/adapter"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string                     `json:"model"`
	MaxTokens   int                        `json:"max_tokens"`
	System      string                     `json:"system,omitempty"`
	Messages    []adapter.AnthropicMessage `json:"messages"`
	Tools       []adapter.AnthropicTool    `json:"tools,omitempty"`
	Temperature float64                    `json:"temperature"`
}

// AnthropicBackend talks to the Messages API.
type AnthropicBackend struct {
	transport
	params  Params
	url     string
	adapter *adapter.Anthropic
}

func NewAnthropicBackend(p Params) (*AnthropicBackend, error) {
	if p.Name == "" {
		p.Name = KindAnthropic
	}
	if p.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	t := newTransport(p.Name, p)
	return &AnthropicBackend{
		transport: t,
		params:    p,
		url:       p.base("https://api.anthropic.com/v1") + "/messages",
		adapter:   &adapter.Anthropic{Logger: t.logger},
	}, nil
}

func (b *AnthropicBackend) Name() string { return b.name }

func (b *AnthropicBackend) Send(ctx context.Context, messages []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	req := anthropicRequest{
		Model:       b.params.Model,
		MaxTokens:   b.params.maxTokens(),
		System:      b.params.SystemPrompt,
		Messages:    b.adapter.ToVendorMessages(messages),
		Tools:       b.adapter.ToVendorTools(tools),
		Temperature: b.params.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         b.params.APIKey,
		"anthropic-version": anthropicVersion,
	}
	var reply adapter.AnthropicReply
	if err := b.postJSON(ctx, b.url, headers, req, &reply); err != nil {
		return schema.Response{}, err
	}
	return b.adapter.FromVendorReply(reply).Response(), nil
}

var _ schema.Backend = (*AnthropicBackend)(nil)
