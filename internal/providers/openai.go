package providers

import (
	"context"

	"github.com/sheetpilot/sheetpilot/internal/adapter"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

type openAIRequest struct {
	Model       string                  `json:"model"`
	Messages    []adapter.OpenAIMessage `json:"messages"`
	Tools       []adapter.OpenAITool    `json:"tools,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Temperature float64                 `json:"temperature"`
}

// OpenAIBackend talks to /chat/completions on OpenAI or any compatible base.
type OpenAIBackend struct {
	transport
	params  Params
	url     string
	adapter *adapter.OpenAI
}

func NewOpenAIBackend(p Params) (*OpenAIBackend, error) {
	if p.Name == "" {
		p.Name = KindOpenAI
	}
	// A custom base may be a local server that needs no key.
	if p.APIKey == "" && p.APIBase == "" {
		return nil, ErrNoAPIKey
	}
	t := newTransport(p.Name, p)
	return &OpenAIBackend{
		transport: t,
		params:    p,
		url:       p.base("https://api.openai.com/v1") + "/chat/completions",
		adapter:   &adapter.OpenAI{Logger: t.logger},
	}, nil
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) Send(ctx context.Context, messages []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	msgs := b.adapter.ToVendorMessages(messages)
	if sys := b.params.SystemPrompt; sys != "" {
		msgs = append([]adapter.OpenAIMessage{{Role: "system", Content: &sys}}, msgs...)
	}
	req := openAIRequest{
		Model:       b.params.Model,
		Messages:    msgs,
		Tools:       b.adapter.ToVendorTools(tools),
		MaxTokens:   b.params.maxTokens(),
		Temperature: b.params.Temperature,
	}
	headers := map[string]string{}
	if b.params.APIKey != "" {
		headers["Authorization"] = "Bearer " + b.params.APIKey
	}
	var reply adapter.OpenAIReply
	if err := b.postJSON(ctx, b.url, headers, req, &reply); err != nil {
		return schema.Response{}, err
	}
	return b.adapter.FromVendorReply(reply).Response(), nil
}

var _ schema.Backend = (*OpenAIBackend)(nil)
