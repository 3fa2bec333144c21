package providers

import (
	"context"
	"net/url"

	"github.com/sheetpilot/sheetpilot/internal/adapter"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

type geminiInstruction struct {
	Parts []adapter.GeminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents          []adapter.GeminiContent `json:"contents"`
	Tools             []adapter.GeminiTool    `json:"tools,omitempty"`
	SystemInstruction *geminiInstruction      `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
}

// GeminiBackend talks to the generateContent endpoint. Its adapter keeps
// per-catalogue state, so one backend serves one conversation at a time.
type GeminiBackend struct {
	transport
	params  Params
	url     string
	adapter *adapter.Gemini
}

func NewGeminiBackend(p Params) (*GeminiBackend, error) {
	if p.Name == "" {
		p.Name = KindGemini
	}
	if p.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if p.Model == "" {
		p.Model = "gemini-2.5-flash"
	}
	t := newTransport(p.Name, p)
	return &GeminiBackend{
		transport: t,
		params:    p,
		url:       p.base("https://generativelanguage.googleapis.com") + "/v1beta/models/" + url.PathEscape(p.Model) + ":generateContent",
		adapter:   &adapter.Gemini{Logger: t.logger},
	}, nil
}

func (b *GeminiBackend) Name() string { return b.name }

func (b *GeminiBackend) Send(ctx context.Context, messages []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	// Tools first: the adapter learns which parameters are flattened and
	// re-encodes them in the history.
	vendorTools := b.adapter.ToVendorTools(tools)
	req := geminiRequest{
		Contents: b.adapter.ToVendorMessages(messages),
		Tools:    vendorTools,
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: b.params.maxTokens(),
			Temperature:     b.params.Temperature,
		},
	}
	if sys := b.params.SystemPrompt; sys != "" {
		req.SystemInstruction = &geminiInstruction{Parts: []adapter.GeminiPart{{Text: sys}}}
	}
	headers := map[string]string{"x-goog-api-key": b.params.APIKey}
	var reply adapter.GeminiReply
	if err := b.postJSON(ctx, b.url, headers, req, &reply); err != nil {
		return schema.Response{}, err
	}
	return b.adapter.FromVendorReply(reply).Response(), nil
}

var _ schema.Backend = (*GeminiBackend)(nil)
