package providers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sheetpilot/sheetpilot/internal/adapter"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// placeholderToken satisfies langchaingo's non-empty token check for local
// servers that ignore authentication.
const placeholderToken = "sk-local"

// LangChainBackend drives any langchaingo llms.Model.
type LangChainBackend struct {
	name    string
	model   llms.Model
	params  Params
	limiter *RateLimiter
	adapter *adapter.LangChain
}

// NewLangChainModel builds langchaingo's OpenAI-compatible client against
// p.APIBase.
func NewLangChainModel(p Params) (llms.Model, error) {
	token := p.APIKey
	if token == "" {
		token = placeholderToken
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(p.Model),
	}
	if p.APIBase != "" {
		opts = append(opts, openai.WithBaseURL(p.APIBase))
	}
	if p.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(p.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build langchain model: %w", err)
	}
	return llm, nil
}

func NewLangChainBackend(p Params, model llms.Model) *LangChainBackend {
	if p.Name == "" {
		p.Name = KindLangChain
	}
	t := newTransport(p.Name, p)
	return &LangChainBackend{
		name:    p.Name,
		model:   model,
		params:  p,
		limiter: t.limiter,
		adapter: &adapter.LangChain{Logger: t.logger},
	}
}

func (b *LangChainBackend) Name() string { return b.name }

func (b *LangChainBackend) Send(ctx context.Context, messages []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	if err := b.limiter.WaitTurn(ctx); err != nil {
		return schema.Response{}, err
	}

	msgs := b.adapter.ToVendorMessages(messages)
	if sys := b.params.SystemPrompt; sys != "" {
		msgs = append([]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, sys)}, msgs...)
	}
	opts := []llms.CallOption{
		llms.WithMaxTokens(b.params.maxTokens()),
		llms.WithTemperature(b.params.Temperature),
	}
	if vendorTools := b.adapter.ToVendorTools(tools); len(vendorTools) > 0 {
		opts = append(opts, llms.WithTools(vendorTools))
	}

	resp, err := b.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return schema.Response{}, b.classify(ctx, err)
	}
	return b.adapter.FromVendorReply(resp).Response(), nil
}

var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

// classify maps langchaingo client errors onto the package's sentinels. The
// client reports HTTP failures only as formatted text.
func (b *LangChainBackend) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		if mapped := statusError(b.name, status, []byte(err.Error())); mapped != nil {
			return mapped
		}
	}
	return fmt.Errorf("%s: %w: %v", b.name, ErrUnavailable, err)
}

var _ schema.Backend = (*LangChainBackend)(nil)
