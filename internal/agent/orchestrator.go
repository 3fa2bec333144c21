// Package agent runs one conversation between the user, an AI backend and
// the spreadsheet tool server.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	agentcfg "github.com/sheetpilot/sheetpilot/internal/config/agent"
	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/schema"
	"github.com/sheetpilot/sheetpilot/internal/shared/llmutils"
)

// FallbackReply is returned when the backend's final reply holds no text.
const FallbackReply = "I've completed processing but have no response to give."

// Backends resolves a provider name to a backend. Unknown names resolve to
// a default; only an empty registry is an error.
type Backends interface {
	Resolve(name string) (schema.Backend, error)
}

// Orchestrator owns one conversation. Calls to ProcessMessage are
// serialised; independent conversations need independent Orchestrators.
type Orchestrator struct {
	backends  Backends
	tools     schema.ToolClient
	validator *ArgumentValidator
	logger    *slog.Logger
	maxRounds int

	mu           sync.Mutex
	conversation *schema.Conversation
	provider     string
	onProgress   func(string)
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxRounds sets the tool round ceiling. Non-positive values keep the
// default.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithProvider selects the initial backend by name.
func WithProvider(name string) Option {
	return func(o *Orchestrator) { o.provider = name }
}

// WithProgress registers a callback that receives interim text and tool
// hints such as read_range("A1:B2") while a request is running.
func WithProgress(fn func(string)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

func New(backends Backends, tools schema.ToolClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backends:     backends,
		tools:        tools,
		validator:    NewArgumentValidator(),
		logger:       logging.Nop(),
		maxRounds:    agentcfg.DefaultMaxToolRounds,
		conversation: schema.NewConversation(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// SetProvider selects the backend used by subsequent requests.
func (o *Orchestrator) SetProvider(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = strings.TrimSpace(name)
}

// Provider returns the name of the backend the next request will use.
func (o *Orchestrator) Provider() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, err := o.backends.Resolve(o.provider); err == nil {
		return b.Name()
	}
	return o.provider
}

func (o *Orchestrator) OnProgress(fn func(string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = fn
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []schema.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversation.Messages()
}

// Reset starts a new conversation.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conversation.Clear()
}

// ProcessMessage sends text to the selected backend and runs tool rounds
// until the backend answers in plain text.
//
// The conversation is append-only with one exception: when ProcessMessage
// fails, every message it appended (the user turn included) is truncated
// away, so a retry starts from the history as it stood before the call.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mark := o.conversation.Len()
	reply, err := o.run(ctx, text)
	if err != nil {
		o.conversation.Truncate(mark)
		o.logger.Warn("orchestrator.request_failed", "error", err.Error())
		return "", err
	}
	return reply, nil
}

func (o *Orchestrator) run(ctx context.Context, text string) (string, error) {
	o.conversation.AddUser(text)

	if err := o.tools.EnsureReady(ctx); err != nil {
		return "", fmt.Errorf("start tool server: %w", err)
	}
	catalog, err := o.tools.ListTools(ctx)
	if err != nil {
		o.logger.Warn("orchestrator.catalog_unavailable", "error", err.Error())
		catalog = nil
	}
	byName := make(map[string]schema.ToolDescriptor, len(catalog))
	for _, t := range catalog {
		byName[t.Name] = t
	}

	backend, err := o.backends.Resolve(o.provider)
	if err != nil {
		return "", err
	}

	for round := 0; ; {
		resp, err := backend.Send(ctx, o.conversation.Messages(), catalog)
		if err != nil {
			return "", fmt.Errorf("%s request: %w", backend.Name(), err)
		}

		content, uses := o.wellFormed(resp.Content)
		if len(content) > 0 {
			o.conversation.AddAssistant(content)
		}
		o.logger.Debug("orchestrator.reply",
			"backend", backend.Name(),
			"round", round,
			"tool_uses", len(uses),
			"finish", resp.FinishReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)

		if len(uses) == 0 {
			return finalText(content), nil
		}
		o.progress(content, uses)

		results, err := o.invokeTools(ctx, uses, byName)
		if err != nil {
			return "", err
		}
		o.conversation.AddToolResults(results)

		round++
		if round >= o.maxRounds {
			return "", fmt.Errorf("%w after %d rounds", ErrRoundBudgetExceeded, round)
		}
	}
}

// wellFormed drops tool-use blocks without an id or name. Replaying them to
// a vendor would be rejected.
func (o *Orchestrator) wellFormed(blocks []schema.ContentBlock) (content, uses []schema.ContentBlock) {
	content = make([]schema.ContentBlock, 0, len(blocks))
	seen := make(map[string]bool)
	for _, b := range blocks {
		if b.Type == schema.BlockToolUse {
			if b.ID == "" || b.Name == "" {
				o.logger.Warn("orchestrator.malformed_tool_use", "id", b.ID, "name", b.Name)
				continue
			}
			if seen[b.ID] {
				o.logger.Warn("orchestrator.duplicate_tool_use", "id", b.ID, "name", b.Name)
				continue
			}
			seen[b.ID] = true
			uses = append(uses, b)
		}
		content = append(content, b)
	}
	return content, uses
}

func (o *Orchestrator) invokeTools(ctx context.Context, uses []schema.ContentBlock, byName map[string]schema.ToolDescriptor) ([]schema.ContentBlock, error) {
	results := make([]schema.ContentBlock, 0, len(uses))
	for _, use := range uses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, o.invoke(ctx, use, byName))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// invoke never fails: every problem becomes an error tool_result the
// backend can react to.
func (o *Orchestrator) invoke(ctx context.Context, use schema.ContentBlock, byName map[string]schema.ToolDescriptor) schema.ContentBlock {
	logger := o.logger.With("tool", use.Name, "id", use.ID)
	if args, err := json.Marshal(use.Input); err == nil {
		logger.Info("orchestrator.tool_call", "args", llmutils.Truncate(string(args), 200))
	}

	if desc, ok := byName[use.Name]; ok {
		if err := o.validator.Validate(desc, use.Input); err != nil {
			logger.Warn("orchestrator.invalid_arguments", "error", err.Error())
			return schema.ToolResultBlock(use.ID, err.Error(), true)
		}
	}

	out, err := o.tools.CallTool(ctx, use.Name, use.Input)
	if err != nil {
		logger.Warn("orchestrator.tool_failed", "error", err.Error())
		return schema.ToolResultBlock(use.ID, toolErrorText(err), true)
	}
	return schema.ToolResultBlock(use.ID, out, false)
}

func toolErrorText(err error) string {
	var te *mcp.ToolError
	if errors.As(err, &te) {
		return te.Error()
	}
	return "Error: " + err.Error()
}

func (o *Orchestrator) progress(content, uses []schema.ContentBlock) {
	if o.onProgress == nil {
		return
	}
	for _, b := range content {
		if b.Type == schema.BlockText {
			if clean := llmutils.StripThink(b.Text); clean != "" {
				o.onProgress(clean)
			}
		}
	}
	o.onProgress(llmutils.ToolHint(uses))
}

// finalText returns the first non-empty text block, or FallbackReply.
func finalText(content []schema.ContentBlock) string {
	for _, b := range content {
		if b.Type != schema.BlockText {
			continue
		}
		if text := strings.TrimSpace(llmutils.StripThink(b.Text)); text != "" {
			return text
		}
	}
	return FallbackReply
}
