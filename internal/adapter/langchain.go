package adapter

import (
	"encoding/json"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// LangChain adapts to langchaingo's provider-neutral llms types, so any
// llms.Model can drive the conversation.
type LangChain struct {
	Logger *slog.Logger
}

var langChainPolicy = Policy{Vendor: "langchain"}

func (a *LangChain) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *LangChain) ToVendorTools(tools []schema.ToolDescriptor) []llms.Tool {
	clean := SanitizeAll(tools, langChainPolicy, a.Logger)
	out := make([]llms.Tool, 0, len(clean))
	for _, t := range clean {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.JSONSchema(),
			},
		})
	}
	return out
}

func (a *LangChain) ToVendorMessages(messages []schema.Message) []llms.MessageContent {
	names := toolNamesByID(messages)
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		if m.Role == schema.RoleAssistant {
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if text := joinText(m.Content); text != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: text})
			}
			for _, b := range m.ToolUses() {
				args, err := json.Marshal(b.Input)
				if err != nil || b.Input == nil {
					args = []byte("{}")
				}
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   b.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      b.Name,
						Arguments: string(args),
					},
				})
			}
			if len(msg.Parts) > 0 {
				out = append(out, msg)
			}
			continue
		}

		for _, b := range m.Content {
			if b.Type != schema.BlockToolResult {
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: b.ToolUseID,
					Name:       names[b.ToolUseID],
					Content:    b.Text,
				}},
			})
		}
		if text := joinText(m.Content); text != "" {
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, text))
		}
	}
	return out
}

func (a *LangChain) FromVendorReply(reply *llms.ContentResponse) Reply {
	r := Reply{FinishReason: FinishEndTurn}
	if reply == nil || len(reply.Choices) == 0 || reply.Choices[0] == nil {
		r.FinishReason = FinishError
		return r
	}
	choice := reply.Choices[0]
	if choice.Content != "" {
		r.Text = append(r.Text, schema.TextBlock(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args, err := repairJSON(tc.FunctionCall.Arguments)
		if err != nil {
			a.logger().Warn("adapter.bad_tool_arguments", "vendor", "langchain", "tool", tc.FunctionCall.Name, "error", err.Error())
			args = map[string]any{}
		}
		r.ToolUses = append(r.ToolUses, schema.ToolUseBlock(tc.ID, tc.FunctionCall.Name, args))
	}
	r.Usage = schema.Usage{
		InputTokens:  generationInt(choice.GenerationInfo, "PromptTokens", "InputTokens", "input_tokens"),
		OutputTokens: generationInt(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "output_tokens"),
	}

	switch choice.StopReason {
	case "", "stop", "end_turn", "STOP":
		r.FinishReason = FinishEndTurn
	case "length", "max_tokens", "MAX_TOKENS":
		r.FinishReason = FinishMaxTokens
	case "tool_calls", "tool_use":
		r.FinishReason = FinishToolUse
	default:
		r.FinishReason = choice.StopReason
	}
	if len(r.ToolUses) > 0 {
		r.FinishReason = FinishToolUse
	}
	return r
}

// generationInt reads the first present token counter. Providers behind
// langchaingo disagree on key names.
func generationInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch n := info[key].(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

var _ Adapter[llms.Tool, llms.MessageContent, *llms.ContentResponse] = (*LangChain)(nil)
