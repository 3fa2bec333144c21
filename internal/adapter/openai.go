package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

type OpenAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type OpenAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// OpenAIMessage is a chat-completions message. Content is a pointer so an
// assistant turn that only calls tools serialises "content": null.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// OpenAIReply is the subset of a chat completion response we read.
type OpenAIReply struct {
	Choices []struct {
		Message struct {
			Content   *string          `json:"content"`
			ToolCalls []OpenAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAI adapts to the chat-completions function-calling format, which
// OpenAI-compatible servers share.
type OpenAI struct {
	Logger *slog.Logger
}

var openAIPolicy = Policy{Vendor: "openai"}

func (a *OpenAI) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *OpenAI) ToVendorTools(tools []schema.ToolDescriptor) []OpenAITool {
	clean := SanitizeAll(tools, openAIPolicy, a.Logger)
	out := make([]OpenAITool, 0, len(clean))
	for _, t := range clean {
		out = append(out, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.JSONSchema(),
			},
		})
	}
	return out
}

// ToVendorMessages splits user turns carrying tool results into one "tool"
// message per result, ahead of any text in the same turn.
func (a *OpenAI) ToVendorMessages(messages []schema.Message) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case schema.RoleAssistant:
			msg := OpenAIMessage{Role: "assistant"}
			if text := joinText(m.Content); text != "" {
				msg.Content = &text
			}
			for _, b := range m.ToolUses() {
				args, err := json.Marshal(b.Input)
				if err != nil || b.Input == nil {
					args = []byte("{}")
				}
				call := OpenAIToolCall{ID: b.ID, Type: "function"}
				call.Function.Name = b.Name
				call.Function.Arguments = string(args)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			out = append(out, msg)
		default:
			for _, b := range m.Content {
				if b.Type != schema.BlockToolResult {
					continue
				}
				content := b.Text
				out = append(out, OpenAIMessage{Role: "tool", Content: &content, ToolCallID: b.ToolUseID})
			}
			if text := joinText(m.Content); text != "" {
				out = append(out, OpenAIMessage{Role: "user", Content: &text})
			}
		}
	}
	return out
}

func (a *OpenAI) FromVendorReply(reply OpenAIReply) Reply {
	r := Reply{
		Usage: schema.Usage{
			InputTokens:  reply.Usage.PromptTokens,
			OutputTokens: reply.Usage.CompletionTokens,
		},
		FinishReason: FinishEndTurn,
	}
	if len(reply.Choices) == 0 {
		r.FinishReason = FinishError
		return r
	}
	choice := reply.Choices[0]
	if c := choice.Message.Content; c != nil && *c != "" {
		r.Text = append(r.Text, schema.TextBlock(*c))
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := repairJSON(tc.Function.Arguments)
		if err != nil {
			a.logger().Warn("adapter.bad_tool_arguments", "vendor", "openai", "tool", tc.Function.Name, "error", err.Error())
			args = map[string]any{}
		}
		r.ToolUses = append(r.ToolUses, schema.ToolUseBlock(tc.ID, tc.Function.Name, args))
	}

	switch choice.FinishReason {
	case "", "stop":
		r.FinishReason = FinishEndTurn
	case "tool_calls", "function_call":
		r.FinishReason = FinishToolUse
	case "length":
		r.FinishReason = FinishMaxTokens
	default:
		r.FinishReason = choice.FinishReason
	}
	if len(r.ToolUses) > 0 {
		r.FinishReason = FinishToolUse
	}
	return r
}

// repairJSON attempts to unmarshal JSON, retrying after stripping trailing
// garbage characters. This handles models that emit truncated tool arguments.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	// Attempt 1: close a truncated object.
	stripped := strings.TrimRight(raw, " \t\n\r,}")
	if strings.Count(stripped, `"`)%2 == 1 {
		stripped += `"`
	}
	stripped += "}"
	out = nil
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	// Attempt 2: find the last complete JSON object.
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		out = nil
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}

	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", raw)
}

var _ Adapter[OpenAITool, OpenAIMessage, OpenAIReply] = (*OpenAI)(nil)
