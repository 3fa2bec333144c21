package adapter

import (
	"log/slog"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// AnthropicTool is one entry of the Messages API "tools" array.
type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// AnthropicContent is a Messages API content block.
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicReply is the subset of a Messages API response we read.
type AnthropicReply struct {
	Content    []AnthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Anthropic accepts the full unified schema; it only needs the shared
// sanitising pass.
type Anthropic struct {
	Logger *slog.Logger
}

var anthropicPolicy = Policy{Vendor: "anthropic"}

func (a *Anthropic) ToVendorTools(tools []schema.ToolDescriptor) []AnthropicTool {
	clean := SanitizeAll(tools, anthropicPolicy, a.Logger)
	out := make([]AnthropicTool, 0, len(clean))
	for _, t := range clean {
		out = append(out, AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.JSONSchema(),
		})
	}
	return out
}

func (a *Anthropic) ToVendorMessages(messages []schema.Message) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(messages))
	for _, m := range messages {
		blocks := make([]AnthropicContent, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case schema.BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, AnthropicContent{Type: "text", Text: b.Text})
			case schema.BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, AnthropicContent{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
			case schema.BlockToolResult:
				blocks = append(blocks, AnthropicContent{
					Type:      "tool_result",
					ToolUseID: b.ToolUseID,
					Content:   b.Text,
					IsError:   b.IsError,
				})
			}
		}
		if len(blocks) == 0 {
			blocks = []AnthropicContent{{Type: "text", Text: "(empty)"}}
		}
		out = append(out, AnthropicMessage{Role: string(m.Role), Content: blocks})
	}
	return out
}

func (a *Anthropic) FromVendorReply(reply AnthropicReply) Reply {
	r := Reply{
		Usage: schema.Usage{
			InputTokens:  reply.Usage.InputTokens,
			OutputTokens: reply.Usage.OutputTokens,
		},
	}
	for _, block := range reply.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				r.Text = append(r.Text, schema.TextBlock(block.Text))
			}
		case "tool_use":
			input, _ := block.Input.(map[string]any)
			r.ToolUses = append(r.ToolUses, schema.ToolUseBlock(block.ID, block.Name, input))
		}
	}
	switch reply.StopReason {
	case "", "end_turn", "stop_sequence":
		r.FinishReason = FinishEndTurn
	default:
		r.FinishReason = reply.StopReason
	}
	if len(r.ToolUses) > 0 {
		r.FinishReason = FinishToolUse
	}
	return r
}

var _ Adapter[AnthropicTool, AnthropicMessage, AnthropicReply] = (*Anthropic)(nil)
