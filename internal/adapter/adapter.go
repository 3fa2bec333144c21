package adapter

import "github.com/sheetpilot/sheetpilot/internal/schema"

// Normalised finish reasons.
const (
	FinishEndTurn   = "end_turn"
	FinishToolUse   = "tool_use"
	FinishMaxTokens = "max_tokens"
	FinishError     = "error"
)

// Adapter is the contract every vendor adapter meets. T, M and R are the
// vendor's tool, message and reply wire types.
type Adapter[T, M, R any] interface {
	ToVendorTools(tools []schema.ToolDescriptor) []T
	ToVendorMessages(messages []schema.Message) []M
	FromVendorReply(reply R) Reply
}

// Reply is a vendor reply in the unified vocabulary.
type Reply struct {
	Text         []schema.ContentBlock
	ToolUses     []schema.ContentBlock
	Usage        schema.Usage
	FinishReason string
}

// Response converts r into the message-level Response, text first.
func (r Reply) Response() schema.Response {
	content := make([]schema.ContentBlock, 0, len(r.Text)+len(r.ToolUses))
	content = append(content, r.Text...)
	content = append(content, r.ToolUses...)
	return schema.Response{Content: content, Usage: r.Usage, FinishReason: r.FinishReason}
}

// toolNamesByID maps every tool_use id in msgs to its tool name. Vendors
// that key tool results by name need it.
func toolNamesByID(msgs []schema.Message) map[string]string {
	out := make(map[string]string)
	for _, m := range msgs {
		for _, b := range m.Content {
			if b.Type == schema.BlockToolUse && b.ID != "" {
				out[b.ID] = b.Name
			}
		}
	}
	return out
}

func joinText(blocks []schema.ContentBlock) string {
	var s string
	for _, b := range blocks {
		if b.Type == schema.BlockText && b.Text != "" {
			if s != "" {
				s += "\n"
			}
			s += b.Text
		}
	}
	return s
}
