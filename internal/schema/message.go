package schema

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags the variant carried by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a message body.
//
// Exactly one group of fields is meaningful, selected by Type:
//   - text:        Text
//   - tool_use:    ID, Name, Input
//   - tool_result: ToolUseID, Text, IsError
type ContentBlock struct {
	Type BlockType

	Text string

	ID    string
	Name  string
	Input map[string]any

	ToolUseID string
	IsError   bool
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock returns a block asking for tool name to be invoked with input.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns the answer to the tool use identified by toolUseID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Text: content, IsError: isError}
}

// Message is one entry in the conversation history.
type Message struct {
	Role    Role
	Content []ContentBlock
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

func NewAssistantMessage(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

func NewToolResultMessage(results []ContentBlock) Message {
	return Message{Role: RoleUser, Content: results}
}

// Text returns the first non-empty text block, or "".
func (m Message) Text() string {
	for _, b := range m.Content {
		if b.Type == BlockText && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

// ToolUses returns the tool_use blocks of m in order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// HasToolUse reports whether m requests at least one tool invocation.
func (m Message) HasToolUse() bool {
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}
