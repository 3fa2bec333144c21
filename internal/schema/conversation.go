package schema

// Conversation is the ordered, append-only list of messages exchanged with a
// backend. It lives in memory for the lifetime of its owner.
type Conversation struct {
	messages []Message
}

// NewConversation returns a Conversation seeded with msgs.
func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{messages: make([]Message, 0, len(msgs))}
	c.messages = append(c.messages, msgs...)
	return c
}

// AddUser appends a plain-text user message.
func (c *Conversation) AddUser(text string) {
	c.messages = append(c.messages, NewUserMessage(text))
}

// AddAssistant appends the backend's reply blocks as an assistant message.
func (c *Conversation) AddAssistant(blocks []ContentBlock) {
	c.messages = append(c.messages, NewAssistantMessage(blocks))
}

// AddToolResults appends one user message carrying every result of a round.
func (c *Conversation) AddToolResults(results []ContentBlock) {
	c.messages = append(c.messages, NewToolResultMessage(results))
}

// Messages returns a copy of the history with an independent backing slice.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the most recent message and false when the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) Len() int { return len(c.messages) }

// Clear drops every message.
func (c *Conversation) Clear() { c.messages = c.messages[:0] }

// Truncate drops every message after the first n.
func (c *Conversation) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(c.messages) {
		c.messages = c.messages[:n]
	}
}
