package schema

import "context"

// Usage reports token consumption for one backend call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Response is the normalised reply of any backend.
type Response struct {
	Content      []ContentBlock
	Usage        Usage
	FinishReason string
}

// HasToolUse reports whether the reply requests at least one tool invocation.
func (r Response) HasToolUse() bool {
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// Backend is the interface every AI chat backend must satisfy.
// tools may be empty when the tool catalogue is unavailable.
type Backend interface {
	Name() string
	Send(ctx context.Context, messages []Message, tools []ToolDescriptor) (Response, error)
}

// ToolClient is the narrow view of the tool process used by the conversation
// engine. It never exposes process handles or pipes.
type ToolClient interface {
	EnsureReady(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	HealthCheck(ctx context.Context) error
}
