package adapter

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sheetpilot/sheetpilot/internal/schema"
)

type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDeclaration `json:"functionDeclarations"`
}

type GeminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text             string                `json:"text,omitempty"`
	FunctionCall     *GeminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *GeminiFunctionResult `json:"functionResponse,omitempty"`
}

type GeminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type GeminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// GeminiReply is the subset of a generateContent response we read.
type GeminiReply struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Gemini rejects structured parameter types in function declarations, so
// object and array parameters travel as JSON strings. The adapter keeps the
// flattened names per tool to decode arguments in replies. Gemini calls
// carry no ids; one is generated per call.
type Gemini struct {
	Logger *slog.Logger

	mu        sync.RWMutex
	flattened map[string][]string
	newID     func() string
}

var geminiPolicy = Policy{Vendor: "gemini", FlattenStructured: true}

func (a *Gemini) ToVendorTools(tools []schema.ToolDescriptor) []GeminiTool {
	clean := SanitizeAll(tools, geminiPolicy, a.Logger)
	decls := make([]GeminiFunctionDeclaration, 0, len(clean))
	flattened := make(map[string][]string, len(clean))
	for _, t := range clean {
		decl := GeminiFunctionDeclaration{Name: t.Name, Description: t.Description}
		// An empty properties object is rejected; omit parameters entirely.
		if len(t.Properties) > 0 {
			decl.Parameters = t.JSONSchema()
		}
		decls = append(decls, decl)
		if len(t.Flattened) > 0 {
			flattened[t.Name] = t.Flattened
		}
	}

	a.mu.Lock()
	a.flattened = flattened
	a.mu.Unlock()

	if len(decls) == 0 {
		return nil
	}
	return []GeminiTool{{FunctionDeclarations: decls}}
}

func (a *Gemini) flattenedFor(tool string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flattened[tool]
}

func (a *Gemini) ToVendorMessages(messages []schema.Message) []GeminiContent {
	names := toolNamesByID(messages)
	out := make([]GeminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == schema.RoleAssistant {
			role = "model"
		}
		parts := make([]GeminiPart, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case schema.BlockText:
				if b.Text != "" {
					parts = append(parts, GeminiPart{Text: b.Text})
				}
			case schema.BlockToolUse:
				args := Reflatten(b.Input, a.flattenedFor(b.Name))
				if args == nil {
					args = map[string]any{}
				}
				parts = append(parts, GeminiPart{FunctionCall: &GeminiFunctionCall{Name: b.Name, Args: args}})
			case schema.BlockToolResult:
				key := "result"
				if b.IsError {
					key = "error"
				}
				parts = append(parts, GeminiPart{FunctionResponse: &GeminiFunctionResult{
					Name:     names[b.ToolUseID],
					Response: map[string]any{key: b.Text},
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, GeminiContent{Role: role, Parts: parts})
	}
	return out
}

func (a *Gemini) FromVendorReply(reply GeminiReply) Reply {
	r := Reply{
		Usage: schema.Usage{
			InputTokens:  reply.UsageMetadata.PromptTokenCount,
			OutputTokens: reply.UsageMetadata.CandidatesTokenCount,
		},
		FinishReason: FinishEndTurn,
	}
	if len(reply.Candidates) == 0 {
		r.FinishReason = FinishError
		return r
	}
	cand := reply.Candidates[0]
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			r.Text = append(r.Text, schema.TextBlock(part.Text))
		}
		if fc := part.FunctionCall; fc != nil {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			args = Rehydrate(args, a.flattenedFor(fc.Name))
			r.ToolUses = append(r.ToolUses, schema.ToolUseBlock(a.callID(), fc.Name, args))
		}
	}
	switch cand.FinishReason {
	case "", "STOP":
		r.FinishReason = FinishEndTurn
	case "MAX_TOKENS":
		r.FinishReason = FinishMaxTokens
	default:
		r.FinishReason = cand.FinishReason
	}
	if len(r.ToolUses) > 0 {
		r.FinishReason = FinishToolUse
	}
	return r
}

func (a *Gemini) callID() string {
	if a.newID != nil {
		return a.newID()
	}
	return "call_" + uuid.New().String()
}

var _ Adapter[GeminiTool, GeminiContent, GeminiReply] = (*Gemini)(nil)
