package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

func sampleTools(t *testing.T) []schema.ToolDescriptor {
	return []schema.ToolDescriptor{
		{
			Name:        "read_sheet",
			Description: "Read a worksheet",
			Parameters: mustParse(t, `{"type":"object","properties":{
				"path":{"type":"string"},
				"range":{"type":"object","properties":{"start":{"type":"string"},"end":{"type":"string"}}}
			},"required":["path"]}`),
		},
		{Name: "bad name"},
	}
}

// sampleHistory is a full tool round: question, tool call, tool result.
func sampleHistory() []schema.Message {
	return []schema.Message{
		schema.NewUserMessage("What is in A1?"),
		schema.NewAssistantMessage([]schema.ContentBlock{
			schema.TextBlock("Let me look."),
			schema.ToolUseBlock("tu_1", "read_sheet", map[string]any{
				"path":  "book.xlsx",
				"range": map[string]any{"start": "A1", "end": "A1"},
			}),
		}),
		schema.NewToolResultMessage([]schema.ContentBlock{
			schema.ToolResultBlock("tu_1", "Tool error: file not found", true),
		}),
	}
}

func TestAnthropic_ToolsAndMessages(t *testing.T) {
	a := &Anthropic{Logger: logging.Nop()}

	tools := a.ToVendorTools(sampleTools(t))
	require.Len(t, tools, 1)
	assert.Equal(t, "read_sheet", tools[0].Name)
	assert.Equal(t, []string{"path"}, tools[0].InputSchema["required"])

	msgs := a.ToVendorMessages(sampleHistory())
	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"role":"user","content":[{"type":"text","text":"What is in A1?"}]},
		{"role":"assistant","content":[
			{"type":"text","text":"Let me look."},
			{"type":"tool_use","id":"tu_1","name":"read_sheet","input":{"path":"book.xlsx","range":{"start":"A1","end":"A1"}}}
		]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"Tool error: file not found","is_error":true}]}
	]`, string(raw))
}

func TestAnthropic_FromVendorReply(t *testing.T) {
	payload := `{
		"content":[
			{"type":"text","text":"Reading now."},
			{"type":"tool_use","id":"toolu_01","name":"read_sheet","input":{"path":"book.xlsx"}}
		],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":120,"output_tokens":33}
	}`
	var reply AnthropicReply
	require.NoError(t, json.Unmarshal([]byte(payload), &reply))

	r := (&Anthropic{}).FromVendorReply(reply)
	require.Len(t, r.Text, 1)
	assert.Equal(t, "Reading now.", r.Text[0].Text)
	require.Len(t, r.ToolUses, 1)
	assert.Equal(t, "toolu_01", r.ToolUses[0].ID)
	assert.Equal(t, map[string]any{"path": "book.xlsx"}, r.ToolUses[0].Input)
	assert.Equal(t, FinishToolUse, r.FinishReason)
	assert.Equal(t, 153, r.Usage.Total())

	resp := r.Response()
	assert.True(t, resp.HasToolUse())
	assert.Equal(t, schema.BlockText, resp.Content[0].Type)
}

func TestOpenAI_ToolsAndMessages(t *testing.T) {
	a := &OpenAI{Logger: logging.Nop()}

	tools := a.ToVendorTools(sampleTools(t))
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "read_sheet", tools[0].Function.Name)

	msgs := a.ToVendorMessages(sampleHistory())
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.JSONEq(t, `{"path":"book.xlsx","range":{"start":"A1","end":"A1"}}`, msgs[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "tu_1", msgs[2].ToolCallID)
	assert.Equal(t, "Tool error: file not found", *msgs[2].Content)
}

func TestOpenAI_AssistantWithOnlyToolCallsHasNullContent(t *testing.T) {
	msgs := (&OpenAI{}).ToVendorMessages([]schema.Message{
		schema.NewAssistantMessage([]schema.ContentBlock{schema.ToolUseBlock("c1", "echo", nil)}),
	})
	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content":null`)
	assert.Contains(t, string(raw), `"arguments":"{}"`)
}

func TestOpenAI_FromVendorReply(t *testing.T) {
	payload := `{
		"choices":[{
			"message":{"content":null,"tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"read_sheet","arguments":"{\"path\":\"book.xlsx\""}},
				{"id":"call_2","type":"function","function":{"name":"echo","arguments":""}}
			]},
			"finish_reason":"tool_calls"
		}],
		"usage":{"prompt_tokens":10,"completion_tokens":5}
	}`
	var reply OpenAIReply
	require.NoError(t, json.Unmarshal([]byte(payload), &reply))

	r := (&OpenAI{Logger: logging.Nop()}).FromVendorReply(reply)
	assert.Empty(t, r.Text)
	require.Len(t, r.ToolUses, 2)
	assert.Equal(t, map[string]any{"path": "book.xlsx"}, r.ToolUses[0].Input, "truncated arguments repaired")
	assert.Equal(t, map[string]any{}, r.ToolUses[1].Input)
	assert.Equal(t, FinishToolUse, r.FinishReason)
	assert.Equal(t, schema.Usage{InputTokens: 10, OutputTokens: 5}, r.Usage)
}

func TestOpenAI_FromVendorReplyFinishReasons(t *testing.T) {
	var reply OpenAIReply
	require.NoError(t, json.Unmarshal([]byte(`{"choices":[{"message":{"content":"partial"},"finish_reason":"length"}]}`), &reply))
	r := (&OpenAI{}).FromVendorReply(reply)
	assert.Equal(t, FinishMaxTokens, r.FinishReason)
	assert.Equal(t, "partial", r.Text[0].Text)

	assert.Equal(t, FinishError, (&OpenAI{}).FromVendorReply(OpenAIReply{}).FinishReason)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]any
		ok   bool
	}{
		{`{"a":1}`, map[string]any{"a": float64(1)}, true},
		{``, map[string]any{}, true},
		{`{"a":"x"`, map[string]any{"a": "x"}, true},
		{`{"a":"x`, map[string]any{"a": "x"}, true},
		{`{"a":1} trailing`, map[string]any{"a": float64(1)}, true},
		{`not json at all`, map[string]any{}, false},
	}
	for _, tt := range tests {
		got, err := repairJSON(tt.in)
		if tt.ok {
			assert.NoError(t, err, tt.in)
		} else {
			assert.Error(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestGemini_FlattenedRoundTrip(t *testing.T) {
	a := &Gemini{Logger: logging.Nop(), newID: func() string { return "call_fixed" }}

	tools := a.ToVendorTools(sampleTools(t))
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	decl := tools[0].FunctionDeclarations[0]
	props := decl.Parameters["properties"].(map[string]any)
	assert.Equal(t, "string", props["range"].(map[string]any)["type"])

	payload := `{
		"candidates":[{
			"content":{"role":"model","parts":[
				{"text":"Checking."},
				{"functionCall":{"name":"read_sheet","args":{"path":"book.xlsx","range":"{\"start\":\"A1\",\"end\":\"B2\"}"}}}
			]},
			"finishReason":"STOP"
		}],
		"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}
	}`
	var reply GeminiReply
	require.NoError(t, json.Unmarshal([]byte(payload), &reply))

	r := a.FromVendorReply(reply)
	require.Len(t, r.ToolUses, 1)
	tu := r.ToolUses[0]
	assert.Equal(t, "call_fixed", tu.ID)
	assert.Equal(t, map[string]any{"start": "A1", "end": "B2"}, tu.Input["range"])
	assert.Equal(t, FinishToolUse, r.FinishReason)
	assert.Equal(t, 10, r.Usage.Total())
}

func TestGemini_Messages(t *testing.T) {
	a := &Gemini{Logger: logging.Nop()}
	a.ToVendorTools(sampleTools(t))

	msgs := a.ToVendorMessages(sampleHistory())
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "model", msgs[1].Role)

	call := msgs[1].Parts[1].FunctionCall
	require.NotNil(t, call)
	assert.JSONEq(t, `{"start":"A1","end":"A1"}`, call.Args["range"].(string))

	resp := msgs[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "read_sheet", resp.Name)
	assert.Equal(t, map[string]any{"error": "Tool error: file not found"}, resp.Response)
}

func TestGemini_GeneratedIDsAreUnique(t *testing.T) {
	a := &Gemini{}
	var reply GeminiReply
	require.NoError(t, json.Unmarshal([]byte(`{"candidates":[{"content":{"parts":[
		{"functionCall":{"name":"echo","args":{}}},
		{"functionCall":{"name":"echo","args":{}}}
	]}}]}`), &reply))

	r := a.FromVendorReply(reply)
	require.Len(t, r.ToolUses, 2)
	assert.NotEqual(t, r.ToolUses[0].ID, r.ToolUses[1].ID)
	assert.NotEmpty(t, r.ToolUses[0].ID)
}

func TestLangChain_ToolsAndMessages(t *testing.T) {
	a := &LangChain{Logger: logging.Nop()}

	tools := a.ToVendorTools(sampleTools(t))
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].Function)
	assert.Equal(t, "read_sheet", tools[0].Function.Name)

	msgs := a.ToVendorMessages(sampleHistory())
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 2)
	call, ok := msgs[1].Parts[1].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "tu_1", call.ID)
	assert.Equal(t, llms.ChatMessageTypeTool, msgs[2].Role)
	result, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "read_sheet", result.Name)
	assert.Equal(t, "Tool error: file not found", result.Content)
}

func TestLangChain_FromVendorReply(t *testing.T) {
	reply := &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:    "Sure.",
		StopReason: "tool_calls",
		ToolCalls: []llms.ToolCall{{
			ID:           "lc_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "read_sheet", Arguments: `{"path":"book.xlsx"}`},
		}},
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 4},
	}}}

	r := (&LangChain{}).FromVendorReply(reply)
	assert.Equal(t, "Sure.", r.Text[0].Text)
	require.Len(t, r.ToolUses, 1)
	assert.Equal(t, "lc_1", r.ToolUses[0].ID)
	assert.Equal(t, map[string]any{"path": "book.xlsx"}, r.ToolUses[0].Input)
	assert.Equal(t, schema.Usage{InputTokens: 12, OutputTokens: 4}, r.Usage)
	assert.Equal(t, FinishToolUse, r.FinishReason)

	assert.Equal(t, FinishError, (&LangChain{}).FromVendorReply(nil).FinishReason)
}
