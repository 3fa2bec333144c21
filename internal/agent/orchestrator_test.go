package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/providers"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// scriptedBackend replays replies in order and repeats the last one.
type scriptedBackend struct {
	name    string
	replies []schema.Response
	err     error

	mu    sync.Mutex
	calls int
	seen  [][]schema.Message
	tools [][]schema.ToolDescriptor
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Send(_ context.Context, msgs []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.seen = append(b.seen, msgs)
	b.tools = append(b.tools, tools)
	if b.err != nil {
		return schema.Response{}, b.err
	}
	i := b.calls - 1
	if i >= len(b.replies) {
		i = len(b.replies) - 1
	}
	return b.replies[i], nil
}

type fakeTools struct {
	readyErr error
	listErr  error
	catalog  []schema.ToolDescriptor
	handler  func(name string, args map[string]any) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeTools) EnsureReady(context.Context) error { return f.readyErr }

func (f *fakeTools) ListTools(context.Context) ([]schema.ToolDescriptor, error) {
	return f.catalog, f.listErr
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.handler == nil {
		return "ok", nil
	}
	return f.handler(name, args)
}

func (f *fakeTools) HealthCheck(context.Context) error { return nil }

func gatewayWith(backends ...schema.Backend) *providers.Gateway {
	g := providers.NewGateway(nil)
	for _, b := range backends {
		g.Register(b.Name(), b)
	}
	return g
}

var readRangeTool = schema.ToolDescriptor{
	Name:        "read_range",
	Description: "Read a range of cells",
	Parameters: schema.ParameterSchema{
		Type:       schema.TypeObject,
		Properties: map[string]*schema.Property{"range": {Type: schema.TypeString}},
		Required:   []string{"range"},
	},
}

func text(s string) schema.Response {
	return schema.Response{Content: []schema.ContentBlock{schema.TextBlock(s)}, FinishReason: "end_turn"}
}

func toolUse(blocks ...schema.ContentBlock) schema.Response {
	return schema.Response{Content: blocks, FinishReason: "tool_use"}
}

func TestProcessMessage_PlainReply(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{text("Hello!")}}
	o := New(gatewayWith(backend), &fakeTools{})

	reply, err := o.ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	hist := o.History()
	require.Len(t, hist, 2)
	assert.Equal(t, schema.RoleUser, hist[0].Role)
	assert.Equal(t, schema.RoleAssistant, hist[1].Role)
}

func TestProcessMessage_ReadRangeScenario(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.ToolUseBlock("tu_1", "read_range", map[string]any{"range": "A1:B2"})),
		text("The range holds 1,2 and 3,4."),
	}}
	tools := &fakeTools{
		catalog: []schema.ToolDescriptor{readRangeTool},
		handler: func(name string, args map[string]any) (string, error) {
			assert.Equal(t, "A1:B2", args["range"])
			return "1,2\n3,4", nil
		},
	}
	o := New(gatewayWith(backend), tools)

	reply, err := o.ProcessMessage(context.Background(), "what is in A1:B2?")
	require.NoError(t, err)
	assert.Equal(t, "The range holds 1,2 and 3,4.", reply)
	assert.Equal(t, 2, backend.calls)

	// The second send carries the tool result appended after the tool use.
	second := backend.seen[1]
	require.Len(t, second, 3)
	last := second[2]
	assert.Equal(t, schema.RoleUser, last.Role)
	require.Len(t, last.Content, 1)
	assert.Equal(t, schema.ToolResultBlock("tu_1", "1,2\n3,4", false), last.Content[0])
	assert.Equal(t, []schema.ToolDescriptor{readRangeTool}, backend.tools[1])
}

func TestProcessMessage_RoundBudget(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.ToolUseBlock("tu", "read_range", map[string]any{"range": "A1"})),
	}}
	o := New(gatewayWith(backend), &fakeTools{}, WithMaxRounds(3))

	_, err := o.ProcessMessage(context.Background(), "loop forever")
	require.ErrorIs(t, err, ErrRoundBudgetExceeded)
	assert.Equal(t, 3, backend.calls)
	assert.Contains(t, UserMessage(err), "simpler request")
	assert.Empty(t, o.History(), "failed request is rolled back")
}

func TestProcessMessage_DefaultRoundCeiling(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.ToolUseBlock("tu", "noop", nil)),
	}}
	o := New(gatewayWith(backend), &fakeTools{})

	_, err := o.ProcessMessage(context.Background(), "loop")
	require.ErrorIs(t, err, ErrRoundBudgetExceeded)
	assert.Equal(t, 10, backend.calls)
}

func TestProcessMessage_MalformedToolUseSkipped(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(
			schema.ToolUseBlock("", "read_range", map[string]any{"range": "A1"}),
			schema.ToolUseBlock("tu_2", "", nil),
			schema.ToolUseBlock("tu_3", "read_range", map[string]any{"range": "B2"}),
		),
		text("done"),
	}}
	tools := &fakeTools{}
	o := New(gatewayWith(backend), tools)

	reply, err := o.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
	assert.Equal(t, []string{"read_range"}, tools.calls)

	hist := o.History()
	require.Len(t, hist, 4)
	assert.Len(t, hist[1].ToolUses(), 1, "malformed blocks are not replayed")
	require.Len(t, hist[2].Content, 1)
	assert.Equal(t, "tu_3", hist[2].Content[0].ToolUseID)
}

func TestProcessMessage_DuplicateToolUseIDSkipped(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(
			schema.ToolUseBlock("dup", "read_range", map[string]any{"range": "A1"}),
			schema.ToolUseBlock("dup", "read_range", map[string]any{"range": "B2"}),
		),
		text("done"),
	}}
	tools := &fakeTools{}
	o := New(gatewayWith(backend), tools)

	reply, err := o.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
	assert.Equal(t, []string{"read_range"}, tools.calls, "the repeated id is not invoked")

	hist := o.History()
	require.Len(t, hist, 4)
	uses := hist[1].ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "A1", uses[0].Input["range"])
	require.Len(t, hist[2].Content, 1, "one tool_result per id")
	assert.Equal(t, "dup", hist[2].Content[0].ToolUseID)
}

func TestProcessMessage_OnlyMalformedUsesEndsTurn(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.TextBlock("Let me check."), schema.ToolUseBlock("", "read_range", nil)),
	}}
	o := New(gatewayWith(backend), &fakeTools{})

	reply, err := o.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "Let me check.", reply)
}

func TestProcessMessage_ToolErrorStaysInConversation(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(
			schema.ToolUseBlock("tu_1", "open", map[string]any{"path": "missing.xlsx"}),
			schema.ToolUseBlock("tu_2", "crash", nil),
			schema.ToolUseBlock("tu_3", "list", nil),
		),
		text("The file does not exist."),
	}}
	tools := &fakeTools{handler: func(name string, _ map[string]any) (string, error) {
		switch name {
		case "open":
			return "", &mcp.ToolError{Tool: name, Text: "file not found"}
		case "crash":
			return "", fmt.Errorf("call crash: %w", mcp.ErrNotReady)
		}
		return "sheet1", nil
	}}
	o := New(gatewayWith(backend), tools)

	reply, err := o.ProcessMessage(context.Background(), "open missing.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "The file does not exist.", reply)
	assert.Equal(t, []string{"open", "crash", "list"}, tools.calls)

	results := backend.seen[1][2].Content
	require.Len(t, results, 3)
	assert.Equal(t, schema.ToolResultBlock("tu_1", "Tool error: file not found", true), results[0])
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Text, "not ready")
	assert.False(t, results[2].IsError)
}

func TestProcessMessage_InvalidArgumentsBecomeErrorResult(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.ToolUseBlock("tu_1", "read_range", map[string]any{"range": 42})),
		text("sorry"),
	}}
	tools := &fakeTools{catalog: []schema.ToolDescriptor{readRangeTool}}
	o := New(gatewayWith(backend), tools)

	_, err := o.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Empty(t, tools.calls, "invalid arguments never reach the tool server")

	result := backend.seen[1][2].Content[0]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "invalid arguments for read_range")
}

func TestProcessMessage_CatalogFailureDegrades(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{text("no tools, but hi")}}
	o := New(gatewayWith(backend), &fakeTools{listErr: errors.New("tools/list timed out")})

	reply, err := o.ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "no tools, but hi", reply)
	assert.Empty(t, backend.tools[0])
}

func TestProcessMessage_EnsureReadyFailureAborts(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{text("unused")}}
	launchErr := &mcp.LaunchError{Attempts: []string{"python"}, Err: errors.New("exec: not found")}
	o := New(gatewayWith(backend), &fakeTools{readyErr: launchErr})

	_, err := o.ProcessMessage(context.Background(), "hi")
	require.ErrorIs(t, err, mcp.ErrProcessLaunch)
	assert.Zero(t, backend.calls)
	assert.Contains(t, UserMessage(err), "Could not start")
	assert.Empty(t, o.History())
}

func TestProcessMessage_BackendFailureNotRetried(t *testing.T) {
	backend := &scriptedBackend{name: "openai", err: fmt.Errorf("openai: %w", providers.ErrRateLimited)}
	o := New(gatewayWith(backend), &fakeTools{})

	_, err := o.ProcessMessage(context.Background(), "hi")
	require.ErrorIs(t, err, providers.ErrRateLimited)
	assert.Equal(t, 1, backend.calls)
}

func TestProcessMessage_EmptyReplyUsesFallback(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		{Content: []schema.ContentBlock{schema.TextBlock(""), schema.TextBlock("  ")}},
	}}
	o := New(gatewayWith(backend), &fakeTools{})

	reply, err := o.ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
}

func TestProcessMessage_CancelledBetweenTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(
			schema.ToolUseBlock("tu_1", "first", nil),
			schema.ToolUseBlock("tu_2", "second", nil),
		),
	}}
	tools := &fakeTools{handler: func(string, map[string]any) (string, error) {
		cancel()
		return "done", nil
	}}
	o := New(gatewayWith(backend), tools)

	_, err := o.ProcessMessage(ctx, "go")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, tools.calls)
	assert.Equal(t, "Request cancelled.", UserMessage(err))
}

func TestSetProvider_SelectsBackend(t *testing.T) {
	claude := &scriptedBackend{name: "anthropic", replies: []schema.Response{text("from claude")}}
	gemini := &scriptedBackend{name: "gemini", replies: []schema.Response{text("from gemini")}}
	o := New(gatewayWith(claude, gemini), &fakeTools{})

	assert.Equal(t, "anthropic", o.Provider())
	o.SetProvider("GEMINI")
	assert.Equal(t, "gemini", o.Provider())
	reply, err := o.ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", reply)

	o.SetProvider("unknown-vendor")
	assert.Equal(t, "anthropic", o.Provider())
}

func TestProgressAndReset(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic", replies: []schema.Response{
		toolUse(schema.TextBlock("Reading"), schema.ToolUseBlock("tu_1", "read_range", map[string]any{"range": "A1:B2"})),
		text("done"),
	}}
	var hints []string
	o := New(gatewayWith(backend), &fakeTools{}, WithProgress(func(s string) { hints = append(hints, s) }))

	_, err := o.ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reading", `read_range("A1:B2")`}, hints)

	o.Reset()
	assert.Empty(t, o.History())
}

func TestProcessMessage_NoBackend(t *testing.T) {
	o := New(providers.NewGateway(nil), &fakeTools{})
	_, err := o.ProcessMessage(context.Background(), "hi")
	require.ErrorIs(t, err, providers.ErrNoBackend)
	assert.Contains(t, UserMessage(err), "onboard")
}
