package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

type stubBackend struct{ name string }

func (s stubBackend) Name() string { return s.name }

func (s stubBackend) Send(context.Context, []schema.Message, []schema.ToolDescriptor) (schema.Response, error) {
	return schema.Response{Content: []schema.ContentBlock{schema.TextBlock("from " + s.name)}}, nil
}

func TestGateway_CaseInsensitiveSelection(t *testing.T) {
	g := NewGateway(nil)
	g.Register("Anthropic", stubBackend{"anthropic"})
	g.Register("openai", stubBackend{"openai"})

	b, ok := g.Get("OPENAI")
	require.True(t, ok)
	assert.Equal(t, "openai", b.Name())
	assert.Equal(t, []string{"anthropic", "openai"}, g.Names())
	assert.Equal(t, "anthropic", g.Default())
}

func TestGateway_UnknownFallsBackToDefault(t *testing.T) {
	g := NewGateway(nil)
	g.Register("anthropic", stubBackend{"anthropic"})
	g.Register("gemini", stubBackend{"gemini"})
	require.True(t, g.SetDefault("Gemini"))
	assert.False(t, g.SetDefault("mistral"))

	resp, err := g.Send(context.Background(), "mistral", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "from gemini", resp.Content[0].Text)
}

func TestGateway_Empty(t *testing.T) {
	_, err := NewGateway(nil).Resolve("anthropic")
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestBuildGateway_RegistersConfiguredBackends(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LANGCHAIN_API_KEY", "")

	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	cfg.Agents.Defaults.Provider = "OpenAI"

	g := BuildGateway(&cfg, nil)
	// langchain targets a local base by default and needs no key.
	assert.Equal(t, []string{"langchain", "openai"}, g.Names())
	assert.Equal(t, "openai", g.Default())
}

func TestBuildGateway_EnvKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Provider = "gemini"

	g := BuildGateway(&cfg, nil)
	b, ok := g.Get("gemini")
	require.True(t, ok)
	assert.Equal(t, "from-env", b.(*GeminiBackend).params.APIKey)
	assert.Equal(t, "gemini", g.Default())
}

func TestRegistry_Lookup(t *testing.T) {
	require.NotNil(t, FindByName(" Gemini "))
	assert.Nil(t, FindByName("codex"))
	assert.Equal(t, "anthropic", FindByModel("claude-sonnet-4-5").Name)
	assert.Equal(t, "openai", FindByModel("gpt-4o").Name)
	assert.Equal(t, "gemini", FindByModel("gemini/whatever").Name)
	assert.Equal(t, "LangChain (OpenAI-compatible)", FindByName("langchain").Label())
}

func TestRateLimiter_SpacesCalls(t *testing.T) {
	rl := NewRateLimiter(600) // one per 100ms
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, rl.WaitTurn(ctx))
	require.NoError(t, rl.WaitTurn(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_CancelledWait(t *testing.T) {
	rl := NewRateLimiter(1)
	require.NoError(t, rl.WaitTurn(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.WaitTurn(ctx))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.WaitTurn(context.Background()))
	}
}
