package providers

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// Gateway selects a backend by name. Names are case-insensitive; an unknown
// name resolves to the default backend.
type Gateway struct {
	mu       sync.RWMutex
	backends map[string]schema.Backend
	def      string
	logger   *slog.Logger
}

func NewGateway(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Gateway{backends: make(map[string]schema.Backend), logger: logger}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register adds b under name. The first registered backend becomes the
// default until SetDefault is called.
func (g *Gateway) Register(name string, b schema.Backend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key(name)
	g.backends[k] = b
	if g.def == "" {
		g.def = k
	}
}

// Get returns the backend registered under name, if any.
func (g *Gateway) Get(name string) (schema.Backend, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.backends[key(name)]
	return b, ok
}

// SetDefault makes name the fallback backend. It reports false for a name
// that is not registered.
func (g *Gateway) SetDefault(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key(name)
	if _, ok := g.backends[k]; !ok {
		return false
	}
	g.def = k
	return true
}

func (g *Gateway) Default() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.def
}

// Names lists registered backends in sorted order.
func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.backends))
	for k := range g.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the backend for name, falling back to the default.
func (g *Gateway) Resolve(name string) (schema.Backend, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	k := key(name)
	if b, ok := g.backends[k]; ok {
		return b, nil
	}
	b, ok := g.backends[g.def]
	if !ok {
		return nil, ErrNoBackend
	}
	if k != "" {
		g.logger.Warn("gateway.unknown_backend", "requested", name, "using", g.def)
	}
	return b, nil
}

// Send forwards to the backend selected by name.
func (g *Gateway) Send(ctx context.Context, name string, messages []schema.Message, tools []schema.ToolDescriptor) (schema.Response, error) {
	b, err := g.Resolve(name)
	if err != nil {
		return schema.Response{}, err
	}
	return b.Send(ctx, messages, tools)
}
