// Package mcp supervises the local spreadsheet tool server and speaks
// line-delimited JSON-RPC 2.0 to it over the child's stdio pipes.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sheetpilot/sheetpilot/internal/config/tool"
	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/schema"
)

// ProtocolVersion is the MCP revision sent in the initialize request.
const ProtocolVersion = "2024-11-05"

const maxCatalogPages = 50

// Client owns at most one tool server process at a time. It launches the
// process lazily, restarts it after a crash within a bounded budget and
// serialises every exchange with it.
type Client struct {
	cfg      tool.ToolServerConfig
	launcher *Launcher
	logger   *slog.Logger

	clientName    string
	clientVersion string
	searchDirs    []string

	mu           sync.Mutex
	changed      chan struct{}
	state        State
	proc         *process
	restarts     int
	lastErr      error
	restartTimer *time.Timer
	catalog      []schema.ToolDescriptor
	catalogFor   *process

	sem   chan struct{}
	group singleflight.Group
}

// Option customises a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSearchDirs adds directories searched for toolserver.yaml.
func WithSearchDirs(dirs ...string) Option {
	return func(c *Client) { c.searchDirs = append(c.searchDirs, dirs...) }
}

// WithClientInfo sets the clientInfo announced during the handshake.
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.clientName = name
		c.clientVersion = version
	}
}

func New(cfg tool.ToolServerConfig, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg,
		logger:        logging.Nop(),
		clientName:    "sheetpilot",
		clientVersion: "0.1.0",
		sem:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "toolserver")
	c.launcher = newLauncher(cfg, c.searchDirs, c.logger)
	c.changed = make(chan struct{})
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a diagnostic snapshot.
func (c *Client) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := map[string]any{
		"state":         c.state.String(),
		"restarts":      c.restarts,
		"maxRestarts":   c.cfg.MaxRestarts,
		"catalogCached": c.catalog != nil,
	}
	if c.proc != nil {
		status["pid"] = c.proc.pid()
		status["command"] = c.proc.spec.Command
		status["uptime"] = time.Since(c.proc.startedAt).Round(time.Second).String()
	}
	if c.lastErr != nil {
		status["lastError"] = c.lastErr.Error()
	}
	return status
}

// EnsureReady launches the tool server if none is running and completes
// the handshake. From Degraded it restarts, consuming one unit of the
// restart budget.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	if err := c.waitSettledLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateFailed:
		err := c.lastErr
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
		return ErrFailed
	case StateReady:
		if c.proc != nil && c.proc.alive() {
			c.mu.Unlock()
			return nil
		}
		// Exit not yet observed by watch; it will find c.proc replaced.
		c.detachLocked(c.proc)
		c.state = StateDegraded
	}
	return c.startLocked(ctx)
}

// waitSettledLocked blocks until no launch is in flight or ctx ends.
// It is entered and left with c.mu held.
func (c *Client) waitSettledLocked(ctx context.Context) error {
	for c.state.transitional() {
		changed := c.changed
		c.mu.Unlock()
		select {
		case <-changed:
			c.mu.Lock()
		case <-ctx.Done():
			c.mu.Lock()
			return fmt.Errorf("wait for tool server: %w", ctx.Err())
		}
	}
	return nil
}

// broadcastLocked wakes every waiter parked in waitSettledLocked.
func (c *Client) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// startLocked is entered with c.mu held and returns with it released.
func (c *Client) startLocked(ctx context.Context) error {
	restarting := c.state == StateDegraded
	if restarting {
		if c.restarts >= c.cfg.MaxRestarts {
			c.state = StateFailed
			c.broadcastLocked()
			c.mu.Unlock()
			return ErrFailed
		}
		c.restarts++
		c.state = StateRestarting
		c.logger.Info("toolserver.restarting", "attempt", c.restarts, "max", c.cfg.MaxRestarts)
	} else {
		c.state = StateStarting
	}
	c.stopRestartTimerLocked()
	c.mu.Unlock()

	p, err := c.launch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.broadcastLocked()

	if c.state == StateClosed {
		if p != nil {
			go p.shutdown(c.cfg.ShutdownTimeout())
		}
		return ErrClosed
	}
	if err != nil {
		c.lastErr = err
		c.logger.Warn("toolserver.start_failed", "error", err.Error())
		switch {
		case !restarting:
			c.state = StateNotStarted
		case c.restarts >= c.cfg.MaxRestarts:
			c.state = StateFailed
		default:
			c.state = StateDegraded
			if c.cfg.AutoRestart {
				c.scheduleRestartLocked()
			}
		}
		return err
	}

	c.proc = p
	c.state = StateReady
	c.lastErr = nil
	go c.watch(p)
	return nil
}

func (c *Client) launch(ctx context.Context) (*process, error) {
	p, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout())
	defer cancel()
	if err := c.handshake(hctx, p); err != nil {
		p.kill()
		return nil, err
	}
	return p, nil
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

func (c *Client) handshake(ctx context.Context, p *process) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": c.clientName, "version": c.clientVersion},
	}
	raw, err := p.call(ctx, "initialize", params)
	if err != nil {
		return &HandshakeError{Err: exchangeError("initialize", c.cfg.HandshakeTimeout(), err)}
	}
	var res initializeResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return &HandshakeError{Err: fmt.Errorf("decode initialize result: %w", err)}
		}
	}
	if err := p.notify("notifications/initialized", nil); err != nil {
		return &HandshakeError{Err: err}
	}
	c.logger.Info("toolserver.ready",
		"server", res.ServerInfo.Name,
		"serverVersion", res.ServerInfo.Version,
		"protocolVersion", res.ProtocolVersion,
		"pid", p.pid(),
	)
	return nil
}

// watch observes the exit of p and drives the Degraded transition.
func (c *Client) watch(p *process) {
	<-p.done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc != p {
		return
	}
	c.detachLocked(p)
	c.lastErr = p.err()

	if window := c.cfg.RestartWindow(); window > 0 && time.Since(p.startedAt) > window {
		c.restarts = 0
	}
	c.logger.Warn("toolserver.exited", "error", errString(c.lastErr), "restarts", c.restarts)

	if c.state != StateReady {
		return
	}
	if c.restarts >= c.cfg.MaxRestarts {
		c.state = StateFailed
		c.logger.Error("toolserver.restart_budget_exhausted", "max", c.cfg.MaxRestarts)
		c.broadcastLocked()
		return
	}
	c.state = StateDegraded
	if c.cfg.AutoRestart {
		c.scheduleRestartLocked()
	}
}

// detachLocked drops p as the live handle and invalidates its catalogue.
func (c *Client) detachLocked(p *process) {
	if c.proc == p {
		c.proc = nil
	}
	c.catalog = nil
	c.catalogFor = nil
}

func (c *Client) scheduleRestartLocked() {
	c.stopRestartTimerLocked()
	delay := c.cfg.RestartBackoff() * time.Duration(c.restarts+1)
	c.restartTimer = time.AfterFunc(delay, func() {
		if err := c.EnsureReady(context.Background()); err != nil {
			c.logger.Warn("toolserver.auto_restart_failed", "error", err.Error())
		}
	})
}

func (c *Client) stopRestartTimerLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

// Reinitialize clears a Failed state and the restart budget, tears down
// any live process and starts a fresh one.
func (c *Client) Reinitialize(ctx context.Context) error {
	c.mu.Lock()
	if err := c.waitSettledLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.proc
	c.detachLocked(prev)
	c.stopRestartTimerLocked()
	c.restarts = 0
	c.lastErr = nil
	c.state = StateNotStarted
	c.mu.Unlock()

	if prev != nil {
		prev.shutdown(c.cfg.ShutdownTimeout())
	}
	c.logger.Info("toolserver.reinitialize")
	return c.EnsureReady(ctx)
}

// Close shuts the process down gracefully. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.proc
	c.detachLocked(prev)
	c.stopRestartTimerLocked()
	c.state = StateClosed
	c.broadcastLocked()
	c.mu.Unlock()

	if prev != nil {
		prev.shutdown(c.cfg.ShutdownTimeout())
	}
	return nil
}

// recycle kills the live process so the supervisor treats it as crashed.
func (c *Client) recycle(reason string) {
	c.mu.Lock()
	p := c.proc
	c.mu.Unlock()
	if p == nil {
		return
	}
	c.logger.Warn("toolserver.recycle", "reason", reason, "pid", p.pid())
	p.kill()
}

func (c *Client) busy() bool {
	return len(c.sem) > 0
}

func (c *Client) readyProcess() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return nil, ErrClosed
	case StateFailed:
		return nil, ErrFailed
	}
	if c.state != StateReady || c.proc == nil || !c.proc.alive() {
		return nil, ErrNotReady
	}
	return c.proc, nil
}

// roundTrip performs one serialised exchange with p, bounded by budget.
func (c *Client) roundTrip(ctx context.Context, p *process, method string, budget time.Duration, params any) (json.RawMessage, error) {
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, exchangeError(method, budget, ctx.Err())
	}
	defer func() { <-c.sem }()

	raw, err := p.call(ctx, method, params)
	return raw, exchangeError(method, budget, err)
}

type mcpTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type listToolsResult struct {
	Tools      []mcpTool `json:"tools"`
	NextCursor string    `json:"nextCursor"`
}

// ListTools returns the tool catalogue. It is fetched once per process
// lifetime; concurrent first calls share a single request.
func (c *Client) ListTools(ctx context.Context) ([]schema.ToolDescriptor, error) {
	p, err := c.readyProcess()
	if err != nil {
		return nil, err
	}
	if cached, ok := c.cachedCatalog(p); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do("catalog:"+strconv.Itoa(p.pid()), func() (any, error) {
		if cached, ok := c.cachedCatalog(p); ok {
			return cached, nil
		}
		tools, err := c.fetchCatalog(ctx, p)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.proc == p {
			c.catalog = tools
			c.catalogFor = p
		}
		c.mu.Unlock()
		c.logger.Info("toolserver.catalog_loaded", "tools", len(tools))
		return tools, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]schema.ToolDescriptor(nil), v.([]schema.ToolDescriptor)...), nil
}

func (c *Client) cachedCatalog(p *process) ([]schema.ToolDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil || c.catalogFor != p {
		return nil, false
	}
	return append([]schema.ToolDescriptor(nil), c.catalog...), true
}

func (c *Client) fetchCatalog(ctx context.Context, p *process) ([]schema.ToolDescriptor, error) {
	tools := []schema.ToolDescriptor{}
	cursor := ""
	for page := 0; page < maxCatalogPages; page++ {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		raw, err := c.roundTrip(ctx, p, "tools/list", c.cfg.DiscoveryTimeout(), params)
		if err != nil {
			return nil, err
		}
		var res listToolsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("decode tools/list result: %w", err)
		}
		for _, t := range res.Tools {
			if d, ok := c.toDescriptor(t); ok {
				tools = append(tools, d)
			}
		}
		if res.NextCursor == "" || res.NextCursor == cursor {
			break
		}
		cursor = res.NextCursor
	}
	return tools, nil
}

func (c *Client) toDescriptor(t mcpTool) (schema.ToolDescriptor, bool) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return schema.ToolDescriptor{}, false
	}
	params, err := schema.ParseParameterSchema(t.InputSchema)
	if err != nil {
		c.logger.Warn("toolserver.bad_input_schema", "tool", name, "error", err.Error())
		params, _ = schema.ParseParameterSchema(nil)
	}
	return schema.ToolDescriptor{Name: name, Description: t.Description, Parameters: params}, true
}

type contentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType"`
	Resource *struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	} `json:"resource"`
}

type callToolResult struct {
	Content           []contentItem   `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

// CallTool invokes name with args. A result the tool marks as erroneous is
// returned as a *ToolError whose message is "Tool error: <text>".
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	p, err := c.readyProcess()
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.roundTrip(ctx, p, "tools/call", c.cfg.CallTimeout(), map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var res callToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return string(raw), nil
	}
	text := joinContent(res.Content)
	if res.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", &ToolError{Tool: name, Text: text}
	}
	if text == "" && len(res.StructuredContent) > 0 && string(res.StructuredContent) != "null" {
		text = string(res.StructuredContent)
	}
	if text == "" {
		text = "(no output)"
	}
	return text, nil
}

func joinContent(items []contentItem) string {
	var parts []string
	for _, item := range items {
		switch {
		case item.Text != "":
			parts = append(parts, item.Text)
		case item.Resource != nil && item.Resource.Text != "":
			parts = append(parts, item.Resource.Text)
		case item.Type == "image":
			parts = append(parts, "[image "+item.MimeType+"]")
		}
	}
	return strings.Join(parts, "\n")
}

// HealthCheck reports whether the process is Ready, alive and answering.
// Servers without a ping method are considered healthy if they reply.
func (c *Client) HealthCheck(ctx context.Context) error {
	p, err := c.readyProcess()
	if err != nil {
		return err
	}
	_, err = c.roundTrip(ctx, p, "ping", c.cfg.HealthTimeout(), nil)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeMethodNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tool server health check failed: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ schema.ToolClient = (*Client)(nil)
