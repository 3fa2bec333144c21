// Package dependency wires sheetpilot's services using go.uber.org/dig.
package dependency

import (
	"log/slog"

	"go.uber.org/dig"

	"github.com/sheetpilot/sheetpilot/internal/agent"
	"github.com/sheetpilot/sheetpilot/internal/config"
	"github.com/sheetpilot/sheetpilot/internal/logging"
	"github.com/sheetpilot/sheetpilot/internal/mcp"
	"github.com/sheetpilot/sheetpilot/internal/providers"
)

// Version is announced to the tool server during the handshake.
const Version = "0.1.0"

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg          *config.Config
	logger       *slog.Logger
	toolClient   *mcp.Client
	monitor      *mcp.Monitor
	gateway      *providers.Gateway
	orchestrator *agent.Orchestrator

	closeLog func() error
}

func (c *Container) Config() *config.Config            { return c.cfg }
func (c *Container) Logger() *slog.Logger              { return c.logger }
func (c *Container) ToolClient() *mcp.Client           { return c.toolClient }
func (c *Container) Monitor() *mcp.Monitor             { return c.monitor }
func (c *Container) Gateway() *providers.Gateway       { return c.gateway }
func (c *Container) Orchestrator() *agent.Orchestrator { return c.orchestrator }

// Close stops the monitor, shuts the tool server down and flushes the log
// file.
func (c *Container) Close() error {
	c.monitor.Stop()
	err := c.toolClient.Close()
	if c.closeLog != nil {
		if cerr := c.closeLog(); err == nil {
			err = cerr
		}
	}
	return err
}

// Debug enables the JSON debug log under the data directory.
type Debug bool

type logOutput struct {
	logger *slog.Logger
	close  func() error
}

// New builds and wires all services from cfg.
func New(cfg *config.Config, debug bool) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() Debug { return Debug(debug) }); err != nil {
		return nil, err
	}
	if err := d.Provide(newLogOutput); err != nil {
		return nil, err
	}
	if err := d.Provide(func(out logOutput) *slog.Logger { return out.logger }); err != nil {
		return nil, err
	}
	if err := d.Provide(newToolClient); err != nil {
		return nil, err
	}
	if err := d.Provide(newMonitor); err != nil {
		return nil, err
	}
	if err := d.Provide(newGateway); err != nil {
		return nil, err
	}
	if err := d.Provide(newOrchestrator); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		out logOutput,
		client *mcp.Client,
		monitor *mcp.Monitor,
		gateway *providers.Gateway,
		orch *agent.Orchestrator,
	) {
		result = &Container{
			cfg:          cfg,
			logger:       out.logger,
			toolClient:   client,
			monitor:      monitor,
			gateway:      gateway,
			orchestrator: orch,
			closeLog:     out.close,
		}
	})
	return result, err
}

// newLogOutput sends records to the debug file when enabled and to stderr
// at the configured level otherwise.
func newLogOutput(cfg *config.Config, debug Debug) (logOutput, error) {
	file, err := logging.NewFileLogger(config.DataDir(), bool(debug))
	if err != nil {
		return logOutput{}, err
	}
	if file.Enabled {
		slog.SetDefault(file.Logger)
		return logOutput{logger: file.Logger, close: file.Close}, nil
	}
	return logOutput{logger: logging.New(cfg.Logging.Level, cfg.Logging.JSON), close: file.Close}, nil
}

func newToolClient(cfg *config.Config, logger *slog.Logger) *mcp.Client {
	return mcp.New(cfg.ToolServer,
		mcp.WithLogger(logger),
		mcp.WithSearchDirs(config.DataDir(), cfg.WorkspacePath()),
		mcp.WithClientInfo("sheetpilot", Version),
	)
}

func newMonitor(cfg *config.Config, client *mcp.Client) *mcp.Monitor {
	return mcp.NewMonitor(client, cfg.ToolServer.HealthSchedule)
}

func newGateway(cfg *config.Config, logger *slog.Logger) *providers.Gateway {
	return providers.BuildGateway(cfg, logger)
}

func newOrchestrator(cfg *config.Config, gateway *providers.Gateway, client *mcp.Client, logger *slog.Logger) *agent.Orchestrator {
	defaults := cfg.Agents.Defaults
	return agent.New(gateway, client,
		agent.WithLogger(logger),
		agent.WithMaxRounds(defaults.MaxToolRounds),
		agent.WithProvider(defaults.Provider),
	)
}
