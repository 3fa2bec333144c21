package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// Monitor periodically health-checks a Client. A Ready process that fails
// the check is killed so the supervisor restarts it.
type Monitor struct {
	client   *Client
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	robfig  *robfigcron.Cron
	entryID robfigcron.EntryID
	checks  int
	fails   int
}

// NewMonitor returns a Monitor for c. schedule is any robfig/cron spec,
// including descriptors such as "@every 30s".
func NewMonitor(c *Client, schedule string) *Monitor {
	return &Monitor{
		client:   c,
		schedule: schedule,
		timeout:  c.cfg.HealthTimeout(),
		logger:   c.logger.With("component", "toolserver.monitor"),
	}
}

// Start registers the check. An empty schedule leaves the monitor idle.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schedule == "" || m.robfig != nil {
		return nil
	}
	r := robfigcron.New(robfigcron.WithChain(robfigcron.SkipIfStillRunning(robfigcron.DiscardLogger)))
	id, err := r.AddFunc(m.schedule, m.Check)
	if err != nil {
		return err
	}
	m.robfig = r
	m.entryID = id
	r.Start()
	m.logger.Debug("toolserver.monitor_started", "schedule", m.schedule)
	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.robfig
	m.robfig = nil
	m.mu.Unlock()
	if r != nil {
		<-r.Stop().Done()
	}
}

// Check runs one health check. Only an idle Ready process is probed; one
// busy with a long tool call is left alone.
func (m *Monitor) Check() {
	if m.client.State() != StateReady || m.client.busy() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.client.HealthCheck(ctx)

	m.mu.Lock()
	m.checks++
	if err != nil {
		m.fails++
	}
	m.mu.Unlock()

	if err != nil {
		m.client.recycle("health check failed: " + err.Error())
	}
}

// Stats returns the number of checks run and how many failed.
func (m *Monitor) Stats() (checks, fails int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks, m.fails
}
