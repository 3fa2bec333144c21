package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sheetpilot/sheetpilot/internal/config/tool"
	"github.com/sheetpilot/sheetpilot/internal/shared/llmutils"
)

// DiscoveryFile is the launch descriptor searched for next to the
// workspace, in the working directory and in the data directory.
const DiscoveryFile = "toolserver.yaml"

// EnvDiscoveryFile overrides the discovery search with an explicit path.
const EnvDiscoveryFile = "SHEETPILOT_TOOLSERVER_CONFIG"

// discoveryDoc is the toolserver.yaml layout: a primary command at the
// top level plus optional fallbacks.
type discoveryDoc struct {
	tool.CommandSpec `yaml:",inline"`
	Fallbacks        []tool.CommandSpec `yaml:"fallbacks"`
}

// Launcher turns the configured launch methods into a living process.
type Launcher struct {
	cfg        tool.ToolServerConfig
	searchDirs []string
	logger     *slog.Logger

	lookPath func(string) (string, error)
	install  func(ctx context.Context, argv []string) error
}

func newLauncher(cfg tool.ToolServerConfig, searchDirs []string, logger *slog.Logger) *Launcher {
	return &Launcher{
		cfg:        cfg,
		searchDirs: searchDirs,
		logger:     logger,
		lookPath:   exec.LookPath,
		install:    runInstall,
	}
}

// Candidates returns launch methods in priority order: the discovered
// descriptor file, the primary command, then the fallbacks. Entries whose
// executable cannot be found are dropped.
func (l *Launcher) Candidates() []tool.CommandSpec {
	var all []tool.CommandSpec
	if doc, path, err := l.discover(); err != nil {
		l.logger.Warn("toolserver.discovery_failed", "path", path, "error", err.Error())
	} else if doc != nil {
		l.logger.Debug("toolserver.discovered", "path", path)
		if doc.Command != "" {
			all = append(all, doc.CommandSpec)
		}
		all = append(all, doc.Fallbacks...)
	}
	if l.cfg.Primary.Command != "" {
		all = append(all, l.cfg.Primary)
	}
	all = append(all, l.cfg.Fallbacks...)

	out := make([]tool.CommandSpec, 0, len(all))
	seen := make(map[string]bool)
	for _, spec := range all {
		if strings.TrimSpace(spec.Command) == "" {
			continue
		}
		resolved, err := l.lookPath(spec.Command)
		if err != nil {
			l.logger.Debug("toolserver.candidate_missing", "command", spec.Command)
			continue
		}
		key := fmt.Sprint(resolved, spec.Args, spec.Env, spec.WorkDir)
		if seen[key] {
			continue
		}
		seen[key] = true
		spec.Command = resolved
		out = append(out, spec)
	}
	return out
}

func (l *Launcher) discover() (*discoveryDoc, string, error) {
	for _, path := range l.discoveryPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, path, err
		}
		var doc discoveryDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, path, fmt.Errorf("parse %s: %w", path, err)
		}
		if doc.WorkDir != "" && !filepath.IsAbs(doc.WorkDir) {
			doc.WorkDir = filepath.Join(filepath.Dir(path), doc.WorkDir)
		}
		return &doc, path, nil
	}
	return nil, "", nil
}

func (l *Launcher) discoveryPaths() []string {
	if p := strings.TrimSpace(os.Getenv(EnvDiscoveryFile)); p != "" {
		return []string{p}
	}
	var paths []string
	if l.cfg.ConfigFile != "" {
		paths = append(paths, l.cfg.ConfigFile)
	}
	dirs := append([]string{}, l.searchDirs...)
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	for _, dir := range dirs {
		if dir != "" {
			paths = append(paths, filepath.Join(dir, DiscoveryFile))
		}
	}
	return paths
}

// Launch starts the first candidate that is still alive after the start
// grace period. When every candidate fails and auto-install is enabled the
// install command runs once and the candidates are tried again.
func (l *Launcher) Launch(ctx context.Context) (*process, error) {
	p, attempts, err := l.tryCandidates(ctx)
	if p != nil {
		return p, nil
	}
	if !l.cfg.AutoInstall || len(l.cfg.InstallCommand) == 0 || ctx.Err() != nil {
		return nil, &LaunchError{Attempts: attempts, Err: err}
	}

	l.logger.Info("toolserver.installing", "command", strings.Join(l.cfg.InstallCommand, " "))
	installCtx, cancel := context.WithTimeout(ctx, l.cfg.InstallTimeout())
	installErr := l.install(installCtx, l.cfg.InstallCommand)
	cancel()
	if installErr != nil {
		return nil, &LaunchError{Attempts: attempts, Err: fmt.Errorf("install: %w", installErr)}
	}

	p, retried, err := l.tryCandidates(ctx)
	if p != nil {
		return p, nil
	}
	return nil, &LaunchError{Attempts: append(attempts, retried...), Err: err}
}

func (l *Launcher) tryCandidates(ctx context.Context) (*process, []string, error) {
	candidates := l.Candidates()
	if len(candidates) == 0 {
		return nil, nil, errors.New("no launch command found on PATH")
	}
	var (
		attempts []string
		lastErr  error
	)
	for _, spec := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		attempts = append(attempts, filepath.Base(spec.Command))
		p, err := startProcess(spec, l.logger)
		if err != nil {
			l.logger.Warn("toolserver.start_failed", "command", spec.Command, "error", err.Error())
			lastErr = err
			continue
		}
		if err := waitGrace(ctx, p, l.cfg.StartGrace()); err != nil {
			l.logger.Warn("toolserver.exited_during_start", "command", spec.Command, "error", err.Error())
			lastErr = err
			continue
		}
		l.logger.Debug("toolserver.started", "command", spec.Command, "pid", p.pid())
		return p, attempts, nil
	}
	return nil, attempts, lastErr
}

// waitGrace returns nil when p is still running after grace.
func waitGrace(ctx context.Context, p *process, grace time.Duration) error {
	if grace <= 0 {
		if p.alive() {
			return nil
		}
		return p.err()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.err()
	case <-timer.C:
		return nil
	case <-ctx.Done():
		p.kill()
		return ctx.Err()
	}
}

func runInstall(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, llmutils.Truncate(strings.TrimSpace(string(out)), 200))
	}
	return nil
}
