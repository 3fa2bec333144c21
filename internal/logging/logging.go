package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values yield warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}

// New builds a stderr logger and installs it as the slog default.
func New(level string, jsonOutput bool) *slog.Logger {
	return install(os.Stderr, ParseLevel(level), jsonOutput)
}

func install(w io.Writer, level slog.Level, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

// NewFileLogger writes debug-level JSON records to <dataDir>/logs/sheetpilot.log.
// When debug is false it returns a disabled logger.
func NewFileLogger(dataDir string, debug bool) (FileLogger, error) {
	disabled := FileLogger{Logger: Nop(), Close: func() error { return nil }, Enabled: false}
	if !debug {
		return disabled, nil
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return disabled, err
	}
	path := filepath.Join(logDir, "sheetpilot.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return disabled, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	return FileLogger{
		Logger:  slog.New(handler),
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}
