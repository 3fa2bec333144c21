package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrProcessLaunch is matched by every *LaunchError.
	ErrProcessLaunch = errors.New("tool server could not be launched")
	// ErrNotReady is returned when an exchange is attempted while no Ready
	// process exists.
	ErrNotReady = errors.New("tool server is not ready")
	// ErrFailed is returned once the restart budget is exhausted. Only
	// Reinitialize clears it.
	ErrFailed = errors.New("tool server failed permanently")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tool client is closed")

	errProcessExited = errors.New("tool server process exited")
)

// JSON-RPC error codes the client reacts to.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// LaunchError reports that no candidate command produced a living process.
type LaunchError struct {
	Attempts []string
	Err      error
}

func (e *LaunchError) Error() string {
	msg := "tool server could not be launched"
	if len(e.Attempts) > 0 {
		msg += " (tried " + strings.Join(e.Attempts, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProcessLaunch}
	}
	return []error{ErrProcessLaunch, e.Err}
}

// HandshakeError reports that the process started but protocol
// negotiation failed.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tool server handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// RPCError is a well-formed JSON-RPC error object sent by the tool server.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolError means the server answered but the tool flagged its own
// execution as failed. It is relayed to the model, not escalated.
type ToolError struct {
	Tool string
	Text string
}

func (e *ToolError) Error() string {
	return "Tool error: " + e.Text
}

// TimeoutError reports an exchange that got no reply within its budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsToolError reports whether err carries a tool-level failure.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// exchangeError normalises what came back from process.call. Deadline
// expiry becomes a *TimeoutError and a dead process becomes ErrNotReady.
func exchangeError(op string, budget time.Duration, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Op: op, Timeout: budget}
	case errors.Is(err, errProcessExited):
		return fmt.Errorf("%s: %w: %v", op, ErrNotReady, err)
	}
	return err
}
