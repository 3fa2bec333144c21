package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sheetpilot/sheetpilot/internal/config/tool"
	"github.com/sheetpilot/sheetpilot/internal/shared/llmutils"
)

const (
	jsonRPCVersion = "2.0"
	maxMessageSize = 12 * 1024 * 1024
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type response struct {
	result json.RawMessage
	err    error
}

// process is one running tool server plus its pipes. It is created by
// startProcess and never reused after exit.
type process struct {
	spec   tool.CommandSpec
	cmd    *exec.Cmd
	logger *slog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	mu      sync.Mutex
	pending map[string]chan response
	nextID  uint64
	exited  bool
	exitErr error

	startedAt time.Time
	readers   sync.WaitGroup
	done      chan struct{}
}

func startProcess(spec tool.CommandSpec, logger *slog.Logger) (*process, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	env := append([]string{}, os.Environ()...)
	env = append(env, "PYTHONUNBUFFERED=1")
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		spec:      spec,
		cmd:       cmd,
		logger:    logger.With("pid", cmd.Process.Pid),
		stdin:     stdin,
		pending:   make(map[string]chan response),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	p.readers.Add(2)
	go p.readLoop(stdout)
	go p.stderrLoop(stderr)
	go p.waitLoop()
	return p, nil
}

// call sends one request and waits for the reply with the same id.
// Abandoning the wait leaves the reader goroutine to discard the late reply.
func (p *process) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	respCh := make(chan response, 1)

	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return nil, errProcessExited
	}
	p.nextID++
	id := strconv.FormatUint(p.nextID, 10)
	p.pending[id] = respCh
	p.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		p.removePending(id)
		return nil, err
	}
	if err := p.write(payload); err != nil {
		p.removePending(id)
		return nil, fmt.Errorf("%w: write %s: %v", errProcessExited, method, err)
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	case <-ctx.Done():
		p.removePending(id)
		return nil, ctx.Err()
	}
}

// notify sends a message that carries no id and expects no reply.
func (p *process) notify(method string, params any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, Method: method, Params: params})
	if err != nil {
		return err
	}
	return p.write(payload)
}

func (p *process) write(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.stdin == nil {
		return errProcessExited
	}
	_, err := p.stdin.Write(append(payload, '\n'))
	return err
}

func (p *process) removePending(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *process) readLoop(stdout io.Reader) {
	defer p.readers.Done()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			p.dispatch(line)
		}
	}
	switch err := scanner.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		p.logger.Warn("toolserver.message_too_large", "limit", maxMessageSize)
		p.kill()
	case err != nil:
		p.logger.Debug("toolserver.stdout_closed", "error", err.Error())
	}
}

func (p *process) dispatch(line []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		// Servers print banners and log lines to stdout; skip them.
		p.logger.Debug("toolserver.non_json_stdout", "line", llmutils.Truncate(string(line), 200))
		return
	}
	id, ok := normalizeID(resp.ID)
	if !ok || resp.Method != "" {
		p.logger.Debug("toolserver.unsolicited_message", "method", resp.Method)
		return
	}

	p.mu.Lock()
	ch := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()
	if ch == nil {
		p.logger.Debug("toolserver.orphan_response", "id", id)
		return
	}
	if resp.Error != nil {
		ch <- response{err: resp.Error}
	} else {
		ch <- response{result: resp.Result}
	}
	close(ch)
}

// normalizeID accepts both "7" and 7 as the id of request "7".
func normalizeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return n.String(), true
	}
	return "", false
}

func (p *process) stderrLoop(stderr io.Reader) {
	defer p.readers.Done()
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if p.logServerLine(line) {
			continue
		}
		p.logger.Warn("toolserver.stderr", "message", line)
	}
}

// logServerLine forwards structured {"level","message",...} records at
// their own level.
func (p *process) logServerLine(line string) bool {
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return false
	}
	levelRaw, _ := payload["level"].(string)
	message, _ := payload["message"].(string)
	if levelRaw == "" || message == "" {
		return false
	}
	attrs := make([]any, 0, len(payload)*2)
	for key, value := range payload {
		if key == "level" || key == "message" {
			continue
		}
		attrs = append(attrs, key, value)
	}
	switch strings.ToLower(strings.TrimSpace(levelRaw)) {
	case "debug":
		p.logger.Debug(message, attrs...)
	case "info":
		p.logger.Info(message, attrs...)
	case "error", "critical":
		p.logger.Error(message, attrs...)
	default:
		p.logger.Warn(message, attrs...)
	}
	return true
}

// waitLoop drains both pipes before reaping the child, then fails every
// pending request.
func (p *process) waitLoop() {
	p.readers.Wait()
	err := p.cmd.Wait()
	if err == nil {
		err = errProcessExited
	} else {
		err = fmt.Errorf("%w: %v", errProcessExited, err)
	}

	p.mu.Lock()
	p.exited = true
	p.exitErr = err
	pending := p.pending
	p.pending = make(map[string]chan response)
	p.mu.Unlock()

	p.writeMu.Lock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	p.writeMu.Unlock()

	for _, ch := range pending {
		ch <- response{err: err}
		close(ch)
	}
	close(p.done)
}

func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *process) pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) kill() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// shutdown closes stdin so a well-behaved server exits on its own and
// kills it if it is still running after timeout.
func (p *process) shutdown(timeout time.Duration) {
	p.writeMu.Lock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	p.writeMu.Unlock()

	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	select {
	case <-p.done:
		return
	case <-time.After(timeout):
	}
	p.logger.Warn("toolserver.kill_after_shutdown_timeout", "timeout", timeout.String())
	p.kill()
	<-p.done
}
