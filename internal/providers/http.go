package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sheetpilot/sheetpilot/internal/logging"
)

const defaultHTTPTimeout = 120 * time.Second

// transport is the JSON-over-HTTP plumbing shared by the vendor backends.
type transport struct {
	name    string
	client  *http.Client
	limiter *RateLimiter
	headers map[string]string
	logger  *slog.Logger
}

func newTransport(name string, p Params) transport {
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return transport{
		name:    name,
		client:  client,
		limiter: NewRateLimiter(p.RequestsPerMinute),
		headers: p.ExtraHeaders,
		logger:  logger.With("backend", name),
	}
}

// postJSON waits for a rate-limit turn, posts body and decodes a 2xx reply
// into out.
func (t transport) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	if err := t.limiter.WaitTurn(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", t.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %v", t.name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", t.name, err)
	}
	t.logger.Debug("backend.response", "status", resp.StatusCode, "bytes", len(raw), "duration", time.Since(start).String())
	if err := statusError(t.name, resp.StatusCode, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s response: %w", t.name, err)
	}
	return nil
}
