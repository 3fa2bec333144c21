package providers

import (
	"log/slog"
	"net/http"
	"strings"
)

// Params carries everything a backend constructor needs.
type Params struct {
	Name              string
	APIKey            string
	APIBase           string
	Model             string
	MaxTokens         int
	Temperature       float64
	SystemPrompt      string
	ExtraHeaders      map[string]string
	RequestsPerMinute int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (p Params) base(def string) string {
	b := p.APIBase
	if b == "" {
		b = def
	}
	return strings.TrimRight(b, "/")
}

func (p Params) maxTokens() int {
	if p.MaxTokens <= 0 {
		return 4096
	}
	return p.MaxTokens
}
