// Package llm holds the plumbing shared by the remote model services:
// OpenAI-compatible client construction, retry classification with backoff,
// and call latency statistics.
package llm

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig selects an OpenAI-compatible endpoint.
type ClientConfig struct {
	APIKey  string
	BaseURL string // Empty uses the OpenAI default.
	Timeout time.Duration
}

// NewClient builds an OpenAI-compatible API client.
func NewClient(cfg ClientConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc)
}
