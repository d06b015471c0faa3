package openai

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ClientConfig holds the connection settings for an OpenAI-compatible endpoint.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a go-openai client. An empty BaseURL keeps the public API.
func NewClient(cfg ClientConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(config)
}
