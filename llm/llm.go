// Package llm wraps an OpenAI-compatible chat completion API behind a small
// interface so agents can run against fakes in tests and against Gemini's
// OpenAI-compatible endpoint in production.
package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Defaults target Gemini's OpenAI-compatible surface.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.0-flash"
)

// Service is the completion contract agents depend on.
type Service interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config selects the upstream provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// RequestsPerMinute throttles outbound calls; zero disables throttling.
	RequestsPerMinute int
}

// Client is the production Service backed by go-openai.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
}

// New builds a client for the configured provider.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	if apiCfg.BaseURL == "" {
		apiCfg.BaseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	slog.Info("llm: client ready", "model", model, "base_url", apiCfg.BaseURL)
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Complete sends one single-turn prompt and returns the trimmed response text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit wait")
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
