// Package llm wraps the chat-completion and embedding providers used for
// theme extraction, label embeddings, and merge suggestions.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
)

// ClientConfig carries the provider settings the client needs.
type ClientConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	DelayAfterRequest time.Duration
	MaxAttempts       int
}

// Client is a thin chat-completion wrapper with bounded exponential-backoff
// retries. Request-level timeouts come from the configured timeout; there is
// no whole-job timeout above this layer.
type Client struct {
	api               *openai.Client
	model             string
	timeout           time.Duration
	delayAfterRequest time.Duration
	maxAttempts       int
	log               zerolog.Logger
}

func NewClient(cfg ClientConfig, log zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:               openai.NewClientWithConfig(apiConfig),
		model:             cfg.Model,
		timeout:           cfg.Timeout,
		delayAfterRequest: cfg.DelayAfterRequest,
		maxAttempts:       cfg.MaxAttempts,
		log:               log,
	}, nil
}

// Complete sends one system+user exchange and returns the raw assistant text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	var lastErr error
	backoff := 2 * time.Second
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.CreateChatCompletion(reqCtx, request)
		cancel()

		if c.delayAfterRequest > 0 {
			// Some gateways rate-limit bursts; spacing requests out is
			// cheaper than eating their 429 retry-after cycle.
			select {
			case <-time.After(c.delayAfterRequest):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("chat completion returned no choices")
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Msg("chat completion failed")
		if attempt < c.maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
	}
	return "", fmt.Errorf("chat completion after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) Model() string { return c.model }
