// Package provider implements the answer-completion contract against
// OpenAI-compatible chat completion endpoints.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/repolens/repolens/internal/retry"
)

// Defaults applied when the endpoint configuration leaves them unset.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultTemperature = 0.2
)

// ErrEmptyCompletion indicates the API returned a response with no choices.
// Routing providers can do this under load behind an HTTP 200.
var ErrEmptyCompletion = errors.New("completion response has no choices")

// OpenAICompleter implements service.Completer against any endpoint that
// speaks the OpenAI chat completion protocol.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxRetries  int
	retryDelay  time.Duration
	temperature float32
	maxTokens   int
}

// OpenAIOption is a functional option for OpenAICompleter.
type OpenAIOption func(*OpenAICompleter)

// WithModel sets the completion model.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAICompleter) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxRetries sets the retry attempt ceiling.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *OpenAICompleter) { c.maxRetries = n }
}

// WithRetryDelay sets the delay before the first retry.
func WithRetryDelay(d time.Duration) OpenAIOption {
	return func(c *OpenAICompleter) { c.retryDelay = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(c *OpenAICompleter) { c.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAICompleter) { c.maxTokens = n }
}

// NewOpenAICompleter creates a completer for the given endpoint. An empty
// baseURL targets the public OpenAI API.
func NewOpenAICompleter(apiKey, baseURL string, timeout time.Duration, opts ...OpenAIOption) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	c := &OpenAICompleter{
		client:      openai.NewClientWithConfig(config),
		model:       DefaultModel,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a system prompt and a user prompt and returns the first
// choice's message content.
func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	policy := retry.NewPolicy(c.maxRetries, c.retryDelay, isRetryable)
	resp, err := retry.DoResult(ctx, policy, func() (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return openai.ChatCompletionResponse{}, err
		}
		if len(resp.Choices) == 0 {
			return openai.ChatCompletionResponse{}, ErrEmptyCompletion
		}
		return resp, nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return resp.Choices[0].Message.Content, nil
}

// isRetryable classifies completion errors. Rate limits, server-side
// failures, network errors, and empty responses are worth retrying; client
// errors are not.
func isRetryable(err error) bool {
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}
