// Package gemini implements the text-generation capability over the Gemini
// API. It is the only place that knows about the concrete provider; the rest
// of the application talks to the services.Generator interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the model used when the configuration does not name one.
const DefaultModel = "gemini-2.0-flash-lite"

// ErrEmptyCompletion is returned when the service answers successfully but
// produces no usable text. Callers must never observe a silent empty string.
var ErrEmptyCompletion = errors.New("gemini: model returned no usable text")

// Client wraps a Gemini API client pinned to one model.
type Client struct {
	api   *genai.Client
	model string
}

// NewClient constructs a Gemini-backed generator. model may be empty, in
// which case DefaultModel is used.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	if model == "" {
		model = DefaultModel
	}
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{api: api, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate performs a single generation call and returns the trimmed text.
// Transport and service failures are wrapped; a successful call with no text
// surfaces as ErrEmptyCompletion. The call blocks for a network-bound,
// non-deterministic duration; pass a ctx with a deadline when the caller
// needs a bound.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
