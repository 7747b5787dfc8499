// Package anthropic implements ai.Generator using the Anthropic Messages
// API over plain HTTP.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/copairhq/copair/model"
)

const systemPrompt = "You are a pair-programming assistant inside a collaborative " +
	"code editor. Answer concisely and reference the shared code when it is provided."

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey string
	model  string
	client *http.Client
}

// New creates a client. Model defaults to "claude-sonnet-4-20250514" if
// empty.
func New(apiKey, modelName string) *Client {
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}
	return &Client{
		apiKey: apiKey,
		model:  modelName,
		client: http.DefaultClient,
	}
}

// Generate sends the prompt and returns the first text block of the
// reply. All failure modes wrap model.ErrUpstreamUnavailable so the
// engine can degrade to its fallback reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":      c.model,
		"max_tokens": 1024,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: anthropic API error (%d): %s",
			model.ErrUpstreamUnavailable, resp.StatusCode, string(respBody))
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", model.ErrUpstreamUnavailable, err)
	}

	for _, block := range result.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in response", model.ErrUpstreamUnavailable)
}
