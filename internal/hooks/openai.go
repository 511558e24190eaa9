package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
}

// NewOpenAIClient creates a client for the given endpoint and model.
// An empty baseURL targets the public API.
func NewOpenAIClient(client HTTPClient, baseURL, apiKey, model string) *OpenAIClient {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAIClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		timeout: 30 * time.Second,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one prompt and returns the raw completion text.
// Transient failures (network errors, 429, 5xx) are retried with
// fibonacci backoff before giving up.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var out string
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http post: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, data)
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("api error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("empty choices")
		}
		out = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return out, nil
}
