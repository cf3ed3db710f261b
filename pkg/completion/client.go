// Package completion performs single, blocking chat completion exchanges
// against an OpenAI-compatible endpoint.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/picochat/pkg/llm"
	"github.com/papercomputeco/picochat/pkg/logger"
)

// DefaultEndpoint is the chat completions URL used when none is configured.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Config is the immutable client configuration, read once at startup.
type Config struct {
	// Endpoint is the full chat completions URL.
	Endpoint string

	// APIKey is sent as a Bearer token.
	APIKey string

	// Model is the model identifier placed in every request.
	Model string

	Temperature float64
	TopP        float64
	MaxTokens   int

	// Timeout bounds the whole exchange at the transport layer. Zero means no timeout.
	Timeout time.Duration
}

// Client executes one request/response cycle per call. It never retries:
// failures are returned to the caller as they happen.
type Client struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete submits messages and returns the trimmed content of the first
// choice. Errors are one of *NetworkError, *HTTPError or
// *MalformedResponseError, except for request construction failures.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	startTime := time.Now()

	req := llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	c.logger.Debug("sending completion request",
		zap.String("url", c.config.Endpoint),
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)),
		zap.Int("body_size", len(reqBody)),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("received completion response",
		zap.Int("status", httpResp.StatusCode),
		zap.Int("body_size", len(body)),
		zap.Duration("duration", time.Since(startTime)),
	)

	if httpResp.StatusCode != http.StatusOK {
		return "", newHTTPError(httpResp.StatusCode, body)
	}

	content, err := extractContent(body)
	if err != nil {
		c.logger.Debug("unexpected response shape",
			zap.String("body", logger.Truncate(string(body), 200)),
			zap.Error(err),
		)
		return "", err
	}

	return content, nil
}

func newHTTPError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{
		StatusCode: status,
		Body:       string(body),
	}

	var apiErr llm.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		httpErr.Message = apiErr.Error.Message
	}

	return httpErr
}

// extractContent reads choices[0].message.content, checking each step of the
// path explicitly.
func extractContent(body []byte) (string, error) {
	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &MalformedResponseError{Detail: "invalid JSON", Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Detail: "no choices in response"}
	}

	msg := resp.Choices[0].Message
	if msg == nil {
		return "", &MalformedResponseError{Detail: "choices[0] has no message"}
	}
	if msg.Content == nil {
		return "", &MalformedResponseError{Detail: "choices[0].message has no content"}
	}

	return strings.TrimSpace(*msg.Content), nil
}
