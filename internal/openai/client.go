// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the HTTP client for OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the endpoint client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
//
// Connection, status and timeout failures are transport errors: the request
// never produced a usable response and may be retried. Malformed means the
// endpoint answered 2xx but the body did not carry the expected completion
// shape; retrying is unlikely to help.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeStatus
	ErrTypeTimeout
	ErrTypeMalformed
)

// Sentinel errors for easy checking.
var (
	ErrUnreachable = &ClientError{Type: ErrTypeConnection, Message: "endpoint is not reachable"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsTransport reports whether err is a transport-class failure
// (connection, non-2xx status, or timeout).
func IsTransport(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		switch ce.Type {
		case ErrTypeConnection, ErrTypeStatus, ErrTypeTimeout:
			return true
		}
	}
	return false
}

// IsMalformed reports whether err indicates an unexpected response shape.
func IsMalformed(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == ErrTypeMalformed
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the endpoint client.
type ClientConfig struct {
	// BaseURL is the endpoint base URL with no trailing slash
	// (e.g. http://127.0.0.1:8080). Paths like /v1/chat/completions are
	// appended to it verbatim.
	BaseURL string

	// APIKey, when set, is sent as an Authorization bearer token. Local
	// servers usually ignore it but some gateways require one.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Temperature for generation (0.0-2.0).
	Temperature float64

	// MaxTokens bounds the completion length. Always finite; unbounded
	// generation is never requested.
	MaxTokens int

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for transport failures (default: 0, no retries).
	// Retrying is opt-in because it changes visible latency.
	MaxRetries int

	// RetryDelay is the initial backoff delay; it doubles per attempt
	// and is capped at 8x the initial value.
	RetryDelay time.Duration

	// RequestInterval paces outbound requests. Local inference servers
	// are single-tenant, so the default of one request per 100ms only
	// guards against accidental tight loops.
	RequestInterval time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://127.0.0.1:8080",
		Model:           "local-model",
		Temperature:     0.7,
		MaxTokens:       1024,
		Timeout:         30 * time.Second,
		MaxRetries:      0,
		RetryDelay:      1 * time.Second,
		RequestInterval: 100 * time.Millisecond,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with an OpenAI-compatible endpoint.
// It is safe for concurrent use.
//
// Example:
//
//	client := openai.NewClientWithConfig(&openai.ClientConfig{BaseURL: url})
//	if err := client.Probe(ctx); err != nil {
//	    log.Fatal("endpoint not reachable:", err)
//	}
//	text, usage, err := client.ChatText(ctx, messages)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client, filling zero values with defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Temperature == 0 {
		config.Temperature = defaults.Temperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.RequestInterval == 0 {
		config.RequestInterval = defaults.RequestInterval
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(config.RequestInterval), 1),
	}
}

// =============================================================================
// LIVENESS PROBE
// =============================================================================

// Probe verifies that the endpoint is reachable and answers the models
// listing path. A saved endpoint is only reported usable after Probe
// succeeds; "configured" and "reachable" are distinct states.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeConnection, Message: "endpoint is not reachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeStatus,
			Message: "unexpected status from endpoint: " + resp.Status,
		}
	}

	return nil
}

// ListModels retrieves the models the endpoint serves.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "endpoint is not reachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeStatus,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ModelList
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeMalformed, Message: "failed to decode models response", Cause: err}
	}

	return result.Data, nil
}

// =============================================================================
// CHAT COMPLETION
// =============================================================================

// Chat sends one chat completion request and returns the decoded response.
// Exactly one outbound request is made per attempt; transport failures are
// retried with capped exponential backoff only when MaxRetries is set.
func (c *Client) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	var lastErr error
	delay := c.config.RetryDelay
	maxDelay := 8 * c.config.RetryDelay

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		resp, err := c.chatOnce(ctx, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Malformed responses are not transient; do not retry them.
		if !IsTransport(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// ChatText is Chat with the content extraction applied: it returns
// choices[0].message.content and the usage accounting.
func (c *Client) ChatText(ctx context.Context, messages []Message) (string, Usage, error) {
	resp, err := c.Chat(ctx, messages)
	if err != nil {
		return "", Usage{}, err
	}
	content, ok := resp.FirstContent()
	if !ok {
		return "", Usage{}, &ClientError{
			Type:    ErrTypeMalformed,
			Message: "response has no message content",
		}
	}
	return content, resp.Usage, nil
}

// chatOnce performs a single request/response exchange.
func (c *Client) chatOnce(ctx context.Context, messages []Message) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ErrTimeout
	}

	reqBody := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "chat request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Surface the server's own message when it sends one.
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, &ClientError{
				Type:    ErrTypeStatus,
				Message: "endpoint returned " + resp.Status + ": " + apiErr.Error.Message,
			}
		}
		return nil, &ClientError{
			Type:    ErrTypeStatus,
			Message: "endpoint returned " + resp.Status,
		}
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeMalformed, Message: "failed to decode response", Cause: err}
	}

	if len(result.Choices) == 0 {
		return nil, &ClientError{Type: ErrTypeMalformed, Message: "response has no choices"}
	}

	return &result, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCallback is called for each chunk received during streaming,
// synchronously in arrival order.
type StreamCallback func(chunk StreamChunk)

// ChatStream sends a streaming chat request and calls the callback for each
// delta. Returns when the stream completes or the context is cancelled.
func (c *Client) ChatStream(ctx context.Context, messages []Message, callback StreamCallback) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return ErrTimeout
	}

	reqBody := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
	}

	// No client-level timeout while streaming; lifetime is bounded by ctx.
	streamClient := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return &ClientError{
				Type:    ErrTypeStatus,
				Message: "endpoint returned " + resp.Status + ": " + apiErr.Error.Message,
			}
		}
		return &ClientError{
			Type:    ErrTypeStatus,
			Message: "endpoint returned " + resp.Status,
		}
	}

	reader := NewStreamReader(resp.Body)
	return reader.Process(ctx, callback)
}

// ChatStreamChan is ChatStream with channel delivery. The channel is closed
// when the stream completes; errors arrive as a final chunk with Error set.
func (c *Client) ChatStreamChan(ctx context.Context, messages []Message) <-chan StreamChunk {
	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, messages, func(chunk StreamChunk) {
			select {
			case ch <- chunk:
			case <-ctx.Done():
			}
		})

		if err != nil {
			select {
			case ch <- StreamChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// SetModel updates the model sent with requests.
func (c *Client) SetModel(model string) {
	c.config.Model = model
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// BaseURL returns the configured endpoint base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}
