// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the HTTP client for OpenAI-compatible chat
// completion endpoints (llama.cpp server, LM Studio, vLLM, Ollama's
// compatibility layer, and similar local servers).
package openai

import "time"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one chat message on the wire.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is the request body for /v1/chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the response body for a non-streaming completion.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice. Message and its Content are pointers so
// a missing field can be told apart from an empty string when validating
// the response shape.
type Choice struct {
	Index        int            `json:"index"`
	Message      *ChoiceMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// ChoiceMessage is the assistant message inside a choice.
type ChoiceMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FirstContent returns choices[0].message.content, the only part of the
// response the client consumes. ok is false when the expected shape is
// absent (no choices, no message, or no content field).
func (r *ChatResponse) FirstContent() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	msg := r.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", false
	}
	return *msg.Content, true
}

// =============================================================================
// MODEL LISTING TYPES
// =============================================================================

// ModelInfo describes one model from /v1/models.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response body for /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// =============================================================================
// ERROR BODY
// =============================================================================

// apiError is the error envelope some servers return on non-2xx statuses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single delta from a streaming completion.
type StreamChunk struct {
	// Content carried by this chunk (choices[0].delta.content).
	Content string

	// Done is set on the final chunk ([DONE] marker or finish_reason).
	Done         bool
	FinishReason string

	// Usage is populated on the final chunk when the server reports it.
	PromptTokens     int
	CompletionTokens int

	Model string

	// Error is set when streaming failed mid-flight.
	Error error
}

// streamResponse is the wire shape of one SSE data event.
type streamResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// =============================================================================
// HELPERS
// =============================================================================

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// TokensPerSecond converts the usage and a wall-clock duration into a
// generation-speed figure for display.
func (u Usage) TokensPerSecond(elapsed time.Duration) float64 {
	if elapsed <= 0 || u.CompletionTokens == 0 {
		return 0
	}
	return float64(u.CompletionTokens) / elapsed.Seconds()
}
