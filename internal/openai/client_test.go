// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:         baseURL,
		Model:           "test-model",
		Temperature:     0.2,
		MaxTokens:       256,
		Timeout:         2 * time.Second,
		RequestInterval: time.Millisecond,
	})
}

func completionBody(content string) string {
	return `{"id":"cmpl-1","object":"chat.completion","model":"test-model",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},` +
		`"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_Success(t *testing.T) {
	var gotReq ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(completionBody("hi")))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	msgs := []Message{
		NewUserMessage("first"),
		NewAssistantMessage("reply"),
		NewUserMessage("second"),
	}

	text, usage, err := client.ChatText(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
	assert.Equal(t, 3, usage.CompletionTokens)

	// The request carries the full message sequence in order, with the
	// fixed generation parameters and streaming disabled.
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, msgs, gotReq.Messages)
	assert.InDelta(t, 0.2, gotReq.Temperature, 1e-9)
	assert.Equal(t, 256, gotReq.MaxTokens)
	assert.False(t, gotReq.Stream)
}

func TestChat_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:         srv.URL,
		APIKey:          "sk-local",
		RequestInterval: time.Millisecond,
	})

	_, _, err := client.ChatText(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-local", gotAuth)
}

func TestChat_MissingChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion"}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.True(t, IsMalformed(err), "missing choices should be a malformed-response error, got %v", err)
	assert.False(t, IsTransport(err))
}

func TestChat_MissingContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, _, err := client.ChatText(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestChat_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an api</html>"))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.True(t, IsTransport(err), "non-2xx should be a transport error")
	assert.Contains(t, err.Error(), "model is loading")
}

func TestChat_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := testClient(url)
	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(completionBody("late")))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:         srv.URL,
		Timeout:         50 * time.Millisecond,
		RequestInterval: time.Millisecond,
	})

	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestChat_ExactlyOneRequestWithoutRetries(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})

	require.Error(t, err)
	assert.Equal(t, 1, requests, "default config must not retry")
}

func TestChat_RetriesTransportErrors(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody("eventually")))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:         srv.URL,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		RequestInterval: time.Millisecond,
	})

	text, _, err := client.ChatText(context.Background(), []Message{NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "eventually", text)
	assert.Equal(t, 3, requests)
}

func TestChat_DoesNotRetryMalformed(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:         srv.URL,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		RequestInterval: time.Millisecond,
	})

	_, err := client.Chat(context.Background(), []Message{NewUserMessage("hi")})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Equal(t, 1, requests)
}

// =============================================================================
// PROBE TESTS
// =============================================================================

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"object":"list","data":[{"id":"llama-3.1-8b","object":"model"}]}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	require.NoError(t, client.Probe(context.Background()))

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama-3.1-8b", models[0].ID)
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := testClient(url)
	err := client.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

// =============================================================================
// RESPONSE SHAPE TESTS
// =============================================================================

func TestFirstContent(t *testing.T) {
	content := "hello"
	tests := []struct {
		name   string
		resp   ChatResponse
		want   string
		wantOK bool
	}{
		{"no choices", ChatResponse{}, "", false},
		{"nil message", ChatResponse{Choices: []Choice{{}}}, "", false},
		{"nil content", ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Role: "assistant"}}}}, "", false},
		{"present", ChatResponse{Choices: []Choice{{Message: &ChoiceMessage{Content: &content}}}}, "hello", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.resp.FirstContent()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
