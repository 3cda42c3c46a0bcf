// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sseBody(events ...string) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString("data: " + e + "\n\n")
	}
	return sb.String()
}

func deltaEvent(content string) string {
	return `{"model":"test-model","choices":[{"delta":{"content":"` + content + `"},"finish_reason":null}]}`
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader_Process(t *testing.T) {
	body := sseBody(
		deltaEvent("Hel"),
		deltaEvent("lo"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		"[DONE]",
	)

	reader := NewStreamReader(strings.NewReader(body))
	var chunks []StreamChunk
	err := reader.Process(context.Background(), func(c StreamChunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if got := reader.Accumulated(); got != "Hello" {
		t.Errorf("Accumulated = %q, want %q", got, "Hello")
	}

	last := chunks[len(chunks)-1]
	if !last.Done {
		t.Error("final chunk should have Done set")
	}
	if last.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want %q", last.FinishReason, "stop")
	}
	if last.CompletionTokens != 2 {
		t.Errorf("CompletionTokens = %d, want 2", last.CompletionTokens)
	}
}

func TestStreamReader_DoneMarkerOnly(t *testing.T) {
	body := sseBody(deltaEvent("x"), "[DONE]")

	reader := NewStreamReader(strings.NewReader(body))
	sawDone := false
	err := reader.Process(context.Background(), func(c StreamChunk) {
		if c.Done {
			sawDone = true
		}
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !sawDone {
		t.Error("expected a Done chunk from the [DONE] marker")
	}
}

func TestStreamReader_EOFWithoutTerminator(t *testing.T) {
	body := sseBody(deltaEvent("partial"))

	reader := NewStreamReader(strings.NewReader(body))
	sawDone := false
	err := reader.Process(context.Background(), func(c StreamChunk) {
		if c.Done {
			sawDone = true
		}
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !sawDone {
		t.Error("EOF without terminator should still complete the stream")
	}
	if reader.Accumulated() != "partial" {
		t.Errorf("Accumulated = %q, want %q", reader.Accumulated(), "partial")
	}
}

func TestStreamReader_SkipsMalformedEvents(t *testing.T) {
	body := sseBody(deltaEvent("a"), "{not json", deltaEvent("b"), "[DONE]")

	reader := NewStreamReader(strings.NewReader(body))
	err := reader.Process(context.Background(), func(StreamChunk) {})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reader.Accumulated() != "ab" {
		t.Errorf("Accumulated = %q, want %q", reader.Accumulated(), "ab")
	}
}

func TestStreamReader_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(sseBody(deltaEvent("x"))))
	err := reader.Process(ctx, func(StreamChunk) {})
	if err == nil {
		t.Error("expected context error from cancelled Process")
	}
}

// =============================================================================
// END-TO-END STREAMING TESTS
// =============================================================================

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming request should set stream: true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseBody(deltaEvent("str"), deltaEvent("eam"), "[DONE]")))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	acc := NewStreamAccumulator()
	err := client.ChatStream(context.Background(), []Message{NewUserMessage("hi")}, acc.Add)
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if acc.Content() != "stream" {
		t.Errorf("Content = %q, want %q", acc.Content(), "stream")
	}
	if !acc.Done {
		t.Error("accumulator should be done")
	}
}

func TestChatStreamChan_DeliversErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var streamErr error
	for chunk := range client.ChatStreamChan(ctx, []Message{NewUserMessage("hi")}) {
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}
	if streamErr == nil {
		t.Fatal("expected an error chunk")
	}
	if !IsTransport(streamErr) {
		t.Errorf("expected transport error, got %v", streamErr)
	}
}
