// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
)

func newTestExchanger(baseURL string) *Exchanger {
	return New(openai.NewClientWithConfig(&openai.ClientConfig{
		BaseURL:         baseURL,
		Model:           "test-model",
		Timeout:         2 * time.Second,
		RequestInterval: time.Millisecond,
	}))
}

func okHandler(reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"` +
			reply + `"},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}
}

func TestSend_AppendsPair(t *testing.T) {
	srv := httptest.NewServer(okHandler("pong"))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	turn, err := ex.Send(context.Background(), tr, "ping")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if turn.Content != "pong" {
		t.Errorf("reply = %q, want %q", turn.Content, "pong")
	}
	if tr.TurnCount() != 2 {
		t.Fatalf("TurnCount = %d, want 2", tr.TurnCount())
	}
	if tr.Turns[0].Role != model.RoleUser || tr.Turns[0].Content != "ping" {
		t.Errorf("first turn = %+v", tr.Turns[0])
	}
	if tr.Turns[1].Role != model.RoleAssistant {
		t.Errorf("second turn role = %q", tr.Turns[1].Role)
	}
	if turn.TokenCount != 2 {
		t.Errorf("TokenCount = %d, want 2", turn.TokenCount)
	}
}

func TestSend_TrimsInput(t *testing.T) {
	srv := httptest.NewServer(okHandler("ok"))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	if _, err := ex.Send(context.Background(), tr, "  hello  \n"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if tr.Turns[0].Content != "hello" {
		t.Errorf("user turn = %q, want trimmed %q", tr.Turns[0].Content, "hello")
	}
}

func TestSend_EmptyInput(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := ex.Send(context.Background(), tr, input)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Send(%q) = %v, want ErrEmptyInput", input, err)
		}
	}
	if requests != 0 {
		t.Errorf("empty input issued %d requests, want 0", requests)
	}
	if !tr.IsEmpty() {
		t.Error("empty input must not modify the transcript")
	}
}

func TestSend_FailureKeepsUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()
	tr.AddUserTurn("earlier")

	_, err := ex.Send(context.Background(), tr, "doomed")
	if err == nil {
		t.Fatal("expected error")
	}
	if tr.TurnCount() != 2 {
		t.Fatalf("TurnCount = %d, want 2 (failure must not discard the user turn)", tr.TurnCount())
	}
	last := tr.LastTurn()
	if last.Role != model.RoleUser || last.Content != "doomed" {
		t.Errorf("last turn = %+v, want the user turn that failed", last)
	}
}

func TestSend_MalformedResponseKeepsUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion"}`))
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	_, err := ex.Send(context.Background(), tr, "hello")
	if !openai.IsMalformed(err) {
		t.Fatalf("Send = %v, want a malformed-response error", err)
	}
	if tr.TurnCount() != 1 {
		t.Fatalf("TurnCount = %d, want 1 (only the user turn appended)", tr.TurnCount())
	}
	if tr.Turns[0].Role != model.RoleUser || tr.Turns[0].Content != "hello" {
		t.Errorf("surviving turn = %+v", tr.Turns[0])
	}
}

func TestSend_BusyGuard(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		okHandler("slow")(w, r)
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ex.Send(context.Background(), tr, "first")
	}()

	// Wait for the first exchange to claim the slot.
	deadline := time.Now().Add(time.Second)
	for !ex.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !ex.Busy() {
		t.Fatal("first exchange never became busy")
	}

	_, err := ex.Send(context.Background(), model.NewTranscript(), "second")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send = %v, want ErrBusy", err)
	}

	close(release)
	wg.Wait()

	if ex.Busy() {
		t.Error("exchanger should be idle after completion")
	}
}

func TestSend_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	done := make(chan error, 1)
	go func() {
		_, err := ex.Send(context.Background(), tr, "cancelled")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !ex.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ex.Cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("cancelled Send should return an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after Cancel")
	}
	if tr.TurnCount() != 1 || tr.Turns[0].Role != model.RoleUser {
		t.Errorf("cancelled exchange should keep the user turn, have %d turns", tr.TurnCount())
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestSendStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"str", "eam", "ed"} {
			w.Write([]byte(`data: {"choices":[{"delta":{"content":"` + tok + `"},"finish_reason":null}]}` + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	var tokens []string
	turn, err := ex.SendStream(context.Background(), tr, "go", func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("SendStream failed: %v", err)
	}
	if turn.Content != "streamed" {
		t.Errorf("Content = %q, want %q", turn.Content, "streamed")
	}
	if strings.Join(tokens, "") != "streamed" {
		t.Errorf("tokens = %v", tokens)
	}
	if turn.IsStreaming {
		t.Error("turn should be finalized")
	}
	if tr.TurnCount() != 2 {
		t.Errorf("TurnCount = %d, want 2", tr.TurnCount())
	}
	if turn.TokenCount != 3 {
		t.Errorf("TokenCount = %d, want 3 (one per content chunk)", turn.TokenCount)
	}
	if turn.TotalDuration <= 0 {
		t.Errorf("TotalDuration = %v, want > 0", turn.TotalDuration)
	}
}

func TestSendStream_FailureKeepsUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ex := newTestExchanger(srv.URL)
	tr := model.NewTranscript()

	_, err := ex.SendStream(context.Background(), tr, "doomed", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if tr.TurnCount() != 1 {
		t.Fatalf("TurnCount = %d, want 1 (assistant placeholder dropped, user turn kept)", tr.TurnCount())
	}
	if tr.Turns[0].Role != model.RoleUser || tr.Turns[0].Content != "doomed" {
		t.Errorf("surviving turn = %+v", tr.Turns[0])
	}
}
