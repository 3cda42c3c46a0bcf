// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package exchange orchestrates a single request/response round trip
// between a transcript and the completion endpoint.
package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a send is attempted while another exchange
	// is still in flight. No request is issued.
	ErrBusy = errors.New("an exchange is already in flight")

	// ErrEmptyInput is returned when the input is empty or whitespace-only.
	// No request is issued and the transcript is not modified.
	ErrEmptyInput = errors.New("input is empty")
)

// =============================================================================
// EXCHANGER
// =============================================================================

// Exchanger serializes exchanges against one client: at most one request
// is in flight at a time. A failed exchange leaves the transcript ending
// with the user turn and no assistant turn, so what was asked is never
// lost and an immediate retry starts from clean state.
type Exchanger struct {
	client *openai.Client

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
}

// New creates an exchanger over the given client.
func New(client *openai.Client) *Exchanger {
	return &Exchanger{client: client}
}

// Busy reports whether an exchange is currently in flight.
func (e *Exchanger) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Cancel aborts the in-flight exchange, if any.
func (e *Exchanger) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Client returns the underlying client.
func (e *Exchanger) Client() *openai.Client {
	return e.client
}

// begin claims the in-flight slot. Returns ErrBusy when already claimed.
func (e *Exchanger) begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return nil, ErrBusy
	}
	e.inFlight = true
	ctx, e.cancel = context.WithCancel(ctx)
	return ctx, nil
}

// end releases the in-flight slot.
func (e *Exchanger) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one blocking exchange: the trimmed input is appended to the
// transcript as a user turn, the full history is sent, and the reply is
// appended as an assistant turn. On any failure after the input check the
// transcript is left ending with the user turn, with no assistant turn.
func (e *Exchanger) Send(ctx context.Context, tr *model.Transcript, input string) (*model.Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyInput
	}

	ctx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	tr.AddUserTurn(text)

	start := time.Now()
	reply, usage, err := e.client.ChatText(ctx, tr.WireMessages())
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	turn := tr.AddAssistantTurn()
	turn.AppendToken(reply)
	stats := &model.Statistics{
		StartTime:        start,
		EndTime:          start.Add(elapsed),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalDuration:    elapsed,
		TokensPerSecond:  usage.TokensPerSecond(elapsed),
	}
	if stats.CompletionTokens == 0 {
		stats.CompletionTokens = turn.EstimateTokens()
	}
	turn.FinalizeStream(stats)
	return turn, nil
}

// SendStream runs one streaming exchange. Tokens are delivered through
// onToken as they arrive; the assistant turn accumulates them and is
// finalized with statistics when the stream completes. Failure handling
// matches Send: the assistant placeholder is dropped and the transcript
// ends with the user turn.
func (e *Exchanger) SendStream(ctx context.Context, tr *model.Transcript, input string, onToken func(string)) (*model.Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyInput
	}

	ctx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	tr.AddUserTurn(text)
	messages := tr.WireMessages()
	turn := tr.AddAssistantTurn()

	acc := openai.NewStreamAccumulator()

	err = e.client.ChatStream(ctx, messages, func(chunk openai.StreamChunk) {
		acc.Add(chunk)
		if chunk.Content != "" {
			turn.AppendToken(chunk.Content)
			if onToken != nil {
				onToken(chunk.Content)
			}
		}
	})
	if err != nil {
		tr.RemoveLast() // assistant placeholder, the user turn stays
		return nil, err
	}

	turn.FinalizeStream(statsFromStream(acc.Stats))
	return turn, nil
}

// statsFromStream converts accumulated stream timings into the
// transcript's statistics form.
func statsFromStream(s *openai.StreamStats) *model.Statistics {
	return &model.Statistics{
		StartTime:        s.StartTime,
		FirstTokenTime:   s.FirstTokenTime,
		EndTime:          s.EndTime,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		TTFT:             s.TTFT,
		TotalDuration:    s.TotalDuration,
		TokensPerSecond:  s.TokensPerSecond,
	}
}
