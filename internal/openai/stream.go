// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the HTTP client for OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// SSE STREAM READER
// =============================================================================

// doneMarker terminates an OpenAI-compatible event stream.
var doneMarker = []byte("[DONE]")

// StreamReader parses a server-sent-events completion stream: one
// "data: {json}" line per delta, terminated by "data: [DONE]".
type StreamReader struct {
	scanner     *bufio.Scanner
	accumulator strings.Builder
	chunkCount  int
	model       string
	done        bool
}

// NewStreamReader creates a stream reader over the response body.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	// Deltas are small, but a generous cap avoids failing on servers that
	// batch large chunks into one event.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &StreamReader{scanner: sc}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream completes or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := s.readChunk()
		if err != nil {
			if err == io.EOF {
				// A stream that ends without [DONE] or a finish_reason is
				// treated as complete; servers differ on the terminator.
				if !s.done {
					callback(StreamChunk{Done: true, Model: s.model})
				}
				return nil
			}
			return err
		}

		if chunk != nil {
			callback(*chunk)
			if chunk.Done {
				return nil
			}
		}
	}
}

// readChunk reads and parses a single SSE event.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	line := bytes.TrimSpace(s.scanner.Bytes())
	if len(line) == 0 {
		return nil, nil // event separator
	}

	data, found := bytes.CutPrefix(line, []byte("data:"))
	if !found {
		return nil, nil // comment or other SSE field
	}
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, doneMarker) {
		s.done = true
		return &StreamChunk{Done: true, Model: s.model}, nil
	}

	var event streamResponse
	if err := json.Unmarshal(data, &event); err != nil {
		// Skip malformed events rather than aborting the stream.
		return nil, nil
	}

	if event.Model != "" {
		s.model = event.Model
	}

	chunk := &StreamChunk{Model: s.model}

	if len(event.Choices) > 0 {
		choice := event.Choices[0]
		if choice.Delta.Content != "" {
			chunk.Content = choice.Delta.Content
			s.accumulator.WriteString(choice.Delta.Content)
			s.chunkCount++
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			chunk.Done = true
			chunk.FinishReason = *choice.FinishReason
			s.done = true
		}
	}

	if event.Usage != nil {
		chunk.PromptTokens = event.Usage.PromptTokens
		chunk.CompletionTokens = event.Usage.CompletionTokens
	}

	return chunk, nil
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// ChunkCount returns the number of content-carrying chunks received.
func (s *StreamReader) ChunkCount() int {
	return s.chunkCount
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats collects timing and token counts for one streamed completion.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	PromptTokens     int
	CompletionTokens int

	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStreamStats creates stats with the start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// RecordFirstToken marks the time of first content arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes derived metrics from the final chunk.
func (s *StreamStats) Finalize(chunk StreamChunk, fallbackTokens int) {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
	s.PromptTokens = chunk.PromptTokens
	s.CompletionTokens = chunk.CompletionTokens
	if s.CompletionTokens == 0 {
		s.CompletionTokens = fallbackTokens
	}
	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.TotalDuration.Seconds()
	}
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects chunks into final content plus statistics.
type StreamAccumulator struct {
	content strings.Builder
	chunks  int
	Stats   *StreamStats
	Done    bool
	Err     error
}

// NewStreamAccumulator creates an accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{Stats: NewStreamStats()}
}

// Add processes one chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.Err = chunk.Error
		a.Done = true
		return
	}

	if chunk.Content != "" {
		if a.content.Len() == 0 {
			a.Stats.RecordFirstToken()
		}
		a.content.WriteString(chunk.Content)
		a.chunks++
	}

	if chunk.Done {
		a.Done = true
		a.Stats.Finalize(chunk, a.chunks)
	}
}

// Content returns the accumulated content.
func (a *StreamAccumulator) Content() string {
	return a.content.String()
}
