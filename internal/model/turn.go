// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for transcripts and turns.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is a single entry in a transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	Content string `json:"content"`

	// Streaming state (not persisted). strings.Builder avoids quadratic
	// allocations while tokens arrive.
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`

	// Generation metrics, set for assistant turns.
	TokenCount    int           `json:"token_count,omitempty"`
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	TokensPerSec  float64       `json:"tokens_per_sec,omitempty"`
}

// NewTurn creates a turn with a generated ID.
func NewTurn(role Role, content string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserTurn creates a user turn.
func NewUserTurn(content string) *Turn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates an empty assistant turn in streaming state.
func NewAssistantTurn() *Turn {
	return &Turn{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// NewSystemTurn creates a system turn.
func NewSystemTurn(content string) *Turn {
	return NewTurn(RoleSystem, content)
}

// =============================================================================
// TURN METHODS
// =============================================================================

// AppendToken appends a token to a streaming turn.
func (t *Turn) AppendToken(token string) {
	if t.IsStreaming {
		t.streamContent.WriteString(token)
	}
}

// FinalizeStream completes streaming and sets statistics.
func (t *Turn) FinalizeStream(stats *Statistics) {
	if !t.IsStreaming {
		return
	}

	t.Content = t.streamContent.String()
	t.streamContent.Reset()
	t.IsStreaming = false

	if stats != nil {
		t.TTFT = stats.TTFT
		t.TotalDuration = stats.TotalDuration
		t.TokenCount = stats.CompletionTokens
		t.TokensPerSec = stats.TokensPerSecond
	}
}

// DisplayContent returns the content to display (streaming or final).
func (t *Turn) DisplayContent() string {
	if t.IsStreaming {
		return t.streamContent.String()
	}
	return t.Content
}

// Preview returns a truncated preview of the turn content.
// Rune-based so multi-byte text is never split mid-character.
func (t *Turn) Preview(maxLen int) string {
	return util.TruncateRunes(t.DisplayContent(), maxLen)
}

// IsEmpty returns true if the turn has no content.
func (t *Turn) IsEmpty() bool {
	return len(t.Content) == 0 && t.streamContent.Len() == 0
}

// EstimateTokens gives a rough token count (~4 characters per token).
func (t *Turn) EstimateTokens() int {
	return (len(t.DisplayContent()) + 3) / 4
}

// FormatStats returns a one-line summary of generation statistics,
// e.g. "2.5s | 128 tokens | 51.2 tok/s | TTFT 234ms".
func (t *Turn) FormatStats() string {
	if t.Role != RoleAssistant || t.TotalDuration == 0 {
		return ""
	}
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		t.TotalDuration.Seconds(), t.TokenCount, t.TokensPerSec, t.TTFT.Milliseconds())
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and token counts for one generation.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	PromptTokens     int
	CompletionTokens int

	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordFirstToken records when the first token arrived.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the derived metrics.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// Format returns the statistics as a display line.
func (s *Statistics) Format() string {
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		s.TotalDuration.Seconds(), s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}
