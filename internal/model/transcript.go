// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/lmchat/internal/openai"
)

// MaxTurns caps transcript length. When exceeded, the oldest turns are
// pruned so memory and request size stay bounded.
const MaxTurns = 1000

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript holds an ordered chat history with metadata. Turns are only
// appended; existing turns are never reordered or rewritten.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Turns []*Turn `json:"turns"`

	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	TokensUsed int `json:"tokens_used"`
}

// NewTranscript creates an empty transcript with a generated ID.
func NewTranscript() *Transcript {
	return &Transcript{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Turns:     make([]*Turn, 0),
	}
}

// NewTranscriptWithModel creates a transcript pinned to a model.
func NewTranscriptWithModel(model string) *Transcript {
	tr := NewTranscript()
	tr.Model = model
	return tr
}

// =============================================================================
// TURN MANAGEMENT
// =============================================================================

// AddTurn appends a turn to the transcript.
func (tr *Transcript) AddTurn(t *Turn) {
	tr.Turns = append(tr.Turns, t)
	tr.UpdatedAt = time.Now()
	tr.TokensUsed = tr.EstimateTokens()
	tr.updateTitle()
	tr.pruneOldTurns()
}

// AddUserTurn creates and appends a user turn.
func (tr *Transcript) AddUserTurn(content string) *Turn {
	t := NewUserTurn(content)
	tr.AddTurn(t)
	return t
}

// AddAssistantTurn creates and appends a streaming assistant turn.
func (tr *Transcript) AddAssistantTurn() *Turn {
	t := NewAssistantTurn()
	tr.AddTurn(t)
	return t
}

// LastTurn returns the most recent turn, or nil if empty.
func (tr *Transcript) LastTurn() *Turn {
	if len(tr.Turns) == 0 {
		return nil
	}
	return tr.Turns[len(tr.Turns)-1]
}

// LastUserTurn returns the most recent user turn, or nil.
func (tr *Transcript) LastUserTurn() *Turn {
	for i := len(tr.Turns) - 1; i >= 0; i-- {
		if tr.Turns[i].Role == RoleUser {
			return tr.Turns[i]
		}
	}
	return nil
}

// LastAssistantTurn returns the most recent assistant turn, or nil.
func (tr *Transcript) LastAssistantTurn() *Turn {
	for i := len(tr.Turns) - 1; i >= 0; i-- {
		if tr.Turns[i].Role == RoleAssistant {
			return tr.Turns[i]
		}
	}
	return nil
}

// AppendToLast appends a token to the last turn if it is streaming.
func (tr *Transcript) AppendToLast(token string) {
	last := tr.LastTurn()
	if last != nil && last.IsStreaming {
		last.AppendToken(token)
	}
}

// FinalizeLast finalizes the last streaming turn with statistics.
func (tr *Transcript) FinalizeLast(stats *Statistics) {
	last := tr.LastTurn()
	if last != nil && last.IsStreaming {
		last.FinalizeStream(stats)
		tr.TokensUsed = tr.EstimateTokens()
	}
}

// RemoveLast drops the most recent turn. Used to drop the streaming
// assistant placeholder when its exchange fails.
func (tr *Transcript) RemoveLast() *Turn {
	if len(tr.Turns) == 0 {
		return nil
	}
	last := tr.Turns[len(tr.Turns)-1]
	tr.Turns = tr.Turns[:len(tr.Turns)-1]
	tr.UpdatedAt = time.Now()
	tr.TokensUsed = tr.EstimateTokens()
	return last
}

// Clear removes all turns.
func (tr *Transcript) Clear() {
	tr.Turns = make([]*Turn, 0)
	tr.TokensUsed = 0
	tr.UpdatedAt = time.Now()
}

// TurnCount returns the number of turns.
func (tr *Transcript) TurnCount() int {
	return len(tr.Turns)
}

// IsEmpty returns true if there are no turns.
func (tr *Transcript) IsEmpty() bool {
	return len(tr.Turns) == 0
}

// pruneOldTurns drops the oldest turns once MaxTurns is exceeded,
// preserving the relative order of what remains.
func (tr *Transcript) pruneOldTurns() {
	if len(tr.Turns) <= MaxTurns {
		return
	}
	excess := len(tr.Turns) - MaxTurns
	tr.Turns = append(tr.Turns[:0:0], tr.Turns[excess:]...)
}

// =============================================================================
// WIRE CONVERSION
// =============================================================================

// WireMessages converts the transcript to the request message format.
// The system prompt, when set, always leads; the remaining turns follow
// in transcript order, so successive requests are prefix-consistent.
func (tr *Transcript) WireMessages() []openai.Message {
	messages := make([]openai.Message, 0, len(tr.Turns)+1)

	if tr.SystemPrompt != "" {
		messages = append(messages, openai.NewSystemMessage(tr.SystemPrompt))
	}

	for _, t := range tr.Turns {
		content := t.DisplayContent()
		if content == "" {
			continue
		}
		messages = append(messages, openai.Message{
			Role:    t.Role.String(),
			Content: content,
		})
	}

	return messages
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// EstimateTokens estimates the total token count of the transcript.
func (tr *Transcript) EstimateTokens() int {
	total := 0
	if tr.SystemPrompt != "" {
		total += (len(tr.SystemPrompt) + 3) / 4
	}
	for _, t := range tr.Turns {
		// ~4 tokens of per-message structural overhead.
		total += t.EstimateTokens() + 4
	}
	return total
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user turn if unset.
func (tr *Transcript) updateTitle() {
	if tr.Title != "" {
		return
	}
	for _, t := range tr.Turns {
		if t.Role == RoleUser {
			tr.Title = t.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the transcript title.
func (tr *Transcript) SetTitle(title string) {
	tr.Title = title
	tr.UpdatedAt = time.Now()
}

// GetTitle returns the title or a default.
func (tr *Transcript) GetTitle() string {
	if tr.Title != "" {
		return tr.Title
	}
	return "New Conversation"
}

// =============================================================================
// METADATA
// =============================================================================

// Preview returns a short preview of the transcript.
func (tr *Transcript) Preview() string {
	if len(tr.Turns) == 0 {
		return "Empty conversation"
	}
	t := tr.LastUserTurn()
	if t == nil {
		t = tr.Turns[0]
	}
	return t.Preview(100)
}

// Meta returns lightweight metadata for listing.
func (tr *Transcript) Meta() TranscriptMeta {
	return TranscriptMeta{
		ID:        tr.ID,
		Title:     tr.GetTitle(),
		Model:     tr.Model,
		TurnCount: len(tr.Turns),
		CreatedAt: tr.CreatedAt,
		UpdatedAt: tr.UpdatedAt,
		Preview:   tr.Preview(),
	}
}

// TranscriptMeta holds lightweight metadata for listing transcripts.
type TranscriptMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview"`
}

// Clone returns a deep copy of the transcript with a new ID.
func (tr *Transcript) Clone() *Transcript {
	clone := &Transcript{
		ID:           uuid.NewString(),
		Title:        tr.Title,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Model:        tr.Model,
		SystemPrompt: tr.SystemPrompt,
		TokensUsed:   tr.TokensUsed,
		Turns:        make([]*Turn, 0, len(tr.Turns)),
	}
	for _, t := range tr.Turns {
		// Field-by-field copy: assigning *t would copy the internal
		// strings.Builder, which panics on use after a copy.
		copied := &Turn{
			ID:            t.ID,
			Role:          t.Role,
			Timestamp:     t.Timestamp,
			Content:       t.Content,
			TokenCount:    t.TokenCount,
			TTFT:          t.TTFT,
			TotalDuration: t.TotalDuration,
			TokensPerSec:  t.TokensPerSec,
		}
		if t.IsStreaming {
			copied.IsStreaming = true
			copied.streamContent.WriteString(t.DisplayContent())
		}
		clone.Turns = append(clone.Turns, copied)
	}
	return clone
}
