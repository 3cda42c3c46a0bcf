// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// This file defines the message types the view exchanges with its
// commands: streaming lifecycle, endpoint probing, model listing, and
// conversation persistence.
package chat

import (
	"time"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/openai"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that a streaming request is in flight.
type StreamStartMsg struct {
	TurnID    string
	StartTime time.Time
}

// StreamChunkMsg delivers the next chunk from the stream.
type StreamChunkMsg struct {
	TurnID string
	Chunk  openai.StreamChunk
}

// StreamDoneMsg signals that the stream finished cleanly.
type StreamDoneMsg struct {
	TurnID string
}

// StreamErrorMsg signals that the stream failed. The assistant
// placeholder is dropped; the user turn stays in the transcript.
type StreamErrorMsg struct {
	TurnID string
	Err    error
}

// =============================================================================
// ENDPOINT MESSAGES
// =============================================================================

// ProbeResultMsg reports whether the endpoint answered the probe.
type ProbeResultMsg struct {
	Reachable bool
	Latency   time.Duration
	Err       error
}

// ModelsMsg delivers the models the endpoint serves.
type ModelsMsg struct {
	Models []openai.ModelInfo
	Err    error
}

// ConfigReloadedMsg delivers a fresh configuration after the config
// file changed on disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// =============================================================================
// PERSISTENCE MESSAGES
// =============================================================================

// SaveResultMsg confirms a conversation save.
type SaveResultMsg struct {
	ID  string
	Err error
}

// =============================================================================
// ERROR MESSAGES
// =============================================================================

// ErrorMsg displays an error banner until dismissed.
type ErrorMsg struct {
	Title   string
	Message string
}

// ErrorDismissMsg dismisses the error banner.
type ErrorDismissMsg struct{}
