// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/ui/styles"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	client := openai.NewClientWithConfig(cfg.ClientConfig())
	return New(cfg, client, nil, styles.NewTheme())
}

// startFakeStream puts the model into streaming state without touching
// the network.
func startFakeStream(m *Model) string {
	m.transcript.AddUserTurn("hello")
	assistant := m.transcript.AddAssistantTurn()
	m.state = StateStreaming
	m.streamTurnID = assistant.ID
	m.streamStats = model.NewStatistics()
	m.stream = make(chan openai.StreamChunk)
	return assistant.ID
}

func TestNew_InitialState(t *testing.T) {
	m := newTestModel(t)
	if m.GetState() != StateReady {
		t.Errorf("expected StateReady, got %v", m.GetState())
	}
	if m.endpointState != EndpointUnprobed {
		t.Errorf("endpoint should start unprobed")
	}
	if !m.transcript.IsEmpty() {
		t.Errorf("transcript should start empty")
	}
}

func TestResize_SetsViewportDimensions(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(Model)

	if m.viewport.Width != 100 {
		t.Errorf("viewport width = %d", m.viewport.Width)
	}
	if m.viewport.Height != 40-headerHeight-inputAreaHeight-statusBarHeight {
		t.Errorf("viewport height = %d", m.viewport.Height)
	}
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")

	updated, _ := m.submitInput()
	m = updated.(Model)

	if m.GetState() != StateReady {
		t.Errorf("empty input must not start a request")
	}
	if !m.transcript.IsEmpty() {
		t.Errorf("empty input must not touch the transcript")
	}
}

func TestStreamChunk_AppendsToTranscript(t *testing.T) {
	m := newTestModel(t)
	turnID := startFakeStream(&m)

	updated, cmd := m.Update(StreamChunkMsg{
		TurnID: turnID,
		Chunk:  openai.StreamChunk{Content: "Hello"},
	})
	m = updated.(Model)

	if cmd == nil {
		t.Error("expected a waitChunk command to keep draining the stream")
	}
	last := m.transcript.LastAssistantTurn()
	if last == nil || last.DisplayContent() != "Hello" {
		t.Errorf("token not appended: %+v", last)
	}
	if !m.sawToken {
		t.Error("first token should be recorded")
	}
}

func TestStreamChunk_StaleTurnIgnored(t *testing.T) {
	m := newTestModel(t)
	startFakeStream(&m)

	updated, _ := m.Update(StreamChunkMsg{
		TurnID: "some-old-turn",
		Chunk:  openai.StreamChunk{Content: "stale"},
	})
	m = updated.(Model)

	if last := m.transcript.LastAssistantTurn(); last.DisplayContent() != "" {
		t.Errorf("stale chunk must be dropped, got %q", last.DisplayContent())
	}
}

func TestStreamDone_FinalizesTurn(t *testing.T) {
	m := newTestModel(t)
	turnID := startFakeStream(&m)

	updated, _ := m.Update(StreamChunkMsg{
		TurnID: turnID,
		Chunk:  openai.StreamChunk{Content: "response text"},
	})
	m = updated.(Model)

	updated, _ = m.Update(StreamDoneMsg{TurnID: turnID})
	m = updated.(Model)

	if m.GetState() != StateReady {
		t.Errorf("expected StateReady after done, got %v", m.GetState())
	}
	last := m.transcript.LastAssistantTurn()
	if last.IsStreaming {
		t.Error("turn should be finalized")
	}
	if last.Content != "response text" {
		t.Errorf("content = %q", last.Content)
	}
}

func TestStreamError_KeepsUserTurn(t *testing.T) {
	m := newTestModel(t)
	turnID := startFakeStream(&m)

	updated, _ := m.Update(StreamErrorMsg{TurnID: turnID, Err: errors.New("connection refused")})
	m = updated.(Model)

	if m.transcript.TurnCount() != 1 {
		t.Fatalf("TurnCount = %d, want 1 (assistant placeholder dropped, user turn kept)",
			m.transcript.TurnCount())
	}
	if last := m.transcript.LastTurn(); last.Role != model.RoleUser || last.Content != "hello" {
		t.Errorf("last turn = %+v, want the user turn", last)
	}
	if m.GetState() != StateError {
		t.Errorf("expected StateError, got %v", m.GetState())
	}
	if m.lastError == nil {
		t.Fatal("expected an error banner")
	}
}

func TestErrorDismiss_ReturnsToReady(t *testing.T) {
	m := newTestModel(t)
	m.state = StateError
	m.lastError = &ErrorMsg{Title: "Request failed", Message: "boom"}

	updated, _ := m.Update(ErrorDismissMsg{})
	m = updated.(Model)

	if m.GetState() != StateReady {
		t.Errorf("expected StateReady, got %v", m.GetState())
	}
	if m.lastError != nil {
		t.Error("error banner should be cleared")
	}
}

func TestProbeResult(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(ProbeResultMsg{Reachable: true})
	m = updated.(Model)
	if m.endpointState != EndpointReachable {
		t.Errorf("expected reachable, got %v", m.endpointState)
	}

	updated, _ = m.Update(ProbeResultMsg{Reachable: false, Err: errors.New("refused")})
	m = updated.(Model)
	if m.endpointState != EndpointUnreachable {
		t.Errorf("expected unreachable, got %v", m.endpointState)
	}
}

func TestNewConversation_ResetsTranscript(t *testing.T) {
	m := newTestModel(t)
	m.transcript.AddUserTurn("old message")
	oldID := m.transcript.ID

	updated, _ := m.newConversation()
	m = updated.(Model)

	if !m.transcript.IsEmpty() {
		t.Error("new conversation should start empty")
	}
	if m.transcript.ID == oldID {
		t.Error("new conversation should get a fresh ID")
	}
}
