// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// update.go - Message handlers for the chat view.
package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/render"
)

// =============================================================================
// LAYOUT
// =============================================================================

// Reserved rows outside the viewport: header, input border and lines,
// status bar.
const (
	headerHeight    = 2
	inputAreaHeight = 5
	statusBarHeight = 2
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	viewportHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = viewportHeight

	inputWidth := m.width - 4
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.SetWidth(inputWidth)

	renderWidth := m.width - 4
	if renderWidth < 20 {
		renderWidth = 20
	}
	m.renderer = render.New(m.cfg.UI.Markdown, renderWidth)

	m.theme.SetSize(m.width, m.height)
	m.updateViewport()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keyMap.Quit) {
		m.cancel()
		m.saveOnExit()
		return m, tea.Quit
	}

	if m.state == StateError {
		switch msg.String() {
		case "esc", "enter", " ":
			return m.Update(ErrorDismissMsg{})
		}
		return m, nil
	}

	if m.state == StateStreaming {
		if key.Matches(msg, m.keyMap.Cancel) {
			return m.cancelStreaming()
		}
		// Allow scrolling while streaming.
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keyMap.Submit):
		return m.submitInput()

	case key.Matches(msg, m.keyMap.NewConv):
		return m.newConversation()

	case key.Matches(msg, m.keyMap.Save):
		if m.store == nil {
			m.statusMsg = "History is disabled"
			return m, nil
		}
		if m.transcript.IsEmpty() {
			m.statusMsg = "Nothing to save"
			return m, nil
		}
		return m, saveCmd(m.store, m.transcript)

	case key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// INPUT SUBMISSION
// =============================================================================

// submitInput starts a streaming exchange for the typed message.
// Empty input sends nothing; a second submit while one is in flight is
// unreachable because the key handler checks state first.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return m, nil
	}

	m.session.RecordActivity()
	m.session.MarkDirty()

	m.transcript.AddUserTurn(input)
	assistant := m.transcript.AddAssistantTurn()

	m.input.Reset()
	m.statusMsg = ""
	m.state = StateStreaming
	m.streamTurnID = assistant.ID
	m.streamStats = model.NewStatistics()
	m.sawToken = false

	ch, cancel := startStream(m.client, m.transcript)
	m.stream = ch
	m.cancelStream = cancel

	m.updateViewport()
	m.viewport.GotoBottom()

	return m, tea.Batch(m.spinner.Tick, waitChunk(assistant.ID, ch))
}

// =============================================================================
// STREAMING HANDLERS
// =============================================================================

func (m Model) handleStreamChunk(msg StreamChunkMsg) (tea.Model, tea.Cmd) {
	if msg.TurnID != m.streamTurnID {
		return m, nil
	}

	if msg.Chunk.Content != "" {
		if !m.sawToken {
			m.sawToken = true
			m.streamStats.RecordFirstToken()
		}
		m.transcript.AppendToLast(msg.Chunk.Content)
		m.updateViewport()
		m.viewport.GotoBottom()
	}

	if msg.Chunk.Done {
		if msg.Chunk.PromptTokens > 0 {
			m.streamStats.PromptTokens = msg.Chunk.PromptTokens
		}
		if msg.Chunk.CompletionTokens > 0 {
			m.streamStats.CompletionTokens = msg.Chunk.CompletionTokens
		}
	}

	return m, waitChunk(msg.TurnID, m.stream)
}

func (m Model) handleStreamDone(msg StreamDoneMsg) (tea.Model, tea.Cmd) {
	if msg.TurnID != m.streamTurnID {
		return m, nil
	}

	tokens := m.streamStats.CompletionTokens
	if tokens == 0 {
		if last := m.transcript.LastAssistantTurn(); last != nil {
			tokens = last.EstimateTokens()
		}
	}
	m.streamStats.Finalize(tokens)
	m.transcript.FinalizeLast(m.streamStats)

	m.clearStreamState()
	m.state = StateReady
	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	return m, textarea.Blink
}

func (m Model) handleStreamError(msg StreamErrorMsg) (tea.Model, tea.Cmd) {
	if msg.TurnID != m.streamTurnID {
		return m, nil
	}

	// Drop the assistant placeholder. The user turn stays so the
	// question is not lost and a retry starts from it.
	m.transcript.RemoveLast()

	m.clearStreamState()
	m.updateViewport()

	errMsg := ErrorMsg{Title: "Request failed", Message: msg.Err.Error()}
	m.lastError = &errMsg
	m.state = StateError

	return m, nil
}

// cancelStreaming aborts the in-flight request. Only the assistant
// placeholder is dropped; the user turn stays.
func (m Model) cancelStreaming() (tea.Model, tea.Cmd) {
	m.cancel()

	m.transcript.RemoveLast()

	m.clearStreamState()
	m.state = StateReady
	m.statusMsg = "Cancelled"
	m.updateViewport()
	m.input.Focus()

	return m, textarea.Blink
}

func (m *Model) cancel() {
	if m.cancelStream != nil {
		m.cancelStream()
	}
}

func (m *Model) clearStreamState() {
	m.cancel()
	m.stream = nil
	m.cancelStream = nil
	m.streamTurnID = ""
	m.sawToken = false
}

// =============================================================================
// ENDPOINT HANDLERS
// =============================================================================

func (m Model) handleProbeResult(msg ProbeResultMsg) (tea.Model, tea.Cmd) {
	if msg.Reachable {
		m.endpointState = EndpointReachable
		m.probeLatency = msg.Latency
	} else {
		m.endpointState = EndpointUnreachable
		m.statusMsg = "Endpoint unreachable"
	}
	return m, nil
}

func (m Model) handleModels(msg ModelsMsg) (tea.Model, tea.Cmd) {
	if msg.Err == nil {
		m.modelCount = len(msg.Models)
	}
	return m, nil
}

// handleConfigReloaded applies a configuration that changed on disk
// while the TUI was running. A new endpoint gets a fresh client and a
// fresh probe; an in-flight stream keeps its already-opened connection.
func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	endpointChanged := msg.Config.Endpoint.BaseURL != m.cfg.Endpoint.BaseURL

	m.cfg = msg.Config
	m.client.SetModel(msg.Config.Generation.Model)
	m.transcript.Model = msg.Config.Generation.Model
	m.statusMsg = "Config reloaded"

	if endpointChanged {
		m.client = openai.NewClientWithConfig(msg.Config.ClientConfig())
		m.endpointState = EndpointUnprobed
		return m, tea.Batch(probeCmd(m.client), listModelsCmd(m.client))
	}
	return m, nil
}

// =============================================================================
// PERSISTENCE HANDLERS
// =============================================================================

func (m Model) handleSaveResult(msg SaveResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.statusMsg = "Save failed: " + msg.Err.Error()
		return m, nil
	}
	m.session.MarkClean()
	m.statusMsg = "Saved"
	return m, nil
}

// newConversation saves the current transcript and starts a fresh one.
func (m Model) newConversation() (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.store != nil && !m.transcript.IsEmpty() {
		cmd = saveCmd(m.store, m.transcript)
	}

	m.transcript = model.NewTranscriptWithModel(m.cfg.Generation.Model)
	m.transcript.SystemPrompt = m.cfg.Generation.SystemPrompt

	// Re-point the autosave callback at the fresh transcript.
	if m.store != nil {
		store, transcript := m.store, m.transcript
		m.session.SetAutoSaveCallback(func() error {
			if transcript.IsEmpty() {
				return nil
			}
			return store.Save(transcript)
		})
	}
	m.statusMsg = "New conversation"
	m.updateViewport()
	return m, cmd
}

// saveOnExit persists the transcript synchronously before quitting.
func (m *Model) saveOnExit() {
	if m.store == nil || m.transcript.IsEmpty() {
		return
	}
	if err := m.store.Save(m.transcript); err == nil {
		m.session.MarkClean()
	}
}

// =============================================================================
// VIEWPORT
// =============================================================================

func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderTurns())
}

// elapsed is used by the thinking indicator.
func (m *Model) elapsed() time.Duration {
	if m.streamStats == nil {
		return 0
	}
	return time.Since(m.streamStats.StartTime)
}
