// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/render"
	"github.com/jeranaias/lmchat/internal/session"
	"github.com/jeranaias/lmchat/internal/storage"
	"github.com/jeranaias/lmchat/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streaming response
	StateError                  // Showing a blocking error
)

// EndpointState tracks what we know about the configured endpoint.
// Configured and reachable are different things; the status bar shows
// which one we actually have.
type EndpointState int

const (
	EndpointUnprobed EndpointState = iota
	EndpointReachable
	EndpointUnreachable
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State

	theme *styles.Theme

	width  int
	height int

	cfg        *config.Config
	client     *openai.Client
	store      *storage.Store
	renderer   *render.Renderer
	session    *session.Manager
	transcript *model.Transcript

	// Streaming state
	stream       <-chan openai.StreamChunk
	cancelStream context.CancelFunc
	streamTurnID string
	streamStats  *model.Statistics
	sawToken     bool

	// Endpoint state
	endpointState EndpointState
	probeLatency  time.Duration
	modelCount    int

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	keyMap KeyMap

	lastError *ErrorMsg
	statusMsg string
}

// New creates the chat model.
func New(cfg *config.Config, client *openai.Client, store *storage.Store, theme *styles.Theme) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "> "
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	tr := model.NewTranscriptWithModel(cfg.Generation.Model)
	tr.SystemPrompt = cfg.Generation.SystemPrompt

	sess := session.NewManager(session.DefaultConfig())
	m := Model{
		state:      StateReady,
		theme:      theme,
		cfg:        cfg,
		client:     client,
		store:      store,
		renderer:   render.New(cfg.UI.Markdown, 78),
		session:    sess,
		transcript: tr,
		viewport:   vp,
		input:      ta,
		spinner:    sp,
		keyMap:     DefaultKeyMap(),
	}

	if store != nil {
		transcript := tr
		sess.SetAutoSaveCallback(func() error {
			if transcript.IsEmpty() {
				return nil
			}
			return store.Save(transcript)
		})
	} else {
		sess.SetAutoSaveEnabled(false)
	}

	return m
}

// Init kicks off the probe, the input blink, and the session ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		probeCmd(m.client),
		listModelsCmd(m.client),
		session.TickCmd(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProbeResultMsg:
		return m.handleProbeResult(msg)

	case ModelsMsg:
		return m.handleModels(msg)

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case StreamChunkMsg:
		return m.handleStreamChunk(msg)

	case StreamDoneMsg:
		return m.handleStreamDone(msg)

	case StreamErrorMsg:
		return m.handleStreamError(msg)

	case SaveResultMsg:
		return m.handleSaveResult(msg)

	case ErrorMsg:
		m.lastError = &msg
		m.state = StateError
		return m, nil

	case ErrorDismissMsg:
		m.lastError = nil
		m.state = StateReady
		m.input.Focus()
		return m, textarea.Blink

	case spinner.TickMsg:
		if m.state == StateStreaming {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case session.TickMsg:
		return m, m.session.HandleTick()

	case session.AutoSaveMsg:
		m.session.Check()
		return m, nil

	default:
		var cmds []tea.Cmd
		if m.state == StateReady {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Transcript returns the active transcript.
func (m *Model) Transcript() *model.Transcript {
	return m.transcript
}

// GetState returns the current view state.
func (m *Model) GetState() State {
	return m.state
}

// Busy reports whether a request is in flight.
func (m *Model) Busy() bool {
	return m.state == StateStreaming
}
