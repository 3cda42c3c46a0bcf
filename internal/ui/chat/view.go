// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// view.go - Rendering for the chat view.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lmchat/internal/model"
)

// renderChat assembles the full frame.
func (m *Model) renderChat() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	}

	frame := lipgloss.JoinVertical(lipgloss.Left, sections...)

	if m.state == StateError && m.lastError != nil {
		return m.renderErrorOverlay(frame)
	}
	return frame
}

// =============================================================================
// HEADER
// =============================================================================

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("lmchat")
	subtitle := m.theme.HeaderSubtitle.Render(m.cfg.Generation.Model)
	line := title + "  " + subtitle

	header := m.theme.Header.Width(m.width).Render(line)
	return header
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTurns renders the transcript into viewport content.
func (m *Model) renderTurns() string {
	if m.transcript.IsEmpty() {
		return m.theme.InfoStyle.Render("\n  Send a message to start the conversation.\n")
	}

	var b strings.Builder
	for _, turn := range m.transcript.Turns {
		b.WriteString(m.renderTurn(turn))
		b.WriteString("\n\n")
	}

	if m.state == StateStreaming && !m.sawToken {
		b.WriteString(m.theme.Spinner.Render(m.spinner.View()))
		b.WriteString(" ")
		b.WriteString(m.theme.ThinkingText.Render(
			fmt.Sprintf("Thinking... (%.0fs)", m.elapsed().Seconds())))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderTurn(turn *model.Turn) string {
	var label string
	switch turn.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(turn.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(turn.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(turn.Role.DisplayName())
	}
	timestamp := m.theme.TurnTimestamp.Render(turn.Timestamp.Format("15:04"))

	body := turn.DisplayContent()
	// Markdown is only rendered for completed assistant turns; a partial
	// stream would produce broken formatting on every token.
	if turn.Role == model.RoleAssistant && !turn.IsStreaming {
		body = m.renderer.Render(body)
	} else {
		body = m.theme.TurnBody.Render(body)
	}

	out := label + " " + timestamp + "\n" + body

	if m.cfg.UI.ShowStats {
		if stats := turn.FormatStats(); stats != "" {
			out += "\n" + m.theme.StatsLine.Render(stats)
		}
	}
	return out
}

// =============================================================================
// INPUT
// =============================================================================

func (m *Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m *Model) renderStatusBar() string {
	var endpoint string
	switch m.endpointState {
	case EndpointReachable:
		endpoint = m.theme.EndpointReachable.Render(
			fmt.Sprintf("* %s (%dms)", m.cfg.Endpoint.BaseURL, m.probeLatency.Milliseconds()))
	case EndpointUnreachable:
		endpoint = m.theme.EndpointUnreachable.Render("x " + m.cfg.Endpoint.BaseURL)
	default:
		endpoint = m.theme.EndpointUnprobed.Render("? " + m.cfg.Endpoint.BaseURL)
	}

	left := endpoint
	if m.modelCount > 0 {
		left += m.theme.ShortcutDesc.Render(fmt.Sprintf("  %d models", m.modelCount))
	}
	if m.statusMsg != "" {
		left += "  " + m.theme.InfoStyle.Render(m.statusMsg)
	}

	shortcuts := m.renderShortcuts()

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(shortcuts) - 2
	if gap < 1 {
		gap = 1
	}

	return m.theme.StatusBar.Width(m.width).Render(
		left + strings.Repeat(" ", gap) + shortcuts)
}

func (m *Model) renderShortcuts() string {
	var parts []string
	for _, binding := range m.keyMap.ShortHelp() {
		h := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// ERROR OVERLAY
// =============================================================================

func (m *Model) renderErrorOverlay(frame string) string {
	box := m.theme.ErrorBox.Width(min(m.width-4, 70)).Render(
		m.theme.ErrorStyle.Render(m.lastError.Title) + "\n\n" +
			m.lastError.Message + "\n\n" +
			m.theme.ShortcutDesc.Render("Press Esc or Enter to dismiss"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
