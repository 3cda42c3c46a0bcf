// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render formats assistant replies for terminal display.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Renderer renders markdown for the terminal, falling back to plain text
// when rendering is disabled or unavailable.
type Renderer struct {
	tr      *glamour.TermRenderer
	enabled bool
}

// New creates a renderer wrapped to the given width. When enabled is false,
// or the terminal renderer cannot be constructed, Render passes content
// through unchanged.
func New(enabled bool, width int) *Renderer {
	r := &Renderer{enabled: enabled}
	if !enabled {
		return r
	}

	if width <= 0 {
		width = 80
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return r
	}
	r.tr = tr
	return r
}

// Render formats markdown content for display. The original content is
// returned when rendering is disabled or fails.
func (r *Renderer) Render(content string) string {
	if !r.enabled || r.tr == nil {
		return content
	}
	rendered, err := r.tr.Render(content)
	if err != nil {
		return content
	}
	// Glamour pads with leading/trailing blank lines; trim for inline use.
	return strings.Trim(rendered, "\n")
}

// Enabled reports whether markdown rendering is active.
func (r *Renderer) Enabled() bool {
	return r.enabled && r.tr != nil
}
