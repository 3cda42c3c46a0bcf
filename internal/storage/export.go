// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/util"
)

// =============================================================================
// CONVERSATION EXPORT
// =============================================================================

// ExportMarkdown renders a transcript as Markdown with metadata,
// timestamps and role labels.
func ExportMarkdown(tr *model.Transcript) string {
	var sb strings.Builder
	sb.WriteString("# " + tr.GetTitle() + "\n\n")
	sb.WriteString("Created: " + tr.CreatedAt.Format(time.RFC3339) + "\n")
	if tr.Model != "" {
		sb.WriteString("Model: " + tr.Model + "\n")
	}
	sb.WriteString("\n---\n\n")

	for _, turn := range tr.Turns {
		sb.WriteString("**" + turn.Role.DisplayName() + "** (" + turn.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(turn.DisplayContent())
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders a transcript as pretty-printed JSON.
func ExportJSON(tr *model.Transcript) ([]byte, error) {
	return json.MarshalIndent(tr, "", "  ")
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats conversation metadata as a table for terminal display.
func FormatList(metas []model.TranscriptMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	sb.WriteString("Conversations:\n")
	sb.WriteString("-----------------------------------------------------\n")
	sb.WriteString(util.PadRight("#", 4) + util.PadRight("ID", 10) +
		util.PadRight("Updated", 18) + util.PadRight("Turns", 7) + "Title\n")
	sb.WriteString("-----------------------------------------------------\n")

	for i, m := range metas {
		id := m.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(util.PadRight(util.IntToString(i), 4) +
			util.PadRight(id, 10) +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 18) +
			util.PadRight(util.IntToString(m.TurnCount), 7) +
			util.TruncateRunes(m.Title, 40) + "\n")
	}
	return sb.String()
}
