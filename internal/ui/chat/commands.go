// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Bubble Tea commands for endpoint and storage work.
//
// All network and disk access runs inside tea.Cmd closures so the
// update loop never blocks. Streaming uses a channel: startStream opens
// it and waitChunk pulls one chunk per Update cycle.
package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/storage"
)

const probeTimeout = 5 * time.Second

// probeCmd checks whether the endpoint answers.
func probeCmd(client *openai.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		start := time.Now()
		err := client.Probe(ctx)
		return ProbeResultMsg{
			Reachable: err == nil,
			Latency:   time.Since(start),
			Err:       err,
		}
	}
}

// listModelsCmd fetches the models the endpoint serves.
func listModelsCmd(client *openai.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		models, err := client.ListModels(ctx)
		return ModelsMsg{Models: models, Err: err}
	}
}

// startStream opens a streaming completion for the transcript's wire
// messages and returns the chunk channel along with the cancel func.
// The caller stores both and drives the channel with waitChunk.
func startStream(client *openai.Client, tr *model.Transcript) (<-chan openai.StreamChunk, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	return client.ChatStreamChan(ctx, tr.WireMessages()), cancel
}

// waitChunk reads the next chunk from the stream channel.
func waitChunk(turnID string, ch <-chan openai.StreamChunk) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return StreamDoneMsg{TurnID: turnID}
		}
		if chunk.Error != nil {
			return StreamErrorMsg{TurnID: turnID, Err: chunk.Error}
		}
		return StreamChunkMsg{TurnID: turnID, Chunk: chunk}
	}
}

// saveCmd persists the transcript.
func saveCmd(store *storage.Store, tr *model.Transcript) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return SaveResultMsg{ID: tr.ID}
		}
		err := store.Save(tr)
		return SaveResultMsg{ID: tr.ID, Err: err}
	}
}
