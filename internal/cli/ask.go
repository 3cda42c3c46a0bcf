// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single-question command: one request, print the reply, exit.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/lmchat/internal/exchange"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/render"
)

// HandleAsk answers a single question and exits.
func HandleAsk(args Args) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat ask \"your question\""))
		os.Exit(ExitUsageError)
	}

	cfg := mustLoadConfig(args)
	ex := exchange.New(newClient(cfg))

	tr := model.NewTranscriptWithModel(cfg.Generation.Model)
	tr.SystemPrompt = cfg.Generation.SystemPrompt

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := render.New(cfg.UI.Markdown && IsStdoutTTY(), GetTerminalWidth())

	var turn *model.Turn
	var err error

	if cfg.Generation.Stream && !cfg.UI.Markdown {
		// Stream straight to the terminal when no post-render is needed.
		turn, err = ex.SendStream(ctx, tr, query, func(tok string) {
			fmt.Print(tok)
		})
		if err == nil {
			fmt.Println()
		}
	} else {
		if !args.Quiet && IsStdoutTTY() {
			fmt.Fprintln(os.Stderr, InfoStyle.Render("Thinking..."))
		}
		turn, err = ex.Send(ctx, tr, query)
		if err == nil {
			fmt.Println(renderer.Render(turn.Content))
		}
	}

	if err != nil {
		HandleErrorAndExit(err, cfg.Endpoint.BaseURL)
	}

	if !args.Quiet && cfg.UI.ShowStats {
		if stats := turn.FormatStats(); stats != "" {
			fmt.Fprintln(os.Stderr, StatsStyle.Render(stats))
		}
	}
}
