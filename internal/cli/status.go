// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Endpoint probe and configuration summary.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/lmchat/internal/util"
)

// HandleStatus probes the endpoint and prints a status summary.
// A configured endpoint is only reported usable when the probe succeeds.
func HandleStatus(args Args) {
	cfg := mustLoadConfig(args)
	client := newClient(cfg)

	fmt.Println(TitleStyle.Render("lmchat status"))
	fmt.Println(RenderSeparator())

	fmt.Println(LabelStyle.Render("Endpoint:") + ValueStyle.Render(cfg.Endpoint.BaseURL))
	fmt.Println(LabelStyle.Render("Model:") + ValueStyle.Render(cfg.Generation.Model))
	fmt.Println(LabelStyle.Render("Temperature:") + ValueStyle.Render(fmt.Sprintf("%.1f", cfg.Generation.Temperature)))
	fmt.Println(LabelStyle.Render("Max tokens:") + ValueStyle.Render(util.IntToString(cfg.Generation.MaxTokens)))
	fmt.Println(LabelStyle.Render("Streaming:") + ValueStyle.Render(fmt.Sprintf("%t", cfg.Generation.Stream)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Probe(ctx)
	latency := time.Since(start)

	if err != nil {
		fmt.Println(LabelStyle.Render("Reachable:") + ErrorStyle.Render("no"))
		fmt.Println()
		DisplayError(err, cfg.Endpoint.BaseURL)
		return
	}

	fmt.Println(LabelStyle.Render("Reachable:") +
		SuccessStyle.Render(fmt.Sprintf("yes (%dms)", latency.Milliseconds())))

	models, err := client.ListModels(ctx)
	if err == nil && len(models) > 0 {
		fmt.Println(LabelStyle.Render("Models:") + ValueStyle.Render(util.IntToString(len(models))+" available"))
	}
}

// HandleModels lists the models the endpoint serves.
func HandleModels(args Args) {
	cfg := mustLoadConfig(args)
	client := newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		HandleErrorAndExit(err, cfg.Endpoint.BaseURL)
	}
	if len(models) == 0 {
		fmt.Println(InfoStyle.Render("The endpoint reports no models."))
		return
	}

	fmt.Println(TitleStyle.Render("Available models"))
	for _, m := range models {
		marker := "  "
		if m.ID == cfg.Generation.Model {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Println(marker + ValueStyle.Render(m.ID))
	}
}
