// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared setup for CLI command handlers.
package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/storage"
)

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if args.Endpoint != "" {
		if err := cfg.SetEndpoint(args.Endpoint); err != nil {
			return nil, err
		}
	}
	if args.Model != "" {
		cfg.Generation.Model = args.Model
	}
	if args.NoStream {
		cfg.Generation.Stream = false
	}
	if args.Plain {
		cfg.UI.Markdown = false
	}
	return cfg, nil
}

// newClient builds the endpoint client from the configuration.
func newClient(cfg *config.Config) *openai.Client {
	return openai.NewClientWithConfig(cfg.ClientConfig())
}

// openStore opens the conversation store, or returns nil when history
// is disabled.
func openStore(cfg *config.Config) (*storage.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(path)
	if err != nil {
		return nil, err
	}
	store.MaxConversations = cfg.History.MaxConversations
	return store, nil
}

// mustLoadConfig loads config or exits with a config error.
func mustLoadConfig(args Args) *config.Config {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Configuration error: %v", err)))
		os.Exit(ExitConfigError)
	}
	return cfg
}
