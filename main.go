// lmchat - terminal chat for local OpenAI-compatible LLM endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/cli"
	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/openai"
	"github.com/jeranaias/lmchat/internal/storage"
	"github.com/jeranaias/lmchat/internal/ui/chat"
	"github.com/jeranaias/lmchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdStatus:
		cli.HandleStatus(args)
	case cli.CmdModels:
		cli.HandleModels(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdSessions:
		cli.HandleSessions(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUsage()
		os.Exit(cli.ExitUsageError)
	}
}

// runTUI starts the full-screen chat interface.
func runTUI(args cli.Args) {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(cli.ExitConfigError)
	}

	client := openai.NewClientWithConfig(cfg.ClientConfig())

	var store *storage.Store
	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err == nil {
			if s, err := storage.NewStore(path); err == nil {
				s.MaxConversations = cfg.History.MaxConversations
				store = s
			} else {
				fmt.Fprintf(os.Stderr, "Warning: history unavailable: %v\n", err)
			}
		}
	}
	if store != nil {
		defer store.Close()
	}

	m := chat.New(cfg, client, store, styles.NewTheme())
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Pick up config edits without a restart.
	if watcher, err := config.NewWatcher(func(fresh *config.Config) {
		p.Send(chat.ConfigReloadedMsg{Config: fresh})
	}); err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		} else {
			watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitGeneralError)
	}
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig(args cli.Args) (*config.Config, error) {
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
