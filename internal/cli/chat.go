// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Handles the "lmchat chat" command: a readline-style loop with input
// history, slash commands, and streaming responses.
//
// Interactive commands:
//   /help, /h           Show available commands
//   /clear, /c          Start a fresh conversation
//   /model [name]       Show or switch model
//   /save               Save the conversation now
//   /history            Show the transcript so far
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/exchange"
	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/render"
	"github.com/jeranaias/lmchat/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with input history loaded from disk.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Non-empty
// input is appended to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and releases the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	Config     *config.Config
	Exchanger  *exchange.Exchanger
	Transcript *model.Transcript
	Store      *storage.Store
	Renderer   *render.Renderer

	Quiet     bool
	StartTime time.Time
	InputCLI  *ChatCLI
}

// NewChatSession builds a chat session from the loaded configuration.
func NewChatSession(cfg *config.Config, args Args) (*ChatSession, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	tr := model.NewTranscriptWithModel(cfg.Generation.Model)
	tr.SystemPrompt = cfg.Generation.SystemPrompt

	return &ChatSession{
		Config:     cfg,
		Exchanger:  exchange.New(newClient(cfg)),
		Transcript: tr,
		Store:      store,
		Renderer:   render.New(cfg.UI.Markdown && IsStdoutTTY(), GetTerminalWidth()),
		Quiet:      args.Quiet,
		StartTime:  time.Now(),
		InputCLI:   NewChatCLI(),
	}, nil
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive chat loop.
func HandleChat(args Args) {
	cfg := mustLoadConfig(args)

	session, err := NewChatSession(cfg, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Failed to start chat: %v", err)))
		os.Exit(ExitGeneralError)
	}
	defer session.InputCLI.Close()
	if session.Store != nil {
		defer session.Store.Close()
	}

	// Verify the endpoint answers before entering the loop.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	probeErr := session.Exchanger.Client().Probe(probeCtx)
	cancelProbe()
	if probeErr != nil {
		DisplayError(probeErr, cfg.Endpoint.BaseURL)
		os.Exit(GetExitCode(probeErr))
	}

	if !session.Quiet {
		printWelcome(session)
	}

	// First Ctrl+C during generation cancels the in-flight request.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.Exchanger.Busy() {
				session.Exchanger.Cancel()
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := session.InputCLI.ReadInput(PromptStyle.Render("lmchat> "))
		if err != nil {
			// liner.ErrPromptAborted is Ctrl+C, anything else is EOF.
			fmt.Println()
			session.exit()
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := session.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintln(os.Stderr, ErrorStyle.Render("[Error] ")+err.Error())
			}
			if !keepGoing {
				session.exit()
				return
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			session.exit()
			return
		}

		if err := session.processMessage(input); err != nil {
			DisplayError(err, session.Config.Endpoint.BaseURL)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one message and prints the reply.
func (s *ChatSession) processMessage(input string) error {
	ctx := context.Background()

	useMarkdown := s.Renderer.Enabled()

	fmt.Println()

	var turn *model.Turn
	var err error

	if s.Config.Generation.Stream {
		turn, err = s.Exchanger.SendStream(ctx, s.Transcript, input, func(tok string) {
			if !useMarkdown {
				fmt.Print(tok)
			}
		})
	} else {
		turn, err = s.Exchanger.Send(ctx, s.Transcript, input)
	}
	if err != nil {
		return err
	}

	if useMarkdown {
		fmt.Println(s.Renderer.Render(turn.DisplayContent()))
	} else if s.Config.Generation.Stream {
		fmt.Println()
	} else {
		fmt.Println(turn.DisplayContent())
	}
	fmt.Println()

	if !s.Quiet && s.Config.UI.ShowStats {
		if stats := turn.FormatStats(); stats != "" {
			fmt.Fprintln(os.Stderr, StatsStyle.Render(stats))
		}
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands. A false return exits
// the loop.
func (s *ChatSession) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/clear", "/c":
		s.saveTranscript(false)
		s.Transcript = model.NewTranscriptWithModel(s.Config.Generation.Model)
		s.Transcript.SystemPrompt = s.Config.Generation.SystemPrompt
		fmt.Println(InfoStyle.Render("[New conversation]"))
		return true, nil

	case "/model", "/m":
		return s.handleModelCommand(rest)

	case "/save":
		if s.Store == nil {
			return true, fmt.Errorf("history is disabled in the configuration")
		}
		if s.Transcript.IsEmpty() {
			fmt.Println(InfoStyle.Render("[Nothing to save]"))
			return true, nil
		}
		if err := s.Store.Save(s.Transcript); err != nil {
			return true, err
		}
		fmt.Println(SuccessStyle.Render("[Saved] ") + s.Transcript.GetTitle())
		return true, nil

	case "/history":
		s.printHistory()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleModelCommand shows or switches the active model.
func (s *ChatSession) handleModelCommand(rest []string) (bool, error) {
	client := s.Exchanger.Client()

	if len(rest) == 0 {
		fmt.Println(InfoStyle.Render("[Model] ") + ValueStyle.Render(client.Model()))
		return true, nil
	}

	newModel := rest[0]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if models, err := client.ListModels(ctx); err == nil {
		known := false
		for _, m := range models {
			if m.ID == newModel {
				known = true
				break
			}
		}
		if !known {
			fmt.Fprintln(os.Stderr, WarningStyle.Render(
				fmt.Sprintf("[Warning] Model %q not reported by the endpoint, using it anyway", newModel)))
		}
	}

	client.SetModel(newModel)
	s.Transcript.Model = newModel
	fmt.Println(SuccessStyle.Render("[OK] ") + "Switched to model: " + newModel)
	return true, nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func printWelcome(s *ChatSession) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("lmchat interactive chat"))
	fmt.Println(RenderSeparator())
	fmt.Println(LabelStyle.Render("Endpoint:") + ValueStyle.Render(s.Config.Endpoint.BaseURL))
	fmt.Println(LabelStyle.Render("Model:") + ValueStyle.Render(s.Config.Generation.Model))
	if s.Store == nil {
		fmt.Println(LabelStyle.Render("History:") + WarningStyle.Render("disabled"))
	}
	fmt.Println()
	fmt.Println(InfoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printChatHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Start a fresh conversation"},
		{"/model [name]", "Show or switch model"},
		{"/save", "Save the conversation now"},
		{"/history", "Show the transcript so far"},
		{"/quit, /q", "Exit chat"},
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("Available Commands"))
	fmt.Println(RenderSeparator())
	for _, c := range commands {
		fmt.Printf("  %-16s %s\n", PromptStyle.Render(c.cmd), InfoStyle.Render(c.desc))
	}
	fmt.Println()
	fmt.Println(InfoStyle.Render("Tip: Ctrl+C cancels the current generation, Ctrl+D exits"))
	fmt.Println()
}

func (s *ChatSession) printHistory() {
	if s.Transcript.IsEmpty() {
		fmt.Println(InfoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render(s.Transcript.GetTitle()))
	fmt.Println(RenderSeparator())
	for i, turn := range s.Transcript.Turns {
		fmt.Printf("  %d. %s: %s\n", i+1,
			PromptStyle.Render(turn.Role.DisplayName()),
			turn.Preview(100))
	}
	fmt.Println()
}

// saveTranscript saves the transcript when history is enabled. Errors
// are reported but never abort the session.
func (s *ChatSession) saveTranscript(announce bool) {
	if s.Store == nil || s.Transcript.IsEmpty() {
		return
	}
	if err := s.Store.Save(s.Transcript); err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render(fmt.Sprintf("[Warning] Failed to save conversation: %v", err)))
		return
	}
	if announce {
		fmt.Println(InfoStyle.Render("[Saved] ") + s.Transcript.GetTitle())
	}
}

// exit saves the transcript and prints a short summary.
func (s *ChatSession) exit() {
	s.saveTranscript(!s.Quiet)

	if s.Transcript.IsEmpty() || s.Quiet {
		fmt.Println(InfoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(s.StartTime).Round(time.Second)
	fmt.Printf("%s %d turns | ~%d tokens | %s\n",
		InfoStyle.Render("[Session]"),
		s.Transcript.TurnCount(),
		s.Transcript.TokensUsed,
		elapsed)
	fmt.Println(InfoStyle.Render("Goodbye!"))
}
