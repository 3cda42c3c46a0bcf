// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Saved conversation management commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/storage"
)

// HandleSessions dispatches session subcommands.
func HandleSessions(args Args) {
	cfg := mustLoadConfig(args)
	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Failed to open history: %v", err)))
		os.Exit(ExitGeneralError)
	}
	if store == nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("History is disabled in the configuration."))
		os.Exit(ExitConfigError)
	}
	defer store.Close()

	switch args.Subcommand {
	case "", "list":
		sessionsList(store)
	case "show":
		sessionsShow(store, args)
	case "search":
		sessionsSearch(store, args)
	case "export":
		sessionsExport(store, args)
	case "delete":
		sessionsDelete(store, args)
	case "clear":
		sessionsClear(store)
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Unknown sessions subcommand: "+args.Subcommand))
		fmt.Fprintln(os.Stderr, "Usage: lmchat sessions [list|show|search|export|delete|clear]")
		os.Exit(ExitUsageError)
	}
}

func sessionsList(store *storage.Store) {
	metas, err := store.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}
	fmt.Print(storage.FormatList(metas))
}

// resolveTranscript accepts either a conversation ID (or unique prefix)
// or a numeric list index.
func resolveTranscript(store *storage.Store, ref string) (*model.Transcript, error) {
	if idx, err := strconv.Atoi(ref); err == nil {
		return store.LoadByIndex(idx)
	}

	tr, err := store.Load(ref)
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Try a unique ID prefix.
	metas, listErr := store.List()
	if listErr != nil {
		return nil, listErr
	}
	var match string
	for _, m := range metas {
		if strings.HasPrefix(m.ID, ref) {
			if match != "" {
				return nil, fmt.Errorf("ambiguous conversation reference %q", ref)
			}
			match = m.ID
		}
	}
	if match == "" {
		return nil, storage.ErrNotFound
	}
	return store.Load(match)
}

func sessionsShow(store *storage.Store, args Args) {
	if len(args.Raw) == 0 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat sessions show <id|#>"))
		os.Exit(ExitUsageError)
	}
	tr, err := resolveTranscript(store, args.Raw[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}

	fmt.Println(TitleStyle.Render(tr.GetTitle()))
	fmt.Println(RenderSeparator())
	for _, turn := range tr.Turns {
		label := PromptStyle.Render(turn.Role.DisplayName() + ":")
		fmt.Println(label)
		fmt.Println(WrapText(turn.DisplayContent(), GetTerminalWidth()))
		fmt.Println()
	}
}

func sessionsSearch(store *storage.Store, args Args) {
	if len(args.Raw) == 0 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat sessions search <text>"))
		os.Exit(ExitUsageError)
	}
	metas, err := store.Search(strings.Join(args.Raw, " "))
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}
	fmt.Print(storage.FormatList(metas))
}

func sessionsExport(store *storage.Store, args Args) {
	if len(args.Raw) == 0 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat sessions export <id|#> [--json]"))
		os.Exit(ExitUsageError)
	}
	tr, err := resolveTranscript(store, args.Raw[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}

	if args.JSON {
		data, err := storage.ExportJSON(tr)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
			os.Exit(ExitGeneralError)
		}
		fmt.Println(string(data))
		return
	}
	fmt.Print(storage.ExportMarkdown(tr))
}

func sessionsDelete(store *storage.Store, args Args) {
	if len(args.Raw) == 0 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat sessions delete <id>"))
		os.Exit(ExitUsageError)
	}
	if err := store.Delete(args.Raw[0]); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}
	fmt.Println(SuccessStyle.Render("Deleted."))
}

func sessionsClear(store *storage.Store) {
	count, err := store.Count()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}
	if err := store.Clear(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitGeneralError)
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Deleted %d conversation(s).", count)))
}
