// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for lmchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdStatus
	CmdModels
	CmdConfig
	CmdSessions
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Model    string
	Endpoint string
	NoStream bool
	Plain    bool // Disable markdown rendering
	Quiet    bool
	JSON     bool

	// Command-specific
	Query      string
	Subcommand string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `lmchat - terminal chat for local LLM endpoints

Lmchat talks to any OpenAI-compatible chat completion server running on
your own machine (llama.cpp server, LM Studio, vLLM, Ollama, ...).

Usage:
  lmchat                      Start TUI (default)
  lmchat ask "question"       Ask a single question
  lmchat chat                 Interactive chat in the terminal
  lmchat status               Probe the endpoint and show configuration
  lmchat models               List models the endpoint serves
  lmchat config [show|set|probe|path]
                              Configuration management
  lmchat sessions [list|show|search|export|delete|clear]
                              Saved conversation management
  lmchat version              Show version
  lmchat help                 Show this help

Config Commands:
  lmchat config show              Display current configuration
  lmchat config set KEY VALUE     Set a config value and save
                                  Keys: endpoint, model, api_key,
                                  temperature, max_tokens, system_prompt
  lmchat config probe [URL]       Check that an endpoint answers
  lmchat config path              Print the config file path

Session Commands:
  lmchat sessions list            List saved conversations
  lmchat sessions show <id|#>     Print a conversation
  lmchat sessions search <text>   Search conversations
  lmchat sessions export <id|#>   Export as markdown (--json for JSON)
  lmchat sessions delete <id>     Delete a conversation
  lmchat sessions clear           Delete all conversations

Flags:
  --model NAME      Override the configured model
  --endpoint URL    Override the configured endpoint
  --no-stream       Disable streaming responses
  --plain           Disable markdown rendering
  --quiet, -q       Suppress statistics and informational output

Environment:
  LMCHAT_ENDPOINT       Endpoint base URL
  LMCHAT_MODEL          Model identifier
  LMCHAT_API_KEY        Bearer token (rarely needed locally)
  LMCHAT_TIMEOUT_SECS   Request timeout in seconds

Examples:
  lmchat ask "explain io.Reader in two sentences"
  lmchat --model qwen2.5-7b chat
  LMCHAT_ENDPOINT=http://192.168.1.20:8080 lmchat status
`

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("lmchat %s (commit %s, built %s, %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// Parse parses os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments (without the program name).
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := remaining[0]
	rest := remaining[1:]

	switch cmd {
	case "ask":
		args.Query = strings.Join(rest, " ")
		return CmdAsk, args
	case "chat":
		return CmdChat, args
	case "status", "s":
		return CmdStatus, args
	case "models":
		return CmdModels, args
	case "config":
		if len(rest) > 0 {
			args.Subcommand = rest[0]
			args.Raw = rest[1:]
		}
		return CmdConfig, args
	case "sessions", "session":
		if len(rest) > 0 {
			args.Subcommand = rest[0]
			args.Raw = rest[1:]
		}
		return CmdSessions, args
	case "version", "--version", "-v":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		// Unknown first argument: treat it as an ask query so
		// `lmchat "what is a goroutine"` does the obvious thing.
		args.Query = strings.Join(remaining, " ")
		return CmdAsk, args
	}
}

// parseGlobalFlags extracts global flags from the argument list.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		switch arg := argv[i]; arg {
		case "--model", "-m":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		case "--endpoint", "-e":
			if i+1 < len(argv) {
				i++
				args.Endpoint = argv[i]
			}
		case "--no-stream":
			args.NoStream = true
		case "--plain":
			args.Plain = true
		case "--quiet", "-q":
			args.Quiet = true
		case "--json":
			args.JSON = true
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args
}
