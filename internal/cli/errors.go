// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - User-facing error formatting and exit codes.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/exchange"
	"github.com/jeranaias/lmchat/internal/openai"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitTimeoutError = 8
)

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalidURL):
		return ExitConfigError
	case openai.IsTimeout(err):
		return ExitTimeoutError
	case openai.IsTransport(err):
		return ExitNetworkError
	case errors.Is(err, exchange.ErrEmptyInput), errors.Is(err, exchange.ErrBusy):
		return ExitUsageError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatError renders an error as a user-facing message with a hint where
// one helps. Transport failures point at the endpoint, malformed responses
// at the server, so the user knows which side to fix.
func FormatError(err error, endpoint string) string {
	switch {
	case errors.Is(err, exchange.ErrEmptyInput):
		return "Nothing to send: the message is empty."

	case errors.Is(err, exchange.ErrBusy):
		return "A request is already in progress. Wait for it to finish or cancel it."

	case errors.Is(err, config.ErrInvalidURL):
		return fmt.Sprintf("Invalid endpoint URL: %v\nExpected something like http://127.0.0.1:8080", err)

	case openai.IsTimeout(err):
		return fmt.Sprintf("The request to %s timed out.\nThe model may still be loading; try again or raise timeout_secs.", endpoint)

	case openai.IsTransport(err):
		return fmt.Sprintf("Cannot reach %s: %v\nCheck that your inference server is running, or set the endpoint with:\n  lmchat config set endpoint http://host:port", endpoint, err)

	case openai.IsMalformed(err):
		return fmt.Sprintf("The server at %s answered, but not with a chat completion: %v\nIs this actually an OpenAI-compatible endpoint?", endpoint, err)

	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// DisplayError prints a formatted error to stderr.
func DisplayError(err error, endpoint string) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render(FormatError(err, endpoint)))
}

// HandleErrorAndExit prints the error and exits with the mapped code.
func HandleErrorAndExit(err error, endpoint string) {
	DisplayError(err, endpoint)
	os.Exit(GetExitCode(err))
}
