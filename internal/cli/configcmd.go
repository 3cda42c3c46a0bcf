// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// configcmd.go - Configuration show/set commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/openai"
)

// HandleConfig dispatches config subcommands.
func HandleConfig(args Args) {
	switch args.Subcommand {
	case "", "show":
		configShow(args)
	case "set":
		configSet(args)
	case "probe":
		configProbe(args)
	case "path":
		configPath()
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Unknown config subcommand: "+args.Subcommand))
		fmt.Fprintln(os.Stderr, "Usage: lmchat config [show|set|probe|path]")
		os.Exit(ExitUsageError)
	}
}

func configShow(args Args) {
	cfg := mustLoadConfig(args)

	fmt.Println(TitleStyle.Render("Configuration"))
	fmt.Println(RenderSeparator())
	fmt.Println(LabelStyle.Render("endpoint:") + ValueStyle.Render(cfg.Endpoint.BaseURL))
	key := "(not set)"
	if cfg.Endpoint.APIKey != "" {
		key = "********"
	}
	fmt.Println(LabelStyle.Render("api_key:") + ValueStyle.Render(key))
	fmt.Println(LabelStyle.Render("timeout_secs:") + ValueStyle.Render(strconv.Itoa(cfg.Endpoint.TimeoutSecs)))
	fmt.Println(LabelStyle.Render("model:") + ValueStyle.Render(cfg.Generation.Model))
	fmt.Println(LabelStyle.Render("temperature:") + ValueStyle.Render(fmt.Sprintf("%.1f", cfg.Generation.Temperature)))
	fmt.Println(LabelStyle.Render("max_tokens:") + ValueStyle.Render(strconv.Itoa(cfg.Generation.MaxTokens)))
	prompt := cfg.Generation.SystemPrompt
	if prompt == "" {
		prompt = "(not set)"
	}
	fmt.Println(LabelStyle.Render("system_prompt:") + ValueStyle.Render(prompt))
	fmt.Println(LabelStyle.Render("stream:") + ValueStyle.Render(fmt.Sprintf("%t", cfg.Generation.Stream)))
	fmt.Println(LabelStyle.Render("markdown:") + ValueStyle.Render(fmt.Sprintf("%t", cfg.UI.Markdown)))
	fmt.Println(LabelStyle.Render("history:") + ValueStyle.Render(fmt.Sprintf("%t (max %d)", cfg.History.Enabled, cfg.History.MaxConversations)))
}

func configSet(args Args) {
	if len(args.Raw) < 2 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Usage: lmchat config set KEY VALUE"))
		os.Exit(ExitUsageError)
	}
	key := args.Raw[0]
	value := strings.Join(args.Raw[1:], " ")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Configuration error: %v", err)))
		os.Exit(ExitConfigError)
	}

	switch key {
	case "endpoint":
		if err := setEndpointWithProbe(cfg, value); err != nil {
			HandleErrorAndExit(err, value)
		}
	case "model":
		cfg.Generation.Model = value
	case "api_key":
		cfg.Endpoint.APIKey = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("temperature must be a number between 0.0 and 2.0"))
			os.Exit(ExitUsageError)
		}
		cfg.Generation.Temperature = t
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("max_tokens must be a positive integer"))
			os.Exit(ExitUsageError)
		}
		cfg.Generation.MaxTokens = n
	case "system_prompt":
		cfg.Generation.SystemPrompt = value
	case "timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("timeout_secs must be a positive integer"))
			os.Exit(ExitUsageError)
		}
		cfg.Endpoint.TimeoutSecs = n
	default:
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Unknown config key: "+key))
		fmt.Fprintln(os.Stderr, "Keys: endpoint, model, api_key, temperature, max_tokens, system_prompt, timeout_secs")
		os.Exit(ExitUsageError)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Invalid value: %v", err)))
		os.Exit(ExitUsageError)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(fmt.Sprintf("Failed to save config: %v", err)))
		os.Exit(ExitConfigError)
	}
	fmt.Println(SuccessStyle.Render("Saved " + key + "."))
}

// setEndpointWithProbe normalizes the URL, verifies the endpoint answers,
// and only then stores it. An endpoint that cannot be probed is not saved.
func setEndpointWithProbe(cfg *config.Config, raw string) error {
	normalized, err := config.NormalizeEndpoint(raw)
	if err != nil {
		return err
	}

	client := openai.NewClientWithConfig(&openai.ClientConfig{
		BaseURL: normalized,
		APIKey:  cfg.Endpoint.APIKey,
		Timeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Probe(ctx); err != nil {
		return err
	}

	cfg.Endpoint.BaseURL = normalized
	return nil
}

// configProbe checks whether an endpoint answers without saving
// anything. With no argument it probes the configured endpoint.
func configProbe(args Args) {
	cfg := mustLoadConfig(args)

	target := cfg.Endpoint.BaseURL
	if len(args.Raw) > 0 {
		normalized, err := config.NormalizeEndpoint(args.Raw[0])
		if err != nil {
			HandleErrorAndExit(err, args.Raw[0])
		}
		target = normalized
	}

	client := openai.NewClientWithConfig(&openai.ClientConfig{
		BaseURL: target,
		APIKey:  cfg.Endpoint.APIKey,
		Timeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Probe(ctx); err != nil {
		HandleErrorAndExit(err, target)
	}
	fmt.Println(SuccessStyle.Render(
		fmt.Sprintf("%s is reachable (%dms)", target, time.Since(start).Milliseconds())))
}

func configPath() {
	path, err := config.ConfigPathTOML()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(ExitConfigError)
	}
	fmt.Println(path)
}
