// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when an endpoint URL cannot be used.
var ErrInvalidURL = errors.New("invalid endpoint URL")

// NormalizeEndpoint validates a user-entered endpoint URL and returns its
// canonical form: scheme://host[:port] with surrounding whitespace and any
// trailing slashes removed. Normalizing an already-normalized URL returns
// it unchanged, so stored values can be re-normalized safely.
func NormalizeEndpoint(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return strings.TrimRight(trimmed, "/"), nil
}

// SetEndpoint normalizes and stores a new endpoint base URL.
// The config is unchanged when the URL is invalid.
func (c *Config) SetEndpoint(raw string) error {
	normalized, err := NormalizeEndpoint(raw)
	if err != nil {
		return err
	}
	c.Endpoint.BaseURL = normalized
	return nil
}
