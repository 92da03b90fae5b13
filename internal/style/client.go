// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package style

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// Client fetches style manifests over HTTP.
//
// Requests are anonymous (no credentials or cookies) and bounded by the
// client timeout. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a manifest client with the given request timeout
// (30s when zero).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and decodes the style manifest at styleURL.
// Returns an error on network failure, a non-2xx status, or undecodable JSON.
func (c *Client) Fetch(ctx context.Context, styleURL string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, styleURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create manifest request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("manifest request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// readBodyForError reads at most maxErrorBodySize of the response body for
// error diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
