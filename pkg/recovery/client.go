// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 5 * time.Second

// Client talks to a backpack's recovery endpoint
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL, e.g. http://127.0.0.1:8090.
// A nil httpClient uses a client with a short timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Health fetches /health
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var h HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &h)
	return h, err
}

// Identity fetches /identity
func (c *Client) Identity(ctx context.Context) (IdentityStatus, error) {
	var s IdentityStatus
	err := c.do(ctx, http.MethodGet, "/identity", nil, http.StatusOK, &s)
	return s, err
}

// SyncClock asks the backpack to set the receiver clock. A zero t lets the
// backpack use its own time. Returns the time that was queued.
func (c *Client) SyncClock(ctx context.Context, t time.Time) (time.Time, error) {
	var body []byte
	if !t.IsZero() {
		var err error
		if body, err = json.Marshal(ClockRequest{Time: t}); err != nil {
			return time.Time{}, fmt.Errorf("encode clock request: %w", err)
		}
	}

	var resp ClockRequest
	err := c.do(ctx, http.MethodPost, "/clock", body, http.StatusAccepted, &resp)
	return resp.Time, err
}

// Restart asks the backpack to leave recovery mode
func (c *Client) Restart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/restart", nil, http.StatusAccepted, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		trimmed := strings.TrimSpace(string(msg))
		if trimmed == "" {
			return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
		}
		return fmt.Errorf("request %s: unexpected status %d: %s", path, resp.StatusCode, trimmed)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
