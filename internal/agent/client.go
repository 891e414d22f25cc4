package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/usagebar/usagebar/internal/core"
)

// Client talks to a running agent over its unix socket.
type Client struct {
	socketPath string
	http       *http.Client
}

func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
		DisableCompression: true,
		DisableKeepAlives:  true,
	}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: transport,
			// Covers a manual refresh, which can run two fetch attempts.
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return HealthResponse{}, err
	}
	return health, nil
}

// State returns the agent's current usage state without forcing a fetch.
func (c *Client) State(ctx context.Context) (core.State, error) {
	return c.doState(ctx, http.MethodGet, "/v1/state", nil)
}

// Refresh asks the agent to fetch now and returns the resulting state.
func (c *Client) Refresh(ctx context.Context) (core.State, error) {
	return c.doState(ctx, http.MethodPost, "/v1/refresh", nil)
}

func (c *Client) SetSource(ctx context.Context, source core.TokenSource) (core.State, error) {
	return c.doState(ctx, http.MethodPut, "/v1/source", SourceRequest{Source: string(source)})
}

func (c *Client) SetToken(ctx context.Context, token string) (core.State, error) {
	return c.doState(ctx, http.MethodPost, "/v1/token", TokenRequest{Token: token})
}

func (c *Client) ClearToken(ctx context.Context) (core.State, error) {
	return c.doState(ctx, http.MethodDelete, "/v1/token", nil)
}

func (c *Client) doState(ctx context.Context, method, path string, payload any) (core.State, error) {
	var state core.State
	if err := c.do(ctx, method, path, payload, &state); err != nil {
		return core.State{}, err
	}
	return state, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("agent client is not configured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode agent request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	// Host is ignored by the unix transport but required by net/http.
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return fmt.Errorf("build agent request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent request failed (is the agent running on %s?): %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("agent %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("agent %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode agent response: %w", err)
	}
	return nil
}
