// Package anthropic talks to the OAuth usage endpoint the Claude clients
// poll for plan utilization. One fixed endpoint, bearer token, JSON out.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	usageEndpoint  = "/api/oauth/usage"

	// The endpoint only answers to the first-party clients, so the CLI's
	// identity is sent verbatim.
	defaultUserAgent = "claude-code/2.0.32"
	oauthBetaHeader  = "oauth-2025-04-20"

	maxResponseBytes = 1 << 20 // 1 MiB
)

// StatusError is any non-2xx answer from the endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usage API returned HTTP %d: %s", e.Status, e.Body)
}

// DecodeError is a 2xx answer whose body did not parse as a usage payload.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return "parsing usage response: " + e.Cause.Error() }

func (e *DecodeError) Unwrap() error { return e.Cause }

type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		UserAgent:  defaultUserAgent,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchUsage performs one authenticated request. Errors are typed:
// *StatusError for non-2xx, *DecodeError for unparsable 2xx bodies, and a
// wrapped transport error for everything below HTTP.
func (c *Client) FetchUsage(ctx context.Context, token string) (*UsageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+usageEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("anthropic-beta", oauthBetaHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var usage UsageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return &usage, nil
}
