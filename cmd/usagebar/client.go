package main

import (
	"context"
	"strings"
	"time"

	"github.com/usagebar/usagebar/internal/agent"
)

func resolveSocketPath(flagValue string) (string, error) {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p, nil
	}
	return agent.DefaultSocketPath()
}

// agentClient returns a client for a running agent, probing health first so
// callers can fall back to acting directly when no agent is up.
func agentClient(socketPath string) (*agent.Client, bool) {
	path, err := resolveSocketPath(socketPath)
	if err != nil {
		return nil, false
	}
	client := agent.NewClient(path)
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if _, err := client.Health(ctx); err != nil {
		return nil, false
	}
	return client, true
}
