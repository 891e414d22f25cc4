package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
)

// fakeStore is an in-memory SecretStore with read counters.
type fakeStore struct {
	mu          sync.Mutex
	claudeToken string
	claudeErr   error
	manualToken string
	claudeReads int
	manualReads int
}

func (f *fakeStore) ClaudeCodeToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claudeReads++
	if f.claudeErr != nil {
		return "", f.claudeErr
	}
	if f.claudeToken == "" {
		return "", keyring.ErrNotFound
	}
	return f.claudeToken, nil
}

func (f *fakeStore) ManualToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualReads++
	if f.manualToken == "" {
		return "", keyring.ErrNotFound
	}
	return f.manualToken, nil
}

func (f *fakeStore) SetManualToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualToken = token
	return nil
}

func (f *fakeStore) DeleteManualToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualToken = ""
	return nil
}

func (f *fakeStore) reads() (claude, manual int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claudeReads, f.manualReads
}

type fetchResult struct {
	usage *anthropic.UsageResponse
	err   error
}

// fakeClient replays canned results in order; the last one repeats. A
// non-nil gate blocks every call until the gate is closed.
type fakeClient struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	tokens  []string
	gate    chan struct{}
}

func (f *fakeClient) FetchUsage(ctx context.Context, token string) (*anthropic.UsageResponse, error) {
	f.mu.Lock()
	f.calls++
	f.tokens = append(f.tokens, token)
	var res fetchResult
	if len(f.results) > 0 {
		res = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if res.err != nil {
		return nil, res.err
	}
	if res.usage == nil {
		res.usage = &anthropic.UsageResponse{FiveHour: &anthropic.UsageWindow{Utilization: 10}}
	}
	return res.usage, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// memPrefs is an in-memory PreferenceStore.
type memPrefs struct {
	mu   sync.Mutex
	src  core.TokenSource
	sets int
}

func (p *memPrefs) PreferredSource() (core.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src, nil
}

func (p *memPrefs) SetPreferredSource(src core.TokenSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = src
	p.sets++
	return nil
}

func (p *memPrefs) stored() (core.TokenSource, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src, p.sets
}

func recvState(t *testing.T, ch <-chan core.State) core.State {
	t.Helper()
	select {
	case st, ok := <-ch:
		if !ok {
			t.Fatal("state channel closed unexpectedly")
		}
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a state")
	}
	return core.State{}
}

// drainStates collects everything already buffered without waiting.
func drainStates(ch <-chan core.State) []core.State {
	var out []core.State
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, st)
		default:
			return out
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
