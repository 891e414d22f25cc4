package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/core"
)

func TestFetchWithoutCredentialSkipsTransport(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{}
	p := NewFetchPipeline(NewTokenResolver(store), client)

	_, err := p.Fetch(context.Background(), core.SourceClaudeCode)
	var uerr *core.UsageError
	if !errors.As(err, &uerr) || uerr.Kind != core.ErrorNoCredential {
		t.Fatalf("Fetch() error = %v, want kind %q", err, core.ErrorNoCredential)
	}
	if client.callCount() != 0 {
		t.Errorf("transport calls = %d, want 0", client.callCount())
	}
}

func TestFetchMapsSnapshot(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
	client := &fakeClient{results: []fetchResult{{usage: &anthropic.UsageResponse{
		FiveHour: &anthropic.UsageWindow{Utilization: 42.5},
		SevenDay: &anthropic.UsageWindow{Utilization: 12},
	}}}}
	p := NewFetchPipeline(NewTokenResolver(store), client)
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	snap, err := p.Fetch(context.Background(), core.SourceClaudeCode)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !snap.FetchedAt.Equal(fixed) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, fixed)
	}
	if len(snap.Buckets) != 2 {
		t.Fatalf("len(Buckets) = %d, want 2", len(snap.Buckets))
	}
	if snap.Buckets[0].Key != "session" || snap.Buckets[0].Ratio != 0.425 {
		t.Errorf("Buckets[0] = %+v, want session at 0.425", snap.Buckets[0])
	}
	if got := client.seenTokens(); len(got) != 1 || got[0] != "sk-ant-oat01-abc" {
		t.Errorf("tokens sent = %v, want the resolved token once", got)
	}
}

func TestFetchRetriesOnceOnAuthFailure(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
	client := &fakeClient{results: []fetchResult{
		{err: &anthropic.StatusError{Status: 401, Body: "token expired"}},
		{usage: &anthropic.UsageResponse{FiveHour: &anthropic.UsageWindow{Utilization: 5}}},
	}}
	p := NewFetchPipeline(NewTokenResolver(store), client)

	snap, err := p.Fetch(context.Background(), core.SourceClaudeCode)
	if err != nil {
		t.Fatalf("Fetch() error = %v, want retry to succeed", err)
	}
	if snap.IsEmpty() {
		t.Error("Fetch() returned an empty snapshot")
	}
	if client.callCount() != 2 {
		t.Errorf("transport calls = %d, want 2", client.callCount())
	}
	// The retry must re-read the secret, not reuse the cached credential.
	if claude, _ := store.reads(); claude != 2 {
		t.Errorf("store reads = %d, want 2", claude)
	}
}

func TestFetchAuthFailureTwiceIsTerminal(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
	client := &fakeClient{results: []fetchResult{
		{err: &anthropic.StatusError{Status: 401, Body: "nope"}},
	}}
	p := NewFetchPipeline(NewTokenResolver(store), client)

	_, err := p.Fetch(context.Background(), core.SourceClaudeCode)
	var uerr *core.UsageError
	if !errors.As(err, &uerr) || uerr.Kind != core.ErrorHTTP || uerr.Status != 401 {
		t.Fatalf("Fetch() error = %v, want HTTP 401", err)
	}
	if client.callCount() != 2 {
		t.Errorf("transport calls = %d, want exactly 2 (one retry, no loop)", client.callCount())
	}
}

func TestFetchDoesNotRetryOtherStatuses(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
	client := &fakeClient{results: []fetchResult{
		{err: &anthropic.StatusError{Status: 403, Body: "forbidden"}},
	}}
	p := NewFetchPipeline(NewTokenResolver(store), client)

	_, err := p.Fetch(context.Background(), core.SourceClaudeCode)
	var uerr *core.UsageError
	if !errors.As(err, &uerr) || uerr.Kind != core.ErrorHTTP || uerr.Status != 403 {
		t.Fatalf("Fetch() error = %v, want HTTP 403", err)
	}
	if client.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1", client.callCount())
	}
}

func TestFetchErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.ErrorKind
	}{
		{"decode failure", &anthropic.DecodeError{Cause: errors.New("bad json")}, core.ErrorDecoding},
		{"transport failure", errors.New("dial tcp: connection refused"), core.ErrorNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
			client := &fakeClient{results: []fetchResult{{err: tt.err}}}
			p := NewFetchPipeline(NewTokenResolver(store), client)

			_, err := p.Fetch(context.Background(), core.SourceClaudeCode)
			var uerr *core.UsageError
			if !errors.As(err, &uerr) || uerr.Kind != tt.want {
				t.Fatalf("Fetch() error = %v, want kind %q", err, tt.want)
			}
		})
	}
}
