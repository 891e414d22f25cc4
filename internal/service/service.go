// Package service owns the authoritative usage state: credential resolution,
// the fetch pipeline, the refresh schedule, and the broadcast of every state
// change to however many surfaces are attached.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usagebar/usagebar/internal/core"
)

const (
	DefaultRefreshInterval = 60 * time.Second
	minRefreshInterval     = 15 * time.Second
)

// PreferenceStore persists the preferred token source across restarts. It is
// read once at Start and written on every change.
type PreferenceStore interface {
	PreferredSource() (core.TokenSource, error)
	SetPreferredSource(core.TokenSource) error
}

type Options struct {
	Store    SecretStore
	Client   UsageClient
	Prefs    PreferenceStore // optional; nil keeps the preference in memory
	Interval time.Duration   // 0 means DefaultRefreshInterval
}

// Service is the single writer. All mutations of the state — startup,
// scheduled and manual refreshes, preference changes, manual-token changes —
// are serialized through s.mu, and every publication happens under the same
// lock, so subscribers observe states in exactly the order they were
// produced.
type Service struct {
	store    SecretStore
	prefs    PreferenceStore
	resolver *TokenResolver
	pipeline *FetchPipeline
	bc       *StateBroadcaster
	interval time.Duration

	mu    sync.Mutex
	state core.State

	started    atomic.Bool
	refreshing atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Service {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}

	resolver := NewTokenResolver(opts.Store)
	s := &Service{
		store:    opts.Store,
		prefs:    opts.Prefs,
		resolver: resolver,
		pipeline: NewFetchPipeline(resolver, opts.Client),
		interval: interval,
		done:     make(chan struct{}),
	}
	s.state = core.State{Initializing: true, PreferredSource: core.SourceClaudeCode}
	s.bc = NewStateBroadcaster(s.state)
	return s
}

// Subscribe attaches a consumer to the state stream; the first value is the
// current state. Attach and detach are cheap and never wait on a fetch.
func (s *Service) Subscribe() (<-chan core.State, func()) {
	return s.bc.Subscribe()
}

// State returns the current state without subscribing.
func (s *Service) State() core.State {
	return s.bc.Current()
}

// Start runs the startup sequence exactly once: load the preferred source,
// probe credential availability, publish the first settled state, do one
// fetch, then begin the periodic loop. Later calls are no-ops.
func (s *Service) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	preferred := core.SourceClaudeCode
	if s.prefs != nil {
		if src, err := s.prefs.PreferredSource(); err == nil && src != "" {
			preferred = src
		}
	}

	_, resolveErr := s.resolver.Resolve(preferred)

	s.mu.Lock()
	s.state.Initializing = false
	s.state.PreferredSource = preferred
	s.state.HasCredential = resolveErr == nil
	s.publishLocked()
	s.mu.Unlock()

	s.Refresh(ctx)

	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("service: context cancelled, stopping refresh loop")
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown stops the periodic loop and waits for it to exit. An in-flight
// fetch finishes on its own; no further ticks fire.
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.started.Load() {
		<-s.done
	}
}

// Refresh runs one fetch cycle and publishes its outcome. While a cycle is
// in flight every further call is a no-op, whether it comes from the ticker,
// the UI, or a preference change — at most one fetch runs at a time.
func (s *Service) Refresh(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer s.refreshing.Store(false)

	s.mu.Lock()
	preferred := s.state.PreferredSource
	s.mu.Unlock()

	snapshot, err := s.pipeline.Fetch(ctx, preferred)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		ue := asUsageError(err)
		log.Printf("service: refresh via %s failed: %v", preferred, ue)
		s.state.LastError = ue
		switch ue.Kind {
		case core.ErrorNoCredential, core.ErrorInvalidData:
			s.state.HasCredential = false
			s.state.ActiveSource = ""
		default:
			// The credential resolved and was used; only the fetch failed.
			s.state.HasCredential = true
			s.state.ActiveSource = preferred
		}
		// The previous snapshot and LastUpdated survive a failed refresh.
	} else {
		fetched := snapshot.FetchedAt
		s.state.Snapshot = snapshot
		s.state.LastUpdated = &fetched
		s.state.LastError = nil
		s.state.ActiveSource = preferred
		s.state.HasCredential = true
	}
	s.publishLocked()
}

// SetPreferredSource persists and applies a new preferred source, then
// refreshes with it.
func (s *Service) SetPreferredSource(ctx context.Context, source core.TokenSource) error {
	var persistErr error
	if s.prefs != nil {
		persistErr = s.prefs.SetPreferredSource(source)
	}
	s.applyPreferredSource(ctx, source)
	return persistErr
}

// ApplyPreferredSource applies a preference that was already persisted
// elsewhere (config watcher, agent API). No write-back, no loops.
func (s *Service) ApplyPreferredSource(ctx context.Context, source core.TokenSource) {
	s.applyPreferredSource(ctx, source)
}

func (s *Service) applyPreferredSource(ctx context.Context, source core.TokenSource) {
	s.mu.Lock()
	changed := s.state.PreferredSource != source
	if changed {
		s.state.PreferredSource = source
		s.publishLocked()
	}
	s.mu.Unlock()

	if changed {
		s.Refresh(ctx)
	}
}

// SetManualToken stores the pasted token, drops the resolver caches and
// refreshes. The preferred source is left alone; switching to manual is a
// separate, explicit step.
func (s *Service) SetManualToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("manual token is empty")
	}
	if err := s.store.SetManualToken(token); err != nil {
		return err
	}
	s.resolver.Invalidate()
	s.Refresh(ctx)
	return nil
}

// ClearManualToken deletes the manual token. When manual was the active
// source the snapshot is emptied immediately — this is the one path that
// clears state — and credential availability is re-probed before the
// follow-up refresh reports the final outcome.
func (s *Service) ClearManualToken(ctx context.Context) error {
	if err := s.store.DeleteManualToken(); err != nil {
		return err
	}
	s.resolver.Invalidate()

	s.mu.Lock()
	if s.state.ActiveSource == core.SourceManual {
		s.state.Snapshot = core.UsageSnapshot{}
		s.state.LastUpdated = nil
		s.state.ActiveSource = ""
	}
	_, resolveErr := s.resolver.Resolve(s.state.PreferredSource)
	s.state.HasCredential = resolveErr == nil
	s.publishLocked()
	s.mu.Unlock()

	s.Refresh(ctx)
	return nil
}

// publishLocked publishes the current state. Callers hold s.mu, which keeps
// publication order identical to mutation order.
func (s *Service) publishLocked() {
	s.bc.Publish(s.state)
}

func asUsageError(err error) *core.UsageError {
	var ue *core.UsageError
	if errors.As(err, &ue) {
		return ue
	}
	return core.NetworkError(err)
}
