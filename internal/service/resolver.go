package service

import (
	"errors"
	"sync"

	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
)

// SecretStore is the credential-store capability the service depends on.
// keyring.Store is the real implementation.
type SecretStore interface {
	ClaudeCodeToken() (string, error)
	ManualToken() (string, error)
	SetManualToken(token string) error
	DeleteManualToken() error
}

// cachedToken caches one resolution outcome per source. loaded distinguishes
// "never asked the store" from "asked and found nothing": absence and parse
// failures are cached too, so a missing secret costs one lookup per cycle,
// not one per refresh.
type cachedToken struct {
	loaded bool
	token  string
	err    error
}

// TokenResolver resolves credentials from the store, one source at a time.
// It never falls back across sources; callers that want a fallback chain
// implement it on top.
type TokenResolver struct {
	mu     sync.Mutex
	store  SecretStore
	claude cachedToken
	manual cachedToken
}

func NewTokenResolver(store SecretStore) *TokenResolver {
	return &TokenResolver{store: store}
}

// Resolve returns a credential for exactly the requested source, reading
// through the cache.
func (r *TokenResolver) Resolve(source core.TokenSource) (core.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.slot(source)
	if !slot.loaded {
		token, err := r.read(source)
		*slot = cachedToken{loaded: true, token: token, err: err}
	}
	if slot.err != nil {
		return core.Credential{}, slot.err
	}
	return core.Credential{Token: slot.token, Source: source}, nil
}

// Invalidate drops both caches so the next Resolve re-reads the store. Safe
// to call while a Resolve is in flight.
func (r *TokenResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claude = cachedToken{}
	r.manual = cachedToken{}
}

func (r *TokenResolver) slot(source core.TokenSource) *cachedToken {
	if source == core.SourceManual {
		return &r.manual
	}
	return &r.claude
}

func (r *TokenResolver) read(source core.TokenSource) (string, error) {
	var token string
	var err error
	switch source {
	case core.SourceManual:
		token, err = r.store.ManualToken()
	default:
		token, err = r.store.ClaudeCodeToken()
	}

	if err != nil {
		var ue *core.UsageError
		if errors.As(err, &ue) && ue.Kind == core.ErrorInvalidData {
			return "", err
		}
		if errors.Is(err, keyring.ErrNotFound) {
			return "", core.NoCredentialError(source, err)
		}
		// Store-level failures (locked keyring and friends) read as "no
		// credential" too; the cause stays on the error chain.
		return "", core.NoCredentialError(source, err)
	}
	if token == "" {
		return "", core.NoCredentialError(source, nil)
	}
	return token, nil
}
