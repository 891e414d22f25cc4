package service

import (
	"errors"
	"sync"
	"testing"

	"github.com/usagebar/usagebar/internal/core"
)

func TestResolveCachesToken(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc"}
	r := NewTokenResolver(store)

	for i := 0; i < 3; i++ {
		cred, err := r.Resolve(core.SourceClaudeCode)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cred.Token != "sk-ant-oat01-abc" {
			t.Errorf("Resolve() token = %q, want %q", cred.Token, "sk-ant-oat01-abc")
		}
		if cred.Source != core.SourceClaudeCode {
			t.Errorf("Resolve() source = %q, want %q", cred.Source, core.SourceClaudeCode)
		}
	}

	if claude, _ := store.reads(); claude != 1 {
		t.Errorf("store reads = %d, want 1", claude)
	}
}

func TestResolveCachesAbsence(t *testing.T) {
	store := &fakeStore{}
	r := NewTokenResolver(store)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(core.SourceManual)
		var uerr *core.UsageError
		if !errors.As(err, &uerr) || uerr.Kind != core.ErrorNoCredential {
			t.Fatalf("Resolve() error = %v, want kind %q", err, core.ErrorNoCredential)
		}
	}
	if _, manual := store.reads(); manual != 1 {
		t.Errorf("store reads = %d, want 1 (absence should be cached)", manual)
	}

	store.mu.Lock()
	store.manualToken = "sk-ant-oat01-late"
	store.mu.Unlock()

	// Still cached until invalidated.
	if _, err := r.Resolve(core.SourceManual); err == nil {
		t.Fatal("Resolve() after backfill = nil error, want cached absence")
	}

	r.Invalidate()
	cred, err := r.Resolve(core.SourceManual)
	if err != nil {
		t.Fatalf("Resolve() after Invalidate() error = %v", err)
	}
	if cred.Token != "sk-ant-oat01-late" {
		t.Errorf("Resolve() token = %q, want %q", cred.Token, "sk-ant-oat01-late")
	}
}

func TestResolveReadsOnlyRequestedSource(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc", manualToken: "sk-ant-oat01-def"}
	r := NewTokenResolver(store)

	if _, err := r.Resolve(core.SourceManual); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	claude, manual := store.reads()
	if claude != 0 || manual != 1 {
		t.Errorf("reads = (%d, %d), want (0, 1)", claude, manual)
	}
}

func TestResolveKeepsInvalidDataKind(t *testing.T) {
	store := &fakeStore{claudeErr: core.InvalidDataError("credential payload has no access token")}
	r := NewTokenResolver(store)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(core.SourceClaudeCode)
		var uerr *core.UsageError
		if !errors.As(err, &uerr) || uerr.Kind != core.ErrorInvalidData {
			t.Fatalf("Resolve() error = %v, want kind %q", err, core.ErrorInvalidData)
		}
	}
	if claude, _ := store.reads(); claude != 1 {
		t.Errorf("store reads = %d, want 1 (invalid payload should be cached)", claude)
	}
}

func TestInvalidateConcurrentWithResolve(t *testing.T) {
	store := &fakeStore{claudeToken: "sk-ant-oat01-abc", manualToken: "sk-ant-oat01-def"}
	r := NewTokenResolver(store)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Resolve(core.SourceClaudeCode)
				r.Resolve(core.SourceManual)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			r.Invalidate()
		}
	}()
	wg.Wait()

	cred, err := r.Resolve(core.SourceClaudeCode)
	if err != nil || cred.Token != "sk-ant-oat01-abc" {
		t.Errorf("Resolve() after churn = (%q, %v), want token intact", cred.Token, err)
	}
}
