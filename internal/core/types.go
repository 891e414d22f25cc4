package core

import (
	"fmt"
	"strings"
	"time"
)

// TokenSource identifies where a credential came from. Exactly two sources
// exist: the OAuth credentials the Claude Code CLI maintains in the OS
// keyring, and a token the user pasted into usagebar.
type TokenSource string

const (
	SourceClaudeCode TokenSource = "claude-code"
	SourceManual     TokenSource = "manual"
)

func ParseTokenSource(raw string) (TokenSource, error) {
	switch TokenSource(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceClaudeCode:
		return SourceClaudeCode, nil
	case SourceManual:
		return SourceManual, nil
	}
	return "", fmt.Errorf("unknown token source %q (want %q or %q)", raw, SourceClaudeCode, SourceManual)
}

// Other returns the remaining source. Used by read-only consumers that walk
// a fallback chain; the service itself never falls back.
func (s TokenSource) Other() TokenSource {
	if s == SourceManual {
		return SourceClaudeCode
	}
	return SourceManual
}

// Credential is an opaque secret plus the source it was read from. Immutable
// once resolved; a new value is produced on every re-resolution.
type Credential struct {
	Token  string
	Source TokenSource
}

// UsageBucket is one rate-limit window in display form. Ratio is utilization
// in [0, 1]; ResetsAt is nil when the endpoint did not report a reset time.
type UsageBucket struct {
	Key      string     `json:"key"`   // "session", "weekly", "opus", ...
	Label    string     `json:"label"` // "Session (5h)"
	Ratio    float64    `json:"ratio"`
	ResetsAt *time.Time `json:"resets_at,omitempty"`
}

func (b UsageBucket) Percent() float64 { return b.Ratio * 100 }

// UsageSnapshot is the full ordered bucket set produced by one successful
// fetch: session, weekly aggregate, then the optional per-model windows.
type UsageSnapshot struct {
	Buckets   []UsageBucket `json:"buckets"`
	FetchedAt time.Time     `json:"fetched_at"`
}

func (s UsageSnapshot) IsEmpty() bool { return len(s.Buckets) == 0 }

// Worst returns the bucket with the highest utilization.
func (s UsageSnapshot) Worst() (UsageBucket, bool) {
	if len(s.Buckets) == 0 {
		return UsageBucket{}, false
	}
	worst := s.Buckets[0]
	for _, b := range s.Buckets[1:] {
		if b.Ratio > worst.Ratio {
			worst = b
		}
	}
	return worst, true
}

// State is the single source of truth every surface renders from. Values are
// immutable snapshots; only the service's writer produces new ones.
type State struct {
	Initializing    bool          `json:"initializing"`
	Snapshot        UsageSnapshot `json:"snapshot"`
	LastUpdated     *time.Time    `json:"last_updated,omitempty"`
	LastError       *UsageError   `json:"last_error,omitempty"`
	ActiveSource    TokenSource   `json:"active_source,omitempty"`
	HasCredential   bool          `json:"has_credential"`
	PreferredSource TokenSource   `json:"preferred_source"`
}
