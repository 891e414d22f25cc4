package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTokenSource(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    TokenSource
		wantErr bool
	}{
		{name: "claude code", raw: "claude-code", want: SourceClaudeCode},
		{name: "manual", raw: "manual", want: SourceManual},
		{name: "mixed case with spaces", raw: "  Manual ", want: SourceManual},
		{name: "unknown", raw: "keychain", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTokenSource(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTokenSource(%q) expected error, got %q", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTokenSource(%q) returned error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseTokenSource(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTokenSourceOther(t *testing.T) {
	if got := SourceClaudeCode.Other(); got != SourceManual {
		t.Errorf("Other() = %q, want %q", got, SourceManual)
	}
	if got := SourceManual.Other(); got != SourceClaudeCode {
		t.Errorf("Other() = %q, want %q", got, SourceClaudeCode)
	}
}

func TestUsageSnapshotWorst(t *testing.T) {
	snap := UsageSnapshot{
		Buckets: []UsageBucket{
			{Key: "session", Ratio: 0.47},
			{Key: "weekly", Ratio: 0.93},
			{Key: "opus", Ratio: 0.12},
		},
		FetchedAt: time.Now(),
	}

	worst, ok := snap.Worst()
	if !ok {
		t.Fatal("Worst() reported no buckets")
	}
	if worst.Key != "weekly" {
		t.Errorf("Worst().Key = %q, want %q", worst.Key, "weekly")
	}
}

func TestUsageSnapshotWorstEmpty(t *testing.T) {
	if _, ok := (UsageSnapshot{}).Worst(); ok {
		t.Error("Worst() on empty snapshot reported a bucket")
	}
}

func TestUsageErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *UsageError
		want string
	}{
		{
			name: "no credential",
			err:  NoCredentialError(SourceManual, nil),
			want: "no_credential: no manual credential available",
		},
		{
			name: "http with status",
			err:  HTTPError(429, "rate limited"),
			want: "http (HTTP 429): rate limited",
		},
		{
			name: "invalid data",
			err:  InvalidDataError("token missing sk-ant- prefix"),
			want: "invalid_data: token missing sk-ant- prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUsageErrorJSONDropsCause(t *testing.T) {
	ue := HTTPError(500, "boom")
	data, err := json.Marshal(ue)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded UsageError
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != ErrorHTTP || decoded.Status != 500 || decoded.Message != "boom" {
		t.Errorf("round trip = %+v, want kind=%s status=500 message=boom", decoded, ErrorHTTP)
	}
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'x'
	}

	ue := HTTPError(502, string(long))
	if len(ue.Message) > 600 {
		t.Errorf("Message length = %d, want truncated", len(ue.Message))
	}
}
