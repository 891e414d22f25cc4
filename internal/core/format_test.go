package core

import (
	"testing"
	"time"
)

func TestFormatReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"already past", now.Add(-time.Minute), "resetting..."},
		{"under an hour", now.Add(40*time.Minute + 30*time.Second), "resets in 41m"},
		{"hours away", now.Add(3*time.Hour + 12*time.Minute), "resets in 3h 12m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatReset(tt.at, now); got != tt.want {
				t.Errorf("FormatReset() = %q, want %q", got, tt.want)
			}
		})
	}

	// Far-out resets show the day instead of a countdown.
	far := FormatReset(now.Add(60*time.Hour), now)
	if len(far) == 0 || far == "resetting..." {
		t.Errorf("FormatReset(far) = %q, want a dated form", far)
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"fresh", now.Add(-2 * time.Second), "just now"},
		{"seconds", now.Add(-42 * time.Second), "42s ago"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAgo(tt.at, now); got != tt.want {
				t.Errorf("FormatAgo() = %q, want %q", got, tt.want)
			}
		})
	}
}
