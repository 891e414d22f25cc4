// Package widget renders service state for status bar consumers: waybar on
// Linux, xbar/SwiftBar style plain text on macOS, or raw JSON for anything
// scripted.
package widget

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/usagebar/usagebar/internal/core"
)

const (
	FormatWaybar = "waybar"
	FormatPlain  = "plain"
	FormatJSON   = "json"
)

// Class thresholds follow waybar conventions; the bar's CSS decides what
// warning and critical look like.
const (
	warnRatio = 0.70
	critRatio = 0.90
)

type waybarOutput struct {
	Text       string `json:"text"`
	Tooltip    string `json:"tooltip"`
	Class      string `json:"class"`
	Percentage int    `json:"percentage"`
}

// Render produces one line of widget output for the given state.
func Render(state core.State, format string, now time.Time) (string, error) {
	switch format {
	case FormatWaybar, "":
		return renderWaybar(state, now)
	case FormatPlain:
		return renderPlain(state), nil
	case FormatJSON:
		data, err := json.Marshal(state)
		if err != nil {
			return "", fmt.Errorf("marshaling state: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown widget format %q", format)
	}
}

func renderWaybar(state core.State, now time.Time) (string, error) {
	out := waybarOutput{}

	switch {
	case state.Initializing:
		out.Text = "…"
		out.Class = "initializing"
		out.Tooltip = "usagebar is starting"
	case !state.HasCredential:
		out.Text = "✗"
		out.Class = "disconnected"
		out.Tooltip = "No Claude credential found.\nRun \"claude\" and sign in, or set one with: usagebar token set"
	case state.Snapshot.IsEmpty():
		out.Text = "–"
		out.Tooltip = strings.Join(tooltipFooter(state, now), "\n")
		if out.Tooltip == "" {
			out.Tooltip = "no usage data yet"
		}
	default:
		worst, _ := state.Snapshot.Worst()
		out.Text = fmt.Sprintf("%.0f%%", worst.Percent())
		out.Percentage = int(worst.Percent())
		switch {
		case worst.Ratio >= critRatio:
			out.Class = "critical"
		case worst.Ratio >= warnRatio:
			out.Class = "warning"
		}
		lines := lo.Map(state.Snapshot.Buckets, func(b core.UsageBucket, _ int) string {
			line := fmt.Sprintf("%s: %.0f%%", b.Label, b.Percent())
			if b.ResetsAt != nil {
				line += " · " + core.FormatReset(*b.ResetsAt, now)
			}
			return line
		})
		lines = append(lines, tooltipFooter(state, now)...)
		out.Tooltip = strings.Join(lines, "\n")
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshaling waybar output: %w", err)
	}
	return string(data), nil
}

func tooltipFooter(state core.State, now time.Time) []string {
	var footer []string
	if state.LastUpdated != nil {
		footer = append(footer, "updated "+core.FormatAgo(*state.LastUpdated, now))
	}
	if state.LastError != nil {
		footer = append(footer, "error: "+state.LastError.Message)
	}
	return footer
}

// renderPlain emits the compact single-line form, e.g. "5h:42% 7d:12%".
func renderPlain(state core.State) string {
	if !state.HasCredential {
		return "✗"
	}
	if state.Snapshot.IsEmpty() {
		return "–"
	}
	parts := lo.Map(state.Snapshot.Buckets, func(b core.UsageBucket, _ int) string {
		return fmt.Sprintf("%s:%.0f%%", shortLabel(b.Key), b.Percent())
	})
	return strings.Join(parts, " ")
}

func shortLabel(key string) string {
	switch key {
	case "session":
		return "5h"
	case "weekly":
		return "7d"
	case "oauth_apps":
		return "apps"
	default:
		return key
	}
}
