package core

import (
	"fmt"
	"math"
	"time"
)

// FormatReset renders a reset instant relative to now: "resets in 40m",
// "resets in 3h 12m", or the day for anything further out.
func FormatReset(t, now time.Time) string {
	until := t.Sub(now)
	if until <= 0 {
		return "resetting..."
	}
	if until < time.Hour {
		return fmt.Sprintf("resets in %dm", int(math.Ceil(until.Minutes())))
	}
	if until < 24*time.Hour {
		h := int(until.Hours())
		m := int(until.Minutes()) % 60
		return fmt.Sprintf("resets in %dh %dm", h, m)
	}
	return "resets " + t.Local().Format("Mon Jan 2")
}

// FormatAgo renders the age of a snapshot: "just now", "42s ago", "5m ago".
func FormatAgo(t, now time.Time) string {
	age := now.Sub(t)
	switch {
	case age < 5*time.Second:
		return "just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
}
