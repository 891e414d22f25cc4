package anthropic

import (
	"time"

	"github.com/samber/lo"

	"github.com/usagebar/usagebar/internal/core"
)

// UsageResponse mirrors the endpoint's JSON. Every window is optional; the
// per-model windows only appear for accounts that have touched those models.
type UsageResponse struct {
	FiveHour          *UsageWindow `json:"five_hour"`
	SevenDay          *UsageWindow `json:"seven_day"`
	SevenDayOAuthApps *UsageWindow `json:"seven_day_oauth_apps"`
	SevenDayOpus      *UsageWindow `json:"seven_day_opus"`
	SevenDaySonnet    *UsageWindow `json:"seven_day_sonnet"`
}

type UsageWindow struct {
	Utilization float64 `json:"utilization"` // 0–100
	ResetsAt    *string `json:"resets_at"`
}

type bucketSpec struct {
	key    string
	label  string
	window *UsageWindow

	// alwaysShow keeps the session and weekly buckets visible at 0%; the
	// per-model windows are dropped when they carry no signal.
	alwaysShow bool
}

// Snapshot maps the wire payload into display buckets in their fixed order:
// session, weekly, then the per-model windows.
func (r *UsageResponse) Snapshot(now time.Time) core.UsageSnapshot {
	specs := []bucketSpec{
		{key: "session", label: "Session (5h)", window: r.FiveHour, alwaysShow: true},
		{key: "weekly", label: "Week (all models)", window: r.SevenDay, alwaysShow: true},
		{key: "oauth_apps", label: "Week (OAuth apps)", window: r.SevenDayOAuthApps},
		{key: "opus", label: "Week (Opus)", window: r.SevenDayOpus},
		{key: "sonnet", label: "Week (Sonnet)", window: r.SevenDaySonnet},
	}

	buckets := lo.FilterMap(specs, func(s bucketSpec, _ int) (core.UsageBucket, bool) {
		if s.window == nil {
			return core.UsageBucket{}, false
		}
		resetsAt := parseResetsAt(s.window.ResetsAt)
		if !s.alwaysShow && s.window.Utilization <= 0 && resetsAt == nil {
			return core.UsageBucket{}, false
		}
		return core.UsageBucket{
			Key:      s.key,
			Label:    s.label,
			Ratio:    clampRatio(s.window.Utilization / 100),
			ResetsAt: resetsAt,
		}, true
	})

	return core.UsageSnapshot{Buckets: buckets, FetchedAt: now}
}

// parseResetsAt accepts RFC 3339 with or without fractional seconds. A
// malformed value degrades to "reset unknown" instead of failing the fetch.
func parseResetsAt(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil
	}
	return &t
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
