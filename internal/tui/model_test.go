package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/usagebar/usagebar/internal/core"
)

func testState(ratio float64) core.State {
	fetched := time.Now().Add(-2 * time.Minute)
	return core.State{
		Snapshot: core.UsageSnapshot{
			Buckets: []core.UsageBucket{
				{Key: "session", Label: "Session (5h)", Ratio: ratio},
				{Key: "weekly", Label: "Week (all models)", Ratio: 0.1},
			},
			FetchedAt: fetched,
		},
		LastUpdated:   &fetched,
		ActiveSource:  core.SourceClaudeCode,
		HasCredential: true,
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRequestRefreshInvokesCallback(t *testing.T) {
	m := NewModel()

	refreshCalls := 0
	m.SetOnRefresh(func() {
		refreshCalls++
	})

	updated := m.requestRefresh()
	if !updated.refreshing {
		t.Fatal("refreshing = false, want true")
	}
	if refreshCalls != 1 {
		t.Fatalf("refresh callback calls = %d, want 1", refreshCalls)
	}
}

func TestStateMsgClearsRefreshing(t *testing.T) {
	m := NewModel()
	m.refreshing = true

	updated, _ := m.Update(StateMsg(testState(0.4)))
	if updated.(Model).refreshing {
		t.Fatal("refreshing still true after a state arrived")
	}
}

func TestSourceKeyTogglesPreference(t *testing.T) {
	m := NewModel()
	m.hasData = true
	m.state = testState(0.4)
	m.state.PreferredSource = core.SourceClaudeCode

	var got core.TokenSource
	m.SetOnSetSource(func(src core.TokenSource) { got = src })

	m.Update(keyMsg("s"))
	if got != core.SourceManual {
		t.Fatalf("source callback got %q, want %q", got, core.SourceManual)
	}
}

func TestTokenEntrySubmitsTrimmedValue(t *testing.T) {
	m := NewModel()
	m.hasData = true

	var got string
	m.SetOnSetToken(func(tok string) { got = tok })

	updated, _ := m.Update(keyMsg("t"))
	m = updated.(Model)
	if !m.enteringToken {
		t.Fatal("enteringToken = false after pressing t")
	}

	m.tokenInput.SetValue("  sk-ant-oat01-abc  ")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if m.enteringToken {
		t.Fatal("enteringToken still true after enter")
	}
	if got != "sk-ant-oat01-abc" {
		t.Fatalf("token callback got %q, want trimmed token", got)
	}
}

func TestTokenEntryEscCancels(t *testing.T) {
	m := NewModel()
	m.hasData = true

	called := false
	m.SetOnSetToken(func(string) { called = true })

	updated, _ := m.Update(keyMsg("t"))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)

	if m.enteringToken {
		t.Fatal("enteringToken still true after esc")
	}
	if called {
		t.Fatal("token callback invoked on cancel")
	}
}

func TestClearKeyInvokesCallback(t *testing.T) {
	m := NewModel()
	m.hasData = true
	m.state = testState(0.4)

	cleared := false
	m.SetOnClearToken(func() { cleared = true })

	m.Update(keyMsg("x"))
	if !cleared {
		t.Fatal("clear callback not invoked")
	}
}

func TestViewShowsNoCredentialHint(t *testing.T) {
	m := NewModel()
	m.hasData = true
	m.width = 80
	m.height = 24
	m.state = core.State{HasCredential: false}

	view := m.View()
	if !strings.Contains(view, "no Claude credential") {
		t.Errorf("view missing credential hint:\n%s", view)
	}
}

func TestViewShowsStaleMarkerOnError(t *testing.T) {
	m := NewModel()
	m.hasData = true
	m.width = 80
	m.height = 24
	m.state = testState(0.4)
	m.state.LastError = core.HTTPError(500, "overloaded")

	view := m.View()
	if !strings.Contains(view, "stale") {
		t.Errorf("view missing stale marker:\n%s", view)
	}
}

func TestViewRendersBucketLabels(t *testing.T) {
	m := NewModel()
	m.hasData = true
	m.width = 80
	m.height = 24
	m.state = testState(0.4)

	view := m.View()
	for _, want := range []string{"Session (5h)", "Week (all models)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}
