package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/usagebar/usagebar/internal/core"
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// StateMsg delivers a fresh service state to the program. The dashboard
// command forwards every broadcast as one of these.
type StateMsg core.State

const (
	minWidth  = 34
	maxWidth  = 72
	barOffset = 22 // label + percent columns around each bar
)

type Model struct {
	state   core.State
	hasData bool
	width   int
	height  int

	spin spinner.Model
	bars map[string]progress.Model

	tokenInput    textinput.Model
	enteringToken bool
	showHelp      bool
	refreshing    bool
	status        string

	// Callbacks into the service, set from the dashboard command.
	onRefresh    func()
	onSetSource  func(core.TokenSource)
	onSetToken   func(string)
	onClearToken func()
}

func NewModel() Model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(colorAccent)

	input := textinput.New()
	input.Placeholder = "sk-ant-oat01-..."
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 256

	return Model{
		spin:       spin,
		bars:       make(map[string]progress.Model),
		tokenInput: input,
	}
}

// SetOnRefresh sets a callback invoked when the user requests a manual refresh.
func (m *Model) SetOnRefresh(fn func()) { m.onRefresh = fn }

// SetOnSetSource sets a callback invoked when the user switches token source.
func (m *Model) SetOnSetSource(fn func(core.TokenSource)) { m.onSetSource = fn }

// SetOnSetToken sets a callback invoked when the user submits a manual token.
func (m *Model) SetOnSetToken(fn func(string)) { m.onSetToken = fn }

// SetOnClearToken sets a callback invoked when the user deletes the manual token.
func (m *Model) SetOnClearToken(fn func()) { m.onClearToken = fn }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for key, bar := range m.bars {
			bar.Width = m.barWidth()
			m.bars[key] = bar
		}
		return m, nil

	case StateMsg:
		return m.applyState(core.State(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		var cmds []tea.Cmd
		for key, bar := range m.bars {
			pm, c := bar.Update(msg)
			m.bars[key] = pm.(progress.Model)
			cmds = append(cmds, c)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) applyState(state core.State) (tea.Model, tea.Cmd) {
	m.state = state
	if !state.Initializing {
		m.hasData = true
	}
	m.refreshing = false
	m.status = ""

	var cmds []tea.Cmd
	for _, b := range state.Snapshot.Buckets {
		bar, ok := m.bars[b.Key]
		if !ok {
			bar = newBar(m.barWidth())
		}
		cmds = append(cmds, bar.SetPercent(b.Ratio))
		m.bars[b.Key] = bar
	}
	return m, tea.Batch(cmds...)
}

func newBar(width int) progress.Model {
	return progress.New(
		progress.WithScaledGradient("#A6E3A1", "#F38BA8"),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.enteringToken {
		return m.handleTokenKey(msg)
	}

	if msg.String() == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "r":
		return m.requestRefresh(), nil

	case "s":
		next := m.state.PreferredSource.Other()
		m.status = "switching to " + string(next)
		m.refreshing = true
		if m.onSetSource != nil {
			m.onSetSource(next)
		}
		return m, nil

	case "t":
		m.enteringToken = true
		m.tokenInput.SetValue("")
		return m, m.tokenInput.Focus()

	case "x":
		m.status = "manual token cleared"
		if m.onClearToken != nil {
			m.onClearToken()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleTokenKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		token := strings.TrimSpace(m.tokenInput.Value())
		m.enteringToken = false
		m.tokenInput.Blur()
		if token == "" {
			m.status = "token entry cancelled"
			return m, nil
		}
		m.status = "token stored"
		m.refreshing = true
		if m.onSetToken != nil {
			m.onSetToken(token)
		}
		return m, nil

	case "esc", "ctrl+c":
		m.enteringToken = false
		m.tokenInput.Blur()
		m.status = "token entry cancelled"
		return m, nil
	}

	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

func (m Model) requestRefresh() Model {
	m.refreshing = true
	m.status = "refreshing..."
	if m.onRefresh != nil {
		m.onRefresh()
	}
	return m
}

// ─── Rendering ──────────────────────────────────────────────────────────────

func (m Model) contentWidth() int {
	w := m.width - 6 // border and padding
	if w < minWidth {
		w = minWidth
	}
	if w > maxWidth {
		w = maxWidth
	}
	return w
}

func (m Model) barWidth() int {
	w := m.contentWidth() - barOffset
	if w < 10 {
		w = 10
	}
	return w
}

func (m Model) View() string {
	if m.width > 0 && (m.width < 30 || m.height < 8) {
		return dimStyle.Render("\n  Terminal too small. Resize to at least 30×8.")
	}
	if m.showHelp {
		return borderStyle.Render(m.renderHelp())
	}

	var b strings.Builder
	b.WriteString(m.renderTitle() + "\n")

	switch {
	case m.enteringToken:
		b.WriteString(m.renderTokenPrompt())
	case m.state.Initializing || !m.hasData:
		b.WriteString(dimStyle.Render("starting up...") + "\n")
	case !m.state.HasCredential:
		b.WriteString(m.renderNoCredential())
	case m.state.Snapshot.IsEmpty():
		b.WriteString(m.renderEmpty())
	default:
		b.WriteString(m.renderBuckets())
	}

	b.WriteString(m.renderFooter())
	return borderStyle.Render(b.String())
}

func (m Model) renderTitle() string {
	cw := m.contentWidth()

	title := titleStyle.Render("usagebar")
	if m.state.Initializing || m.refreshing {
		title += "  " + m.spin.View()
	} else if m.state.LastError != nil && !m.state.Snapshot.IsEmpty() {
		title += "  " + staleStyle.Render("stale")
	}

	right := ""
	if m.state.ActiveSource != "" {
		right = sourceStyle.Render(string(m.state.ActiveSource))
	}
	if m.state.LastUpdated != nil {
		if right != "" {
			right += dimStyle.Render(" • ")
		}
		right += dimStyle.Render(core.FormatAgo(*m.state.LastUpdated, time.Now()))
	}
	if right == "" {
		return title
	}

	gap := cw - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + right
}

func (m Model) renderBuckets() string {
	var b strings.Builder
	now := time.Now()

	for _, bucket := range m.state.Snapshot.Buckets {
		bar, ok := m.bars[bucket.Key]
		if !ok {
			bar = newBar(m.barWidth())
		}
		label := labelStyle.Width(18).Render(bucket.Label)
		pct := lipgloss.NewStyle().
			Foreground(gaugeColor(bucket.Ratio)).
			Bold(true).
			Render(fmt.Sprintf("%3.0f%%", bucket.Percent()))
		b.WriteString(label + bar.View() + " " + pct + "\n")
	}

	var resets []string
	for _, bucket := range m.state.Snapshot.Buckets {
		if bucket.ResetsAt == nil {
			continue
		}
		resets = append(resets, shortKey(bucket.Key)+": "+core.FormatReset(*bucket.ResetsAt, now))
		if len(resets) == 2 {
			break
		}
	}
	if len(resets) > 0 {
		b.WriteString(dimStyle.Render(strings.Join(resets, "  ")) + "\n")
	}

	if m.state.LastError != nil {
		b.WriteString(m.renderErrorLine())
	}
	return b.String()
}

func shortKey(key string) string {
	switch key {
	case "session":
		return "5h"
	case "weekly":
		return "7d"
	default:
		return key
	}
}

func (m Model) renderNoCredential() string {
	var b strings.Builder
	b.WriteString(authStyle.Render("✗ no Claude credential") + "\n")
	b.WriteString(dimStyle.Render("  run \"claude\" and sign in,") + "\n")
	b.WriteString(dimStyle.Render("  or press t to paste a token") + "\n")
	return b.String()
}

func (m Model) renderEmpty() string {
	var b strings.Builder
	b.WriteString(dimStyle.Render("no usage data yet") + "\n")
	if m.state.LastError != nil {
		b.WriteString(m.renderErrorLine())
	}
	return b.String()
}

func (m Model) renderErrorLine() string {
	line := "✗ " + m.state.LastError.Error()
	return errorStyle.Render(ansi.Truncate(line, m.contentWidth(), "…")) + "\n"
}

func (m Model) renderTokenPrompt() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("paste OAuth token") + "\n")
	b.WriteString(m.tokenInput.View() + "\n")
	b.WriteString(helpStyle.Render("enter save · esc cancel") + "\n")
	return b.String()
}

func (m Model) renderFooter() string {
	if m.status != "" {
		return dimStyle.Render(m.status)
	}
	keys := []struct{ key, desc string }{
		{"r", "refresh"},
		{"s", "source"},
		{"t", "token"},
		{"?", "help"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+helpStyle.Render(" "+k.desc))
	}
	return strings.Join(parts, helpStyle.Render(" · "))
}

func (m Model) renderHelp() string {
	rows := []struct{ key, desc string }{
		{"r", "refresh now"},
		{"s", "toggle preferred source (claude-code / manual)"},
		{"t", "paste a manual OAuth token"},
		{"x", "delete the manual token"},
		{"?", "toggle this help"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("usagebar keys") + "\n\n")
	for _, r := range rows {
		b.WriteString(helpKeyStyle.Render(fmt.Sprintf("  %-3s", r.key)) + helpStyle.Render(r.desc) + "\n")
	}
	return b.String()
}
