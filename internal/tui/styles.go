package tui

import "github.com/charmbracelet/lipgloss"

// ─── Color Palette (Catppuccin Mocha) ───────────────────────────────────────

var (
	colorSurface1 = lipgloss.Color("#45475A") // bar tracks
	colorText     = lipgloss.Color("#CDD6F4") // primary text
	colorSubtext  = lipgloss.Color("#A6ADC8") // secondary text
	colorDim      = lipgloss.Color("#585B70") // muted, borders

	colorAccent   = lipgloss.Color("#CBA6F7") // mauve – brand accent
	colorSapphire = lipgloss.Color("#74C7EC") // key hints
	colorGreen    = lipgloss.Color("#A6E3A1") // OK / healthy
	colorYellow   = lipgloss.Color("#F9E2AF") // warning
	colorRed      = lipgloss.Color("#F38BA8") // error / critical
	colorPeach    = lipgloss.Color("#FAB387") // credential issues
	colorLavender = lipgloss.Color("#B4BEFE") // titles

	colorOK   = colorGreen
	colorWarn = colorYellow
	colorCrit = colorRed
)

// ─── Reusable Styles ────────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorSapphire).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	staleStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	authStyle = lipgloss.NewStyle().
			Foreground(colorPeach)

	sourceStyle = lipgloss.NewStyle().
			Foreground(colorLavender).
			Bold(true)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 2)
)

// gaugeColor picks the bar color for a used fraction.
func gaugeColor(ratio float64) lipgloss.Color {
	switch {
	case ratio >= 0.90:
		return colorCrit
	case ratio >= 0.70:
		return colorWarn
	default:
		return colorOK
	}
}
