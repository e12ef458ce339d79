package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/selab/internal/policy"
)

// Palette
var (
	ColorAccent = lipgloss.Color("#7FB3D5") // headings, active tab
	ColorFrame  = lipgloss.Color("#5D6D7E") // borders, secondary text
	ColorDark   = lipgloss.Color("#1B2631")
	ColorText   = lipgloss.Color("#E5E8E8")
	ColorBad    = lipgloss.Color("#E74C3C")
	ColorGood   = lipgloss.Color("#58D68D")
	ColorWarn   = lipgloss.Color("#F4D03F")
	ColorMuted  = lipgloss.Color("#808B96")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorFrame).
			Padding(0, 1)

	StyleTitle    = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorFrame).Italic(true)

	StyleGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleBad  = lipgloss.NewStyle().Foreground(ColorBad).Bold(true)
	StyleWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	StyleDim  = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorFrame).
			Padding(0, 1).
			Margin(0, 1)

	StyleOverlay = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1).
			Margin(0, 1)

	StyleApp = lipgloss.NewStyle().Margin(0, 1)

	StyleTopBar = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorFrame).
			Padding(0, 1)

	StyleMenuItem = lipgloss.NewStyle().
			Foreground(ColorFrame).
			Padding(0, 1)

	StyleMenuItemActive = lipgloss.NewStyle().
				Foreground(ColorDark).
				Background(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().Foreground(ColorMuted).Faint(true)

	StyleStatusBar = lipgloss.NewStyle().
			Foreground(ColorText).
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(ColorFrame).
			Padding(0, 1)
)

// tableStyles is shared by every list view.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorFrame).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorDark).
		Background(ColorAccent).
		Bold(false)
	return s
}

// severityStyle colours an AVC severity.
func severityStyle(sev policy.Severity) lipgloss.Style {
	switch sev {
	case policy.SeverityHigh:
		return StyleBad
	case policy.SeverityMedium:
		return StyleWarn
	default:
		return StyleDim
	}
}

// modeStyle colours the enforcement mode.
func modeStyle(mode policy.Mode) lipgloss.Style {
	switch mode {
	case policy.ModeEnforcing:
		return StyleGood
	case policy.ModePermissive:
		return StyleWarn
	default:
		return StyleBad
	}
}

// riskStyle colours a risk level.
func riskStyle(level string) lipgloss.Style {
	switch level {
	case "High":
		return StyleBad
	case "Medium":
		return StyleWarn
	default:
		return StyleGood
	}
}
