package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	AnalyzingBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta).
				Bold(true)

	IdleBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ProBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	PendingTextStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	PageStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	CheckedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	ConfidenceHighStyle = lipgloss.NewStyle().
				Foreground(ColorGreen)

	ConfidenceMediumStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	ConfidenceLowStyle = lipgloss.NewStyle().
				Foreground(ColorGray)

	PossibleBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta)

	ThinkingStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray).
			Italic(true)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)
)

// ConfidenceStyle returns the style for a confidence grade.
func ConfidenceStyle(level string) lipgloss.Style {
	switch level {
	case "high":
		return ConfidenceHighStyle
	case "low":
		return ConfidenceLowStyle
	default:
		return ConfidenceMediumStyle
	}
}
