package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF5555")
	ColorGreen   = lipgloss.Color("#50FA7B")
	ColorYellow  = lipgloss.Color("#F1FA8C")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorBlue    = lipgloss.Color("#6272FF")
	ColorOrange  = lipgloss.Color("#FFB86C")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#FF79C6")
)

// SegmentColors are the timeline colours of the timed stages, in layout order.
var SegmentColors = [4]lipgloss.Color{ColorBlue, ColorGreen, ColorOrange, ColorMagenta}

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ConnectedDotStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	PendingDotStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FailedDotStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	PipelineTypeStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	// Stage and metric states.
	StageIdleStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	StageActiveStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	StageDoneStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StageErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	LiveBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)

// Markdown styles for the answer panel.
var (
	MDHeadingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	MDBoldStyle = lipgloss.NewStyle().
			Bold(true)

	MDItalicStyle = lipgloss.NewStyle().
			Italic(true)

	MDCodeStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	MDLinkStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Underline(true)

	MDQuoteStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)
)

// SegmentStyle returns the block style for timed stage i.
func SegmentStyle(i int) lipgloss.Style {
	if i < 0 || i >= len(SegmentColors) {
		return DimStyle
	}
	return lipgloss.NewStyle().Foreground(SegmentColors[i])
}
