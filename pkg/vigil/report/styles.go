package report

import "github.com/charmbracelet/lipgloss"

// Colors from the ANSI 256-color palette.
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

// Box styles.
var (
	// HeaderBox holds the root, manifest and timing summary.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox holds the totals.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)
)

// Text styles.
var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	LabelStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle    = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	PathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SizeStyle     = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	DigestStyle   = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	SectionHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorMuted)
)
