package ui

import "github.com/charmbracelet/lipgloss"

// Color palette used across cpctl's status/branch/merge output.
var (
	ColorAccent = lipgloss.Color("#89b4fa")
	ColorWarn   = lipgloss.Color("#f9e2af")
	ColorPass   = lipgloss.Color("#a6e3a1")
	ColorFail   = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#6c7086")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	MutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	WarnStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
	PassStyle  = lipgloss.NewStyle().Foreground(ColorPass)
	FailStyle  = lipgloss.NewStyle().Foreground(ColorFail)

	BranchCurrentStyle = lipgloss.NewStyle().Foreground(ColorPass).Bold(true)
	BranchOtherStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Styled renders s with style only when color output is appropriate
// for the current stdout; otherwise it returns s unchanged so piped
// or redirected output stays plain text.
func Styled(style lipgloss.Style, s string) string {
	if !ShouldUseColor() {
		return s
	}
	return style.Render(s)
}
