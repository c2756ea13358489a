package output

import "github.com/charmbracelet/lipgloss"

// Color palette. One accent color; everything else is neutral.
const (
	colorAccent   = "154" // lime
	colorAccentLo = "106"
	colorGray     = "245"
	colorDarkGray = "238"
	colorRed      = "196"
	colorYellow   = "220"
	colorMatch    = "229" // pale yellow for snippet matches
)

// Styles holds the render styles for one Writer.
type Styles struct {
	Header  lipgloss.Style
	Accent  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
	Match   lipgloss.Style

	plain bool
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccentLo)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Match:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorMatch)),
	}
}

// PlainStyles returns pass-through styles for pipes and NO_COLOR.
func PlainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Accent:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Match:   lipgloss.NewStyle(),
		plain:   true,
	}
}

// GetStyles picks the style set for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return DefaultStyles()
}
