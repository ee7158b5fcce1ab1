// File path: internal/tui/styles.go
package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	step     lipgloss.Style
	label    lipgloss.Style
	focused  lipgloss.Style
	errline  lipgloss.Style
	status   lipgloss.Style
	statusOK lipgloss.Style
	help     lipgloss.Style
}

// newStyles builds the wizard palette, tinted by the agency's brand color
// when one is configured.
func newStyles(brandColor string) styles {
	accent := lipgloss.Color("63")
	if brandColor != "" {
		accent = lipgloss.Color(brandColor)
	}
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		step:     lipgloss.NewStyle().Faint(true),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		focused:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		errline:  lipgloss.NewStyle().Foreground(lipgloss.Color("204")),
		status:   lipgloss.NewStyle().Faint(true),
		statusOK: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		help:     lipgloss.NewStyle().Faint(true),
	}
}
