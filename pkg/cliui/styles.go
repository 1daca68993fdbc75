package cliui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	NameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	IDStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	HeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	PreviewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	tensionLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	tensionMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tensionHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// TensionBar renders a 0-10 tension score as a ten cell bar.
func TensionBar(tension int) string {
	tension = min(max(tension, 0), 10)

	style := tensionLow
	switch {
	case tension >= 7:
		style = tensionHigh
	case tension >= 4:
		style = tensionMid
	}

	return style.Render(strings.Repeat("█", tension)) + DimStyle.Render(strings.Repeat("░", 10-tension))
}

// Preview flattens s onto one line and cuts it to n runes.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
