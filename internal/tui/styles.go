package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
)

var (
	colorOK       = lipgloss.Color("46")  // green
	colorWarning  = lipgloss.Color("214") // orange
	colorError    = lipgloss.Color("196") // red
	colorConflict = lipgloss.Color("220") // yellow

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	statusStyle = lipgloss.NewStyle().
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	statusErrorStyle = statusStyle.
				Foreground(lipgloss.Color("231")).
				Background(colorError)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1).
			MarginBottom(0)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWarning).
			PaddingLeft(1).
			PaddingRight(1)

	actionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	conflictLogStyle = lipgloss.NewStyle().
				Foreground(colorConflict)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

var glyphs = strings.NewReplacer(
	conflicts.GlyphCheck, "✔",
	conflicts.GlyphWarning, "⚠",
	conflicts.GlyphError, "✖",
)

// statusColor picks the foreground for a status text without background.
func statusColor(text string) lipgloss.Color {
	switch {
	case strings.Contains(text, conflicts.GlyphError):
		return colorError
	case strings.Contains(text, conflicts.GlyphWarning):
		return colorWarning
	default:
		return colorOK
	}
}
