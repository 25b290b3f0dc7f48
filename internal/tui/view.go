package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
	"github.com/marcin-skalski/conflictwatch/internal/host"
)

const defaultLogHeight = 20

func renderView(snap host.Snapshot, logHeight, scrollOffset, width int) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("conflictwatch"))
	b.WriteString(renderStatus(snap.Status))
	b.WriteString("\n")

	if len(snap.Prompts) > 0 {
		b.WriteString(renderPrompt(snap.Prompts[0], len(snap.Prompts)-1, width))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("Log"))
	b.WriteString("\n")
	b.WriteString(renderLog(snap.Lines, logHeight, scrollOffset, width))

	b.WriteString("\n")
	footer := fmt.Sprintf("Last updated: %s │ q:quit r:refresh ↑/↓:scroll",
		snap.Timestamp.Format("15:04:05"))
	if len(snap.Prompts) > 0 {
		footer += " 1-9:choose esc:dismiss"
	}
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

func renderStatus(s conflicts.StatusBarMessage) string {
	if s.Text == "" {
		return emptyStyle.Render(" checking…")
	}
	text := StatusText(s.Text)
	if s.RepoOwner != "" {
		text = s.RepoOwner + "/" + s.RepoName + " " + text
	}
	if s.Background == conflicts.BackgroundError {
		return statusErrorStyle.Render(text)
	}
	return statusStyle.Foreground(statusColor(s.Text)).Render(text)
}

func renderPrompt(p host.Prompt, more, width int) string {
	var b strings.Builder
	b.WriteString(p.Message)
	if len(p.Actions) > 0 {
		b.WriteString("\n")
		for i, a := range p.Actions {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(actionStyle.Render(fmt.Sprintf("[%d] %s", i+1, a)))
		}
	}
	if more > 0 {
		fmt.Fprintf(&b, "\n(+%d more)", more)
	}

	style := promptStyle
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(b.String())
}

func renderLog(lines []string, height, scrollOffset, width int) string {
	if len(lines) == 0 {
		return emptyStyle.Render("  (nothing yet)")
	}

	end := max(len(lines)-scrollOffset, 0)
	start := max(end-height, 0)

	var b strings.Builder
	for _, line := range lines[start:end] {
		if width > 4 && runewidth.StringWidth(line) > width-2 {
			line = runewidth.Truncate(line, width-2, "...")
		}
		style := logStyle
		if strings.Contains(line, "conflict with") {
			style = conflictLogStyle
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, " ", style.Render(line)))
		b.WriteString("\n")
	}
	return b.String()
}

// StatusText renders the status glyph tokens as plain symbols.
func StatusText(text string) string {
	return glyphs.Replace(text)
}
