package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcin-skalski/conflictwatch/internal/host"
)

type Provider interface {
	Snapshot() host.Snapshot
	Answer(id int64, choice string) bool
}

type Model struct {
	provider        Provider
	snapshot        host.Snapshot
	refreshInterval time.Duration
	width           int
	height          int
	scrollOffset    int // log lines hidden below the view
}

type tickMsg time.Time

func NewModel(provider Provider, refreshInterval time.Duration) Model {
	return Model{
		provider:        provider,
		snapshot:        provider.Snapshot(),
		refreshInterval: refreshInterval,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.refreshInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.snapshot = m.provider.Snapshot()
		case "esc":
			// dismiss the oldest message
			if p, ok := m.prompt(); ok {
				m.provider.Answer(p.ID, "")
				m.snapshot = m.provider.Snapshot()
			}
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(key[0] - '1')
			if p, ok := m.prompt(); ok && idx < len(p.Actions) {
				m.provider.Answer(p.ID, p.Actions[idx])
				m.snapshot = m.provider.Snapshot()
			}
		case "up", "k":
			m.scrollOffset = min(m.scrollOffset+1, m.maxScroll())
		case "down", "j":
			m.scrollOffset = max(m.scrollOffset-1, 0)
		case "pageup":
			m.scrollOffset = min(m.scrollOffset+10, m.maxScroll())
		case "pagedown":
			m.scrollOffset = max(m.scrollOffset-10, 0)
		case "home", "g":
			m.scrollOffset = m.maxScroll()
		case "end", "G":
			m.scrollOffset = 0
		}

	case tickMsg:
		m.snapshot = m.provider.Snapshot()
		m.scrollOffset = min(m.scrollOffset, m.maxScroll())
		return m, tickCmd(m.refreshInterval)
	}

	return m, nil
}

func (m Model) View() string {
	return renderView(m.snapshot, m.logHeight(), m.scrollOffset, m.width)
}

// prompt is the message the action keys answer.
func (m Model) prompt() (host.Prompt, bool) {
	if len(m.snapshot.Prompts) == 0 {
		return host.Prompt{}, false
	}
	return m.snapshot.Prompts[0], true
}

func (m Model) logHeight() int {
	const chrome = 10
	if m.height <= chrome {
		return defaultLogHeight
	}
	return m.height - chrome - 4*min(len(m.snapshot.Prompts), 1)
}

func (m Model) maxScroll() int {
	return max(0, len(m.snapshot.Lines)-m.logHeight())
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
