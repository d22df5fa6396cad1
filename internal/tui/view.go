package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	if !m.ready {
		return titleStyle.Render("stella")
	}

	header := titleStyle.Render("stella") + subtitleStyle.Render(" · market research chat")

	status := hintStyle.Render("enter send · ↑/↓ scroll · ctrl+c quit")
	if m.waiting {
		status = m.spin.View() + thinkingStyle.Render(" thinking...")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

// refreshViewport re-wraps the transcript for the current width and keeps
// the newest turn in view.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	blocks := make([]string, 0, len(m.turns))
	for _, t := range m.turns {
		blocks = append(blocks, m.renderTurn(t))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *Model) renderTurn(t turn) string {
	label := youLabelStyle.Render("You")
	body := userTextStyle
	if t.role == roleAssistant {
		label = stellaLabelStyle.Render("Stella")
		body = answerTextStyle
	}
	return label + "\n" + body.Width(m.contentWidth()).Render(t.text)
}

func (m *Model) contentWidth() int {
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	return w
}
