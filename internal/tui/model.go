package tui

import (
	"context"
	"strings"
	"time"

	"stella/internal/domain"
	"stella/internal/router"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const answerTimeout = 60 * time.Second

// chromeHeight is the lines the header, status bar, and prompt take away
// from the transcript viewport.
const chromeHeight = 4

const greeting = `Hi, I'm Stella. Ask me about stocks in plain English:

  report on TSLA
  overview of Microsoft
  latest news on NVDA
  highlights for AAPL, MSFT, GOOG

Follow-ups work too ("tell me more").`

// Assistant answers one query against the session's history window.
type Assistant interface {
	Answer(ctx context.Context, query string, history *router.History) domain.Answer
}

type role int

const (
	roleUser role = iota
	roleAssistant
)

type turn struct {
	role role
	text string
}

// answerMsg delivers the assistant's reply back into the update loop.
type answerMsg struct {
	ans domain.Answer
}

// Model is the chat REPL: a transcript viewport over a single-line prompt,
// one assistant query in flight at a time.
type Model struct {
	assistant Assistant
	history   *router.History

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	turns   []turn
	waiting bool
	width   int
	height  int
	ready   bool
}

func New(asst Assistant) *Model {
	ti := textinput.New()
	ti.Placeholder = `Ask about a stock ("report on TSLA")`
	ti.Prompt = promptStyle.Render("> ")
	ti.CharLimit = 400
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return &Model{
		assistant: asst,
		history:   router.NewHistory(0),
		input:     ti,
		spin:      sp,
		turns:     []turn{{role: roleAssistant, text: greeting}},
	}
}

// SetSize presizes the layout for callers that know the terminal size
// before the program starts (the SSH server's pty).
func (m *Model) SetSize(width, height int) {
	m.resize(width, height)
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m, m.submit()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case answerMsg:
		m.waiting = false
		m.turns = append(m.turns, turn{role: roleAssistant, text: msg.ans.Text})
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// submit sends the prompt's query to the assistant. One query in flight at
// a time; enter does nothing while an answer is pending.
func (m *Model) submit() tea.Cmd {
	if m.waiting {
		return nil
	}
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return nil
	}
	m.input.SetValue("")
	m.turns = append(m.turns, turn{role: roleUser, text: query})
	m.waiting = true
	m.refreshViewport()
	return tea.Batch(m.ask(query), m.spin.Tick)
}

// ask runs the assistant off the update loop and reports back as a message.
func (m *Model) ask(query string) tea.Cmd {
	asst := m.assistant
	hist := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
		defer cancel()
		return answerMsg{ans: asst.Answer(ctx, query, hist)}
	}
}

func (m *Model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width = width
	m.height = height

	vpHeight := height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = width - 4
	m.refreshViewport()
}

// Run starts the chat over the local terminal.
func Run(asst Assistant) error {
	p := tea.NewProgram(New(asst), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
