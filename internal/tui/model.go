package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finsight/internal/service"
)

// AnswerPort is the TUI-facing subset of the answer service.
type AnswerPort interface {
	Ask(ctx context.Context, query, symbolHint string, k int) (service.Answer, error)
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   AnswerPort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	answer    *service.Answer
	status    string
	cursor    int
	ready     bool
	waiting   bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(svc AnswerPort, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a company and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: svc, topK: topK, input: ti, viewport: vp, status: "Ready. Ask a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

type answerMsg struct {
	query  string
	answer service.Answer
	err    error
}

func (m Model) ask(query string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.service.Ask(context.Background(), query, "", m.topK)
		return answerMsg{query: query, answer: ans, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and query boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 1
		totalFooterLines := 1
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			ans := msg.answer
			m.answer = &ans
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = m.answerStatus()
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.waiting = true
				m.status = fmt.Sprintf("Answering %q...", q)
				return m, m.ask(q)
			}
		case "down":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				m.cursor = (m.cursor + 1) % (len(m.answer.Sources) + 1)
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "up":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				n := len(m.answer.Sources) + 1
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer or source.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Finsight")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) answerStatus() string {
	if m.answer == nil {
		return ""
	}
	entity := "unscoped"
	if m.answer.Entity != nil {
		entity = m.answer.Entity.CompanyName
	}
	return fmt.Sprintf("Answered %q  entity=%s  sources=%d  tokens=%d  (up/down to browse sources)",
		m.lastQuery, entity, len(m.answer.Sources), m.answer.TokensUsed)
}

// renderContent shows the answer at cursor 0 and one source per
// further cursor position.
func (m Model) renderContent() string {
	if m.answer == nil {
		return "No answer yet."
	}
	if m.cursor == 0 {
		return m.answer.Text
	}
	src := m.answer.Sources[m.cursor-1]
	title := fmt.Sprintf("Source %d/%d  %s  distance=%.3f",
		m.cursor, len(m.answer.Sources), src.Chunk.Symbol, src.Distance)
	return sourceTitleStyle.Render(title) + "\n\n" + src.Chunk.Text
}

var (
	answerBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
