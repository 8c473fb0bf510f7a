// Command chat is a terminal client for the medrag query API. It keeps the
// session id across questions so follow-ups carry conversation context.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	serverURL := flag.String("server", envOr("MEDRAG_SERVER", "http://localhost:8090"), "medrag server base URL")
	apiKey := flag.String("api-key", os.Getenv("MEDRAG_API_KEY"), "API key, if the server requires one")
	flag.Parse()

	client := newClient(*serverURL, *apiKey)
	p := tea.NewProgram(newModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type exchange struct {
	query   string
	answer  string
	sources []source
}

type answerMsg struct {
	query string
	resp  *queryResponse
	err   error
}

type model struct {
	client   *client
	input    textinput.Model
	viewport viewport.Model

	exchanges []exchange
	sessionID string
	status    string
	waiting   bool
	ready     bool
}

func newModel(c *client) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the indexed literature"
	ti.Focus()
	ti.CharLimit = 0
	return model{
		client:   c,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Connected. Type a question and press Enter.",
	}
}

func (m model) Init() tea.Cmd { return textinput.Blink }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		vh := msg.Height - fh - qh - 3
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.waiting {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			m.input.Reset()
			m.waiting = true
			m.status = "Thinking..."
			return m, m.ask(q)
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.resp.SessionID
		m.exchanges = append(m.exchanges, exchange{
			query:   msg.query,
			answer:  msg.resp.Answer,
			sources: msg.resp.Sources,
		})
		m.status = fmt.Sprintf("Session %s", m.sessionID)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) ask(query string) tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		resp, err := m.client.Query(query, sessionID)
		return answerMsg{query: query, resp: resp, err: err}
	}
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("medrag chat")
	body := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m model) renderTranscript() string {
	if len(m.exchanges) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(queryStyle.Render("You: "+ex.query) + "\n\n")
		b.WriteString(ex.answer)
		if len(ex.sources) > 0 {
			b.WriteString("\n\n" + sourceStyle.Render("Sources:"))
			for _, src := range ex.sources {
				line := "\n  - " + src.Text
				if src.URL != "" {
					line += " (" + src.URL + ")"
				}
				b.WriteString(sourceStyle.Render(line))
			}
		}
	}
	return b.String()
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	queryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
