package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"webrag/internal/graph"
	"webrag/internal/llm"
)

// Model is the Bubble Tea model for the interactive chat session. Every
// submitted question runs the stateful agent workflow on the session thread,
// so each turn sees the previous turns' messages.
type Model struct {
	runner   *graph.Runner
	thread   string
	input    textinput.Model
	viewport viewport.Model
	lines    []string
	summary  string
	status   string
	ready    bool
}

// New creates a new chat model bound to a compiled workflow and thread.
func New(runner *graph.Runner, thread, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		runner:   runner,
		thread:   thread,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Document indexed. Ask away.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + summary
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.transcript())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			question := strings.TrimSpace(m.input.Value())
			if question != "" {
				m = m.ask(question)
				m.input.SetValue("")
				m.viewport.SetContent(m.transcript())
				m.viewport.GotoBottom()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs one workflow invocation on the session thread.
func (m Model) ask(question string) Model {
	m.lines = append(m.lines, youStyle.Render("you: ")+question)

	state := &graph.State{
		Question: question,
		Messages: []llm.Message{{Role: llm.RoleHuman, Content: question}},
	}
	final, err := m.runner.Invoke(context.Background(), state, graph.WithThread(m.thread))
	if err != nil {
		m.status = "Error: " + err.Error()
		return m
	}

	answer := final.Answer
	if answer == "" {
		answer = final.LastMessage().Content
	}
	m.lines = append(m.lines, aiStyle.Render("ai: ")+answer)
	m.status = "Thread " + m.thread
	return m
}

// View renders the TUI layout and current transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("webrag chat")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) transcript() string {
	if len(m.lines) == 0 {
		return "No messages yet."
	}
	return strings.Join(m.lines, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	youStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	aiStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)
