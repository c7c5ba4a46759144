package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dream-ai/ragbook/internal/rag"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

const answerTimeout = 5 * time.Minute

// Message represents a chat message
type Message struct {
	Role    string
	Content string
	Sources []string
	Err     bool
}

type answerMsg struct {
	answer *rag.Answer
	err    error
}

type docsMsg struct {
	docs []vectorstore.Document
	err  error
}

// Model is the Bubble Tea model for the chat
type Model struct {
	ctx   context.Context
	asker Asker
	docs  Lister
	model string

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	messages []Message
	loading  bool
	ready    bool
	width    int
}

// New creates the chat model
func New(ctx context.Context, asker Asker, docs Lister, model string) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your documents... (Enter to send, Alt+Enter for newline)"
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	return Model{
		ctx:      ctx,
		asker:    asker,
		docs:     docs,
		model:    model,
		input:    ta,
		viewport: viewport.New(0, 0),
		spinner:  sp,
	}
}

// Init starts the cursor blinking
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles key, window and result messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.input.SetWidth(msg.Width)
		_, fh := messagesBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-m.input.Height()-fh-2)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.loading = false
		last := &m.messages[len(m.messages)-1]
		if msg.err != nil {
			last.Content = "Error: " + msg.err.Error()
			last.Err = true
		} else {
			last.Content = msg.answer.Text
			last.Sources = sourceLabels(msg.answer.Sources)
		}
		m.refresh()
		return m, nil

	case docsMsg:
		m.loading = false
		last := &m.messages[len(m.messages)-1]
		if msg.err != nil {
			last.Content = "Error: " + msg.err.Error()
			last.Err = true
		} else {
			last.Content = documentList(msg.docs)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the text in the input box: a slash command or a question.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.loading {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.messages = nil
		m.refresh()
		return m, nil
	case "/docs":
		m.messages = append(m.messages, Message{Role: "system", Content: "Loading documents..."})
		m.loading = true
		m.refresh()
		return m, tea.Batch(m.spinner.Tick, m.listDocs())
	}

	m.messages = append(m.messages,
		Message{Role: "user", Content: text},
		Message{Role: "assistant"},
	)
	m.loading = true
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.ask(text))
}

func (m Model) ask(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, answerTimeout)
		defer cancel()
		answer, err := m.asker.Ask(ctx, query)
		return answerMsg{answer: answer, err: err}
	}
}

func (m Model) listDocs() tea.Cmd {
	return func() tea.Msg {
		docs, err := m.docs.Documents(m.ctx)
		return docsMsg{docs: docs, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// View renders the chat layout
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ragbook") + " " + mutedStyle.Render(fmt.Sprintf("model: %s  /docs /clear /quit", m.model))
	return header + "\n" + messagesBoxStyle.Render(m.viewport.View()) + "\n" + m.input.View()
}
