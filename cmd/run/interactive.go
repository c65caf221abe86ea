package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"

	"github.com/wippyai/vmbridge/errors"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type historyEntry struct {
	input  string
	output []string
	err    error
}

type interactiveModel struct {
	err     error
	opts    options
	session *session
	input   textinput.Model
	history []historyEntry
	running bool

	// Loading and execution run on their own goroutines and may outlive
	// the program. pending tracks them; opened is the session to close once
	// they finish.
	send    func(tea.Msg)
	pending sync.WaitGroup
	mu      sync.Mutex
	opened  *session
}

func newInteractiveModel(o options) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "input"
	ti.Prompt = promptStyle.Render("> ")
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{opts: o, input: ti}
}

type loadedMsg struct {
	err     error
	session *session
}

type executedMsg struct {
	entry historyEntry
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

// start runs fn on its own goroutine and delivers its message to the
// program. Messages sent after the program exits are dropped.
func (m *interactiveModel) start(fn func() tea.Msg) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.send(fn())
	}()
}

func (m *interactiveModel) load() tea.Msg {
	s, err := open(context.Background(), m.opts)
	if err == nil {
		m.mu.Lock()
		m.opened = s
		m.mu.Unlock()
	}
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) execute(in string) {
	s := m.session
	m.start(func() tea.Msg {
		out, err := s.execute(context.Background(), in)
		return executedMsg{entry: historyEntry{input: in, output: out, err: err}}
	})
}

// shutdown waits for running commands and closes the session they used.
func (m *interactiveModel) shutdown(ctx context.Context) error {
	m.pending.Wait()
	m.mu.Lock()
	s := m.opened
	m.opened = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.close(ctx)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.session == nil || m.running {
				return m, nil
			}
			in := m.input.Value()
			m.input.SetValue("")
			m.running = true
			m.execute(in)
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session

	case executedMsg:
		m.running = false
		m.history = append(m.history, msg.entry)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
	}
	if m.session == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Stack VM"))
	b.WriteString(" ")
	b.WriteString(m.opts.program)
	b.WriteString("\n\n")

	for _, h := range m.history {
		b.WriteString(promptStyle.Render("> "))
		b.WriteString(h.input)
		b.WriteString("\n")
		if h.err != nil {
			b.WriteString(errorStyle.Render(formatError(h.err)))
			b.WriteString("\n")
			continue
		}
		for _, line := range h.output {
			b.WriteString(resultStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • esc quit"))
	return b.String()
}

func formatError(err error) string {
	if msg, ok := errors.BoundaryMessage(err); ok {
		return "Error: " + msg
	}
	return fmt.Sprintf("Error: %v", err)
}

func runInteractive(o options) error {
	m := newInteractiveModel(o)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.send = p.Send
	m.start(m.load)
	_, err := p.Run()
	return multierr.Append(err, m.shutdown(context.Background()))
}
