package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fumbl3b/harryAi/internal/chat"
)

// Conversation is the part of the chat controller the TUI drives.
type Conversation interface {
	Dispatch(text string) error
	Snapshot() chat.Snapshot
	ClearChat()
	OnChange(fn func(chat.Snapshot))
}

// snapshotMsg carries a controller snapshot into the update loop.
type snapshotMsg chat.Snapshot

type errMsg struct {
	err error
}

// Subscribe forwards every controller snapshot to send, normally
// (*tea.Program).Send.
func Subscribe(conv Conversation, send func(tea.Msg)) {
	conv.OnChange(func(s chat.Snapshot) {
		send(snapshotMsg(s))
	})
}

// Model represents the TUI state
type Model struct {
	conv      Conversation
	modelName string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer
	mdWidth  int

	snap  chat.Snapshot
	err   error
	ready bool

	width  int
	height int
}

func New(conv Conversation, modelName string) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	return Model{
		conv:      conv,
		modelName: modelName,
		textarea:  ta,
		spinner:   s,
		snap:      conv.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		inputHeight := 6
		statusHeight := 1
		padding := 2

		vpHeight := max(m.height-headerHeight-inputHeight-statusHeight-padding, 5)
		contentWidth := m.width - 4

		if !m.ready {
			m.viewport = viewport.New(contentWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(contentWidth - 4)
		m.updateViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+l":
			m.err = nil
			return m, m.clear()

		case "enter":
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" || m.snap.State.Busy() {
				return m, nil
			}
			switch input {
			case "exit", "quit", "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.textarea.Reset()
				m.err = nil
				return m, m.clear()
			}

			m.textarea.Reset()
			m.err = nil
			return m, m.dispatch(input)
		}

	case snapshotMsg:
		// Observers run on the turn goroutine; keep only the newest snapshot.
		if msg.Seq <= m.snap.Seq {
			return m, nil
		}
		wasBusy := m.snap.State.Busy()
		m.snap = chat.Snapshot(msg)
		if m.snap.State.Busy() && !wasBusy {
			cmds = append(cmds, m.spinner.Tick)
		}
		m.updateViewport()
		m.viewport.GotoBottom()

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		if m.snap.State.Busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
			m.updateViewport()
		}
	}

	if _, ok := msg.(tea.KeyMsg); ok && !m.snap.State.Busy() {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	contentWidth := m.width - 4
	var sections []string

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("harryAI"),
		hintStyle.Render("  ·  "),
		subtitleStyle.Render(m.modelName),
	)
	sections = append(sections, headerStyle.Width(contentWidth).Render(header))

	var messages string
	if len(m.snap.Messages) == 0 {
		messages = m.renderWelcome()
	} else {
		messages = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messages))

	var input string
	if m.snap.State.Busy() {
		input = m.spinner.View() + typingStyle.Render(" harryAI is replying...")
	} else {
		input = lipgloss.JoinVertical(lipgloss.Left,
			inputLabelStyle.Render("You"),
			m.textarea.View(),
		)
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(input))
	sections = append(sections, m.renderStatusBar(contentWidth))

	if m.err != nil {
		sections = append(sections, errorStyle.Render("✗ "+m.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderWelcome() string {
	width := max(m.viewport.Width-4, 10)
	return welcomeStyle.Width(width).Render("Start a conversation by typing a message below")
}

func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Ctrl+L", "Clear"},
		{"Esc", "Quit"},
	}

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	bar := strings.Join(items, "  │  ")
	if m.snap.Error != "" {
		bar += "  │  " + errorStyle.Render(m.snap.Error)
	}
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(bar)
}

func (m *Model) updateViewport() {
	bubbleWidth := max(m.viewport.Width-6, 10)
	var content strings.Builder

	last := len(m.snap.Messages) - 1
	for i, rec := range m.snap.Messages {
		if i > 0 {
			content.WriteString("\n")
		}

		switch {
		case rec.IsUser:
			content.WriteString(userLabelStyle.Render("You") + "\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(rec.Text))
		case rec.IsError:
			content.WriteString(assistantLabelStyle.Render("harryAI") + "\n")
			content.WriteString(errorBubbleStyle.Width(bubbleWidth).Render(rec.Text))
		case rec.IsTyping:
			content.WriteString(assistantLabelStyle.Render("harryAI") + "\n")
			content.WriteString(m.spinner.View() + typingStyle.Render(" "+rec.Text))
		default:
			text := rec.Text
			// A reply still being revealed is partial markdown; render it raw.
			if i != last || !m.snap.State.Busy() {
				text = m.renderMarkdown(text, bubbleWidth-4)
			}
			content.WriteString(assistantLabelStyle.Render("harryAI") + "\n")
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(text))
		}
	}

	m.viewport.SetContent(content.String())
}

func (m *Model) renderMarkdown(text string, width int) string {
	if m.markdown == nil || m.mdWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return text
		}
		m.markdown = r
		m.mdWidth = width
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// dispatch and clear run as commands: the controller notifies observers
// synchronously, and Program.Send blocks while Update is running.
func (m Model) dispatch(text string) tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		if err := conv.Dispatch(text); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) clear() tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		conv.ClearChat()
		return nil
	}
}
