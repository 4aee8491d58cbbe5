package tui

import (
	"io"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmKeys struct {
	Yes key.Binding
}

var defaultConfirmKeys = confirmKeys{
	Yes: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "approve")),
}

// ConfirmModel asks a single yes/no question. Only y approves; any other key
// is a refusal.
type ConfirmModel struct {
	prompt   string
	keys     confirmKeys
	answered bool
	approved bool
	answer   string
}

// NewConfirmModel builds a prompt for message.
func NewConfirmModel(message string) ConfirmModel {
	return ConfirmModel{prompt: message, keys: defaultConfirmKeys}
}

func (m ConfirmModel) Init() tea.Cmd { return nil }

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.answered {
		return m, nil
	}
	m.answered = true
	if keyMsg.Type == tea.KeyRunes {
		m.answer = string(keyMsg.Runes)
	}
	if key.Matches(keyMsg, m.keys.Yes) {
		m.approved = true
	}
	return m, tea.Quit
}

func (m ConfirmModel) View() string {
	view := Prefix + promptStyle.Render(m.prompt) + " [y/n]: "
	if m.answered {
		status := "denied"
		if m.approved {
			status = "approved"
		}
		if m.answer != "" {
			view += m.answer + " "
		}
		view += StatusStyle(status).Render(status) + "\n"
	}
	return view
}

// Approved reports whether the user answered yes.
func (m ConfirmModel) Approved() bool { return m.approved }

// Answered reports whether any key was pressed.
func (m ConfirmModel) Answered() bool { return m.answered }

// Confirm runs the prompt on in/out and reports whether the user approved.
func Confirm(in io.Reader, out io.Writer, message string) (bool, error) {
	p := tea.NewProgram(NewConfirmModel(message), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(ConfirmModel)
	return ok && m.Approved(), nil
}
