package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const frameInterval = 120 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Task is one line of a TaskModel.
type Task struct {
	Name   string
	Status string
	Detail string
}

// TaskUpdateMsg changes the status of the named task.
type TaskUpdateMsg struct {
	Name   string
	Status string
}

type frameMsg time.Time

type tasksDoneMsg struct{ err error }

// TaskModel shows a list of tasks with live statuses while work runs in
// the background.
type TaskModel struct {
	title string
	tasks []Task
	index map[string]int
	width int
	frame int
	done  bool
	err   error
}

// NewTaskModel starts every task as pending.
func NewTaskModel(title string, names []string) TaskModel {
	m := TaskModel{title: title, index: make(map[string]int, len(names))}
	for i, name := range names {
		m.index[name] = i
		m.tasks = append(m.tasks, Task{Name: name, Status: "pending"})
		m.width = max(m.width, len(name))
	}
	return m
}

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m TaskModel) Init() tea.Cmd { return nextFrame() }

func (m TaskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, nextFrame()
	case TaskUpdateMsg:
		if i, ok := m.index[msg.Name]; ok {
			m.tasks[i].Status = msg.Status
		}
		return m, nil
	case tasksDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m TaskModel) View() string {
	var b strings.Builder
	b.WriteString(Prefix + messageStyle.Render(m.title) + "\n")
	for _, t := range m.tasks {
		fmt.Fprintf(&b, "  %-*s  %s", m.width, t.Name, StatusStyle(t.Status).Render(t.Status))
		if t.Detail != "" {
			b.WriteString("  " + t.Detail)
		}
		b.WriteByte('\n')
	}
	if !m.done {
		finished, total := m.progress()
		fmt.Fprintf(&b, "%s %d/%d\n", spinnerFrames[m.frame%len(spinnerFrames)], finished, total)
	}
	return b.String()
}

func (m TaskModel) progress() (int, int) {
	finished := 0
	for _, t := range m.tasks {
		if t.Status != "pending" {
			finished++
		}
	}
	return finished, len(m.tasks)
}

// Tasks returns a copy of the current task list.
func (m TaskModel) Tasks() []Task { return append([]Task(nil), m.tasks...) }

// Done reports whether the work has finished.
func (m TaskModel) Done() bool { return m.done }

// Err is the error the work finished with.
func (m TaskModel) Err() error { return m.err }

// RunTasks renders m on out while work runs. work reports progress through
// update and its error is returned once the display has finished.
func RunTasks(in io.Reader, out io.Writer, m TaskModel, work func(update func(name, status string)) error) error {
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))
	go func() {
		err := work(func(name, status string) {
			p.Send(TaskUpdateMsg{Name: name, Status: status})
		})
		p.Send(tasksDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(TaskModel); ok {
		return fm.Err()
	}
	return nil
}
