package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestTaskModelUpdate(t *testing.T) {
	m := NewTaskModel("Cleaning cache", []string{"0_9_0", "https___github_com_Rust-GPU_rust-gpu+86fc4803"})

	updated, _ := m.Update(TaskUpdateMsg{Name: "0_9_0", Status: "removed"})
	m = updated.(TaskModel)
	updated, _ = m.Update(TaskUpdateMsg{Name: "unknown", Status: "removed"})
	m = updated.(TaskModel)

	tasks := m.Tasks()
	if tasks[0].Status != "removed" || tasks[1].Status != "pending" {
		t.Fatalf("unexpected statuses: %+v", tasks)
	}

	view := m.View()
	if !strings.Contains(view, "Cleaning cache") || !strings.Contains(view, "1/2") {
		t.Errorf("unexpected view %q", view)
	}
}

func TestTaskModelDone(t *testing.T) {
	m := NewTaskModel("Cleaning cache", []string{"a"})
	boom := errors.New("boom")

	updated, cmd := m.Update(tasksDoneMsg{err: boom})
	m = updated.(TaskModel)
	if !m.Done() || !errors.Is(m.Err(), boom) {
		t.Fatalf("expected done with error, got done=%v err=%v", m.Done(), m.Err())
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if strings.Contains(m.View(), "0/1") {
		t.Error("finished view should not show the spinner")
	}

	// Frames stop once done.
	if _, cmd := m.Update(frameMsg{}); cmd != nil {
		t.Error("expected no further frames")
	}
}

func TestTaskModelCtrlC(t *testing.T) {
	m := NewTaskModel("x", nil)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !updated.(TaskModel).Done() || cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
}

func TestRunTasks(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("remove failed")
	err := RunTasks(strings.NewReader(""), &out, NewTaskModel("Cleaning cache", []string{"a", "b"}), func(update func(string, string)) error {
		update("a", "removed")
		update("b", "error")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected work error, got %v", err)
	}
	if !strings.Contains(out.String(), "Cleaning cache") {
		t.Errorf("expected title in output, got %q", out.String())
	}
}
