package browse

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zboralski/lktrace/internal/analyze"
	"github.com/zboralski/lktrace/internal/trace"
)

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return next.(Model)
}

func press(m Model, k tea.KeyType) Model {
	next, _ := m.Update(tea.KeyMsg{Type: k})
	return next.(Model)
}

func TestTaskSwitching(t *testing.T) {
	pages := []Page{
		{Title: "Task[0x1] ========>", Lines: []string{"[0]: getpid() -> 0x1"}},
		{Title: "Task[0x2] ========>", Lines: []string{"[0]: gettid() -> 0x2"}},
	}
	m := sized(t, New(pages))

	if !strings.Contains(m.View(), "getpid") {
		t.Fatalf("first page not shown:\n%s", m.View())
	}
	m = press(m, tea.KeyTab)
	if m.Current() != 1 || !strings.Contains(m.View(), "gettid") {
		t.Fatalf("tab: current = %d\n%s", m.Current(), m.View())
	}
	m = press(m, tea.KeyTab)
	if m.Current() != 0 {
		t.Errorf("tab should wrap, current = %d", m.Current())
	}
	m = press(m, tea.KeyShiftTab)
	if m.Current() != 1 {
		t.Errorf("shift+tab should wrap back, current = %d", m.Current())
	}
	if !strings.Contains(m.View(), "task 2/2") {
		t.Errorf("status line missing:\n%s", m.View())
	}
}

func TestQuit(t *testing.T) {
	m := sized(t, New(nil))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if !strings.Contains(m.View(), "no tasks") {
		t.Errorf("empty view = %q", m.View())
	}
}

func TestViewBeforeSize(t *testing.T) {
	m := New([]Page{{Title: "x"}})
	if m.View() != "loading..." {
		t.Errorf("view = %q", m.View())
	}
}

func TestPages(t *testing.T) {
	var regs [trace.NumArgs]uint64
	regs[7] = 172 // getpid
	in := trace.NewEntry(regs)
	in.TID = 7
	out := in.Return(7)

	s := analyze.Replay([]*trace.Record{{Event: *in}, {Event: *out}})
	pages, err := Pages(analyze.NewRenderer(nil, analyze.LevelReplay), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	if pages[0].Title != "Task[0x7] ========>" {
		t.Errorf("title = %q", pages[0].Title)
	}
	if len(pages[0].Lines) != 1 || !strings.HasPrefix(pages[0].Lines[0], "[0]: getpid(") {
		t.Errorf("lines = %q", pages[0].Lines)
	}
}
