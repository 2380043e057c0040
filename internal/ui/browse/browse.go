// Package browse is an interactive pager over replayed task flows.
package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zboralski/lktrace/internal/analyze"
	"github.com/zboralski/lktrace/internal/ui/colorize"
)

// Page is one task's rendered calls.
type Page struct {
	Title string
	Lines []string
}

// Pages renders every flow of s with r.
func Pages(r *analyze.Renderer, s *analyze.Session) ([]Page, error) {
	pages := make([]Page, 0, len(s.Flows))
	for _, flow := range s.Flows {
		lines, err := r.FlowLines(flow)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Title: r.FlowTitle(flow), Lines: lines})
	}
	return pages, nil
}

type keyMap struct {
	Next key.Binding
	Prev key.Binding
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Up, k.Down, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Next: key.NewBinding(key.WithKeys("tab", "n", "right"), key.WithHelp("tab", "next task")),
	Prev: key.NewBinding(key.WithKeys("shift+tab", "p", "left"), key.WithHelp("shift+tab", "prev task")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorize.ColorLabel))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorize.ColorComment))
)

// Model is the bubbletea model of the browser.
type Model struct {
	pages []Page
	cur   int
	vp    viewport.Model
	help  help.Model
	ready bool
}

// New returns a browser over pages.
func New(pages []Page) Model {
	return Model{pages: pages, help: help.New()}
}

// Current returns the index of the task on screen.
func (m Model) Current() int { return m.cur }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// chrome is the number of lines around the viewport: title, status, help.
const chrome = 3

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height - chrome
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, h)
			m.ready = true
			m.show(0)
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = h
		}
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Next):
			m.show(m.cur + 1)
			return m, nil
		case key.Matches(msg, keys.Prev):
			m.show(m.cur - 1)
			return m, nil
		}
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// show switches to page i, wrapping around.
func (m *Model) show(i int) {
	if len(m.pages) == 0 {
		m.cur = 0
		return
	}
	m.cur = (i%len(m.pages) + len(m.pages)) % len(m.pages)
	if m.ready {
		m.vp.SetContent(strings.Join(m.pages[m.cur].Lines, "\n"))
		m.vp.GotoTop()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if len(m.pages) == 0 {
		return "no tasks\n" + m.help.View(keys)
	}
	p := m.pages[m.cur]
	status := fmt.Sprintf("task %d/%d  %d calls  %3.f%%",
		m.cur+1, len(m.pages), len(p.Lines), m.vp.ScrollPercent()*100)
	return titleStyle.Render(p.Title) + "\n" +
		m.vp.View() + "\n" +
		statusStyle.Render(status) + "\n" +
		m.help.View(keys)
}

// Run shows pages until the user quits.
func Run(pages []Page, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(New(pages), opts...).Run()
	return err
}
