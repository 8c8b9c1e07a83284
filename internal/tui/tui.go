// Package tui is the interactive "browse" view: a bubbletea list of
// stored secret keys that copies the selected key's value to the
// clipboard on Enter. It never renders a secret's value on screen,
// consistent with spec.md's clipboard-over-display bias for "get".
// Grounded on the teacher's Model/Update/View bubbletea structure
// (internal/tui/tui.go), adapted from Airflow connection/profile
// management to secret-key browsing.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbrt/mb-stash-go/internal/clipboard"
	"github.com/mbrt/mb-stash-go/internal/daemon"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type keyItem string

func (k keyItem) Title() string       { return string(k) }
func (k keyItem) Description() string { return "" }
func (k keyItem) FilterValue() string { return string(k) }

type copiedMsg struct {
	key string
	err error
}

// Model is the browse TUI's bubbletea model.
type Model struct {
	list   list.Model
	client *daemon.Client
	status string
	err    string
	width  int
	height int
}

// NewModel builds a browse Model listing the stash's current keys.
func NewModel(client *daemon.Client, keys []string) Model {
	items := make([]list.Item, len(keys))
	for i, k := range keys {
		items[i] = keyItem(k)
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Stash keys"
	l.SetShowHelp(true)
	return Model{list: l, client: client}
}

// Init satisfies tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update satisfies tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
			m.status = ""
		} else {
			m.status = fmt.Sprintf("Copied %q to clipboard.", msg.key)
			m.err = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(keyItem); ok {
				return m, m.copySelected(string(item))
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View satisfies tea.Model.
func (m Model) View() string {
	s := titleStyle.Render("mb-stash — browse") + "\n"
	s += m.list.View()
	if m.status != "" {
		s += "\n" + statusStyle.Render(m.status)
	}
	if m.err != "" {
		s += "\n" + errorStyle.Render(m.err)
	}
	return s
}

func (m Model) copySelected(key string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(key)
		if err != nil {
			return copiedMsg{key: key, err: err}
		}
		if !resp.Ok {
			return copiedMsg{key: key, err: fmt.Errorf("%s", resp.Message)}
		}
		value, _ := resp.Data["value"].(string)
		if err := clipboard.Copy(value); err != nil {
			return copiedMsg{key: key, err: err}
		}
		_, _ = m.client.ScheduleClipboardClear(value)
		return copiedMsg{key: key}
	}
}
