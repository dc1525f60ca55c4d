package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay: key bindings, the stage sequence and the
// meaning of the calendar markers shown next to tasks.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Scorciatoie da tastiera"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Fasi"),
		stageLegend(),
		"",
		titleStyle.Render("Calendario"),
		scheduleLegend(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func stageLegend() string {
	names := make([]string, 0, len(model.Stages))
	for _, s := range model.Stages {
		label := s.Label
		if s.Kind == model.KindPayment {
			label += " €"
		}
		names = append(names, label)
	}
	return theme.HelpStyle.Render(strings.Join(names, " → "))
}

func scheduleLegend() string {
	rows := []struct {
		state model.ScheduleState
		mark  string
		text  string
	}{
		{model.Scheduled, theme.ScheduleMark(model.Scheduled), "evento presente nel calendario"},
		{model.Dangling, theme.ScheduleMark(model.Dangling), "calendario non allineato: reimposta la scadenza"},
		{model.Unscheduled, theme.ScheduleMark(model.Unscheduled), "nessuna scadenza"},
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, theme.ScheduleStyle(r.state).Render(r.mark)+"  "+r.text)
	}
	return strings.Join(lines, "\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
