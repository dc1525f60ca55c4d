package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/theme"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// DefaultHorizon is how far ahead the agenda looks.
const DefaultHorizon = 14 * 24 * time.Hour

// OpenMsg asks the parent to open the case file of the selected task.
type OpenMsg struct {
	CaseFileID string
	Stage      model.StageID
}

// Model lists the open tasks with a due date across all case files.
type Model struct {
	items   []workflow.AgendaItem
	cursor  int
	offset  int
	horizon time.Duration
	keys    *keys.KeyMap
	now     func() time.Time
	width   int
	height  int
}

// New creates an agenda view.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{
		horizon: DefaultHorizon,
		keys:    k,
		now:     time.Now,
		width:   width,
		height:  height,
	}
}

// SetClock sets the time source.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// SetCaseFiles rebuilds the agenda from cfs.
func (m *Model) SetCaseFiles(cfs []model.CaseFile) {
	m.items = workflow.UpcomingTasks(cfs, m.now(), m.horizon)
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
	m.clampOffset()
}

// Items returns the listed tasks.
func (m Model) Items() []workflow.AgendaItem {
	return m.items
}

// Update handles messages for the agenda view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || len(m.items) == 0 {
		return m, nil
	}
	switch {
	case key.Matches(kmsg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(kmsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(kmsg, m.keys.Select):
		it := m.items[m.cursor]
		return m, func() tea.Msg { return OpenMsg{CaseFileID: it.CaseFileID, Stage: it.Stage} }
	}
	m.clampOffset()
	return m, nil
}

func (m *Model) visible() int {
	return max(m.height-4, 1)
}

func (m *Model) clampOffset() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.visible() {
		m.offset = m.cursor - m.visible() + 1
	}
}

// View renders the agenda.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	title := titleStyle.Render(fmt.Sprintf("Agenda (%d giorni)", int(m.horizon.Hours()/24)))

	if len(m.items) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, theme.DimmedStyle.Render("Nessuna attività in scadenza"))
	}

	now := m.now()
	var lines []string
	end := min(m.offset+m.visible(), len(m.items))
	for i := m.offset; i < end; i++ {
		it := m.items[i]
		due := it.Task.DueDate.Local().Format("Mon 02/01 15:04")
		dueStyle := theme.DueDateStyle
		if it.Task.IsOverdue(now) {
			dueStyle = theme.OverdueStyle
		}
		state := it.Task.ScheduleState()
		line := fmt.Sprintf("%s %s  %-10s %-20s %s",
			theme.ScheduleStyle(state).Render(theme.ScheduleMark(state)),
			dueStyle.Render(due),
			it.Codice,
			truncate(it.Cliente, 20),
			it.Task.Text,
		)
		if it.Task.Priority != "" {
			line += " " + theme.PriorityStyle(it.Task.Priority).Render(string(it.Task.Priority))
		}
		if i == m.cursor {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.clampOffset()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
