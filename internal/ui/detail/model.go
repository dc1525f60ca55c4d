package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
	"github.com/nhle/studio-pratiche/internal/theme"
	"github.com/nhle/studio-pratiche/internal/ui/markdown"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Action is an edit requested from the detail view.
type Action int

const (
	ActionToggleStage Action = iota
	ActionEditAmount
	ActionAddNote
	ActionAddTask
	ActionEditItem
	ActionToggleTask
	ActionDeleteItem
	ActionSetDueDate
	ActionRemoveDueDate
	ActionSetStato
)

// ItemKind tells notes and tasks apart in a stage.
type ItemKind int

const (
	ItemNone ItemKind = iota
	ItemNote
	ItemTask
)

// ActionMsg asks the parent to perform an edit on the shown case file.
type ActionMsg struct {
	Action     Action
	CaseFileID string
	Stage      model.StageID
	ItemKind   ItemKind
	ItemID     string
}

// Model is the case file detail view: a header, the stage tabs and the
// content of the selected stage.
type Model struct {
	cf       *model.CaseFile
	status   workflow.WriteStatus
	stageIdx int
	cursor   int
	viewport viewport.Model
	keys     *keys.KeyMap
	now      func() time.Time
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		now:      time.Now,
		width:    width,
		height:   height,
	}
}

// SetClock sets the time source used to flag overdue tasks.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && m.cf != nil {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.NextStage):
			m.moveStage(1)
			return m, nil

		case key.Matches(msg, m.keys.PrevStage):
			m.moveStage(-1)
			return m, nil

		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
			return m, nil

		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
			return m, nil

		case key.Matches(msg, m.keys.ToggleCompleted):
			return m, m.emit(ActionToggleStage, false)

		case key.Matches(msg, m.keys.EditAmount):
			if m.currentKind() == model.KindPayment {
				return m, m.emit(ActionEditAmount, false)
			}

		case key.Matches(msg, m.keys.AddNote):
			return m, m.emit(ActionAddNote, false)

		case key.Matches(msg, m.keys.AddTask):
			return m, m.emit(ActionAddTask, false)

		case key.Matches(msg, m.keys.SetStato):
			return m, m.emit(ActionSetStato, false)

		case key.Matches(msg, m.keys.EditItem):
			return m, m.emit(ActionEditItem, true)

		case key.Matches(msg, m.keys.DeleteItem):
			return m, m.emit(ActionDeleteItem, true)

		case key.Matches(msg, m.keys.ToggleTask):
			if kind, _ := m.selectedItem(); kind == ItemTask {
				return m, m.emit(ActionToggleTask, true)
			}

		case key.Matches(msg, m.keys.DueDate):
			if kind, _ := m.selectedItem(); kind == ItemTask {
				return m, m.emit(ActionSetDueDate, true)
			}

		case key.Matches(msg, m.keys.RemoveDueDate):
			if kind, _ := m.selectedItem(); kind == ItemTask {
				return m, m.emit(ActionRemoveDueDate, true)
			}
		}
	}

	// Delegate to viewport for scrolling (pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// emit builds the ActionMsg for the current stage. When needsItem is set
// and nothing is selected, no message is sent.
func (m Model) emit(a Action, needsItem bool) tea.Cmd {
	kind, id := m.selectedItem()
	if needsItem && kind == ItemNone {
		return nil
	}
	msg := ActionMsg{
		Action:     a,
		CaseFileID: m.cf.ID,
		Stage:      m.CurrentStage(),
		ItemKind:   kind,
		ItemID:     id,
	}
	return func() tea.Msg { return msg }
}

// CurrentStage returns the stage shown.
func (m Model) CurrentStage() model.StageID {
	return model.Stages[m.stageIdx].ID
}

// SelectStage shows stage id.
func (m *Model) SelectStage(id model.StageID) {
	for i, def := range model.Stages {
		if def.ID == id {
			m.stageIdx = i
			m.cursor = 0
			m.refresh()
			return
		}
	}
}

func (m Model) currentKind() model.StageKind {
	return model.Stages[m.stageIdx].Kind
}

func (m *Model) moveStage(delta int) {
	n := len(model.Stages)
	m.stageIdx = (m.stageIdx + delta + n) % n
	m.cursor = 0
	m.refresh()
}

func (m *Model) moveCursor(delta int) {
	n := m.itemCount()
	if n == 0 {
		return
	}
	m.cursor = (m.cursor + delta + n) % n
	m.refresh()
}

func (m Model) stage() *model.WorkflowStage {
	if m.cf == nil {
		return nil
	}
	return m.cf.Stage(m.CurrentStage())
}

func (m Model) itemCount() int {
	st := m.stage()
	if st == nil {
		return 0
	}
	return len(st.Notes) + len(st.Tasks)
}

// selectedItem returns the note or task under the cursor. Notes come
// before tasks.
func (m Model) selectedItem() (ItemKind, string) {
	st := m.stage()
	if st == nil || m.itemCount() == 0 {
		return ItemNone, ""
	}
	if m.cursor < len(st.Notes) {
		return ItemNote, st.Notes[m.cursor].ID
	}
	return ItemTask, st.Tasks[m.cursor-len(st.Notes)].ID
}

// SetCaseFile shows cf. The stage and cursor are kept when the same case
// file is refreshed.
func (m *Model) SetCaseFile(cf model.CaseFile, status workflow.WriteStatus) {
	same := m.cf != nil && m.cf.ID == cf.ID
	m.cf = &cf
	m.status = status
	if !same {
		m.stageIdx = 0
		m.cursor = 0
		m.viewport.GotoTop()
	}
	if n := m.itemCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	m.refresh()
}

// SetStatus updates the write status indicator.
func (m *Model) SetStatus(status workflow.WriteStatus) {
	m.status = status
	m.refresh()
}

// CaseFileID returns the id of the shown case file.
func (m Model) CaseFileID() string {
	if m.cf == nil {
		return ""
	}
	return m.cf.ID
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderContent())
}

// View renders the detail view.
func (m Model) View() string {
	if m.cf == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("Nessuna pratica selezionata")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.cf == nil {
		return ""
	}

	cf := m.cf
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(cf.Codice+"  "+cf.Cliente),
		"  ",
		theme.StatoStyle(cf.Stato).Render(cf.Stato.Label()),
		"  ",
		renderWriteStatus(m.status),
	))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	meta := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%-16s %s", metaStyle.Render(label+":"), valStyle.Render(value)))
	}
	meta("Indirizzo", cf.Indirizzo)
	meta("Proprietà", cf.Proprieta)
	meta("Agenzia", cf.Agenzia)
	meta("Collaboratore", cf.Collaboratore)
	if !cf.DataCreazione.IsZero() {
		meta("Creata", cf.DataCreazione.Local().Format("02/01/2006 15:04"))
	}
	if !cf.DataUltimaModifica.IsZero() {
		meta("Modificata", cf.DataUltimaModifica.Local().Format("02/01/2006 15:04"))
	}
	meta("Totale", money.Format(cf.ImportoTotale))
	meta("Collaboratore €", money.Format(cf.ImportoCollaboratore))
	meta("Firmatario €", money.Format(cf.ImportoFirmatario))

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", m.renderStageTabs(), separator, "")
	sections = append(sections, m.renderStage()...)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStageTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Underline(true)
	done := lipgloss.NewStyle().Foreground(theme.ColorGreen)
	idle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	tabs := make([]string, 0, len(model.Stages))
	for i, def := range model.Stages {
		label := def.Label
		st := m.cf.Stage(def.ID)
		style := idle
		if st != nil && st.Completed {
			label = "✓ " + label
			style = done
		}
		if i == m.stageIdx {
			style = active
		}
		tabs = append(tabs, style.Render(label))
	}
	return strings.Join(tabs, "  ")
}

func (m Model) renderStage() []string {
	def := model.Stages[m.stageIdx]
	st := m.stage()
	if st == nil {
		st = model.NewStage(def.ID)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	muted := lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true)

	completed := "da fare"
	if st.Completed {
		completed = "completata"
	}
	out := []string{headerStyle.Render(def.Label) + "  " + muted.Render(completed)}

	if st.Payment != nil {
		out = append(out, "")
		out = append(out, renderPayment(*st.Payment)...)
	}

	out = append(out, "", headerStyle.Render(fmt.Sprintf("Note (%d)", len(st.Notes))))
	if len(st.Notes) == 0 {
		out = append(out, muted.Render("nessuna nota"))
	}
	for i, n := range st.Notes {
		head := m.marker(i) + lipgloss.NewStyle().Foreground(theme.ColorGray).Render(n.Date.Local().Format("02/01/2006"))
		out = append(out, head, markdown.Render(n.Text, m.width-6))
	}

	out = append(out, "", headerStyle.Render(fmt.Sprintf("Attività (%d)", len(st.Tasks))))
	if len(st.Tasks) == 0 {
		out = append(out, muted.Render("nessuna attività"))
	}
	for i, t := range st.Tasks {
		out = append(out, m.marker(len(st.Notes)+i)+m.renderTask(t))
	}
	return out
}

func (m Model) marker(index int) string {
	if index == m.cursor {
		return lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true).Render("▸ ")
	}
	return "  "
}

func (m Model) renderTask(t model.Task) string {
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}
	state := t.ScheduleState()
	line := fmt.Sprintf("%s %s %s", theme.ScheduleStyle(state).Render(theme.ScheduleMark(state)), check, t.Text)

	if t.DueDate != nil {
		line += " " + theme.DueDateStyle.Render(t.DueDate.Local().Format("02/01 15:04"))
		if t.Priority != "" {
			line += " " + theme.PriorityStyle(t.Priority).Render(string(t.Priority))
		}
		if t.IsOverdue(m.now()) {
			line += theme.OverdueStyle.Render(" SCADUTA")
		}
	}
	if t.Completed {
		line = theme.DimmedStyle.Render(line)
	}
	return line
}

func renderPayment(p model.PaymentRecord) []string {
	head := lipgloss.NewStyle().Foreground(theme.ColorGray)
	out := []string{head.Render(fmt.Sprintf("%-14s %14s %14s  %-12s %s", "", "Imponibile", "Lordo", "Maggiorazioni", "Pagato"))}
	for _, role := range money.Roles {
		a := p.For(role)
		var extras []string
		if a.ApplyCassa {
			extras = append(extras, "cassa")
		}
		if role.AppliesIVA() && a.ApplyIVA {
			extras = append(extras, "IVA")
		}
		paid := "-"
		if a.PaidAt != nil {
			paid = a.PaidAt.Local().Format("02/01/2006")
		}
		line := fmt.Sprintf("%-14s %14s %14s  %-12s %s",
			string(role), money.Format(a.Base), money.Format(a.Gross), strings.Join(extras, "+"), paid)
		out = append(out, theme.PaidStyle(a.PaidAt != nil).Render(line))
	}
	return out
}

func renderWriteStatus(s workflow.WriteStatus) string {
	switch s.State {
	case workflow.WritePending:
		return lipgloss.NewStyle().Foreground(theme.ColorYellow).Render("salvataggio…")
	case workflow.WriteConfirmed:
		return lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("salvato")
	case workflow.WriteFailed:
		msg := "non salvato"
		if s.Err != nil {
			msg += ": " + s.Err.Error()
		}
		return theme.OverdueStyle.Render(msg)
	}
	return ""
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.cf != nil {
		m.refresh()
	}
}
