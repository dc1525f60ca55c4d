package caselist

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
	"github.com/nhle/studio-pratiche/internal/theme"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// SelectedCaseFileMsg is sent when a user opens a case file.
type SelectedCaseFileMsg struct {
	ID string
}

// statoFilters is the cycle of the stato filter; the empty value shows all.
var statoFilters = []model.Stato{
	"",
	model.StatoInCorso,
	model.StatoInAttesa,
	model.StatoCompletata,
	model.StatoAnnullata,
}

// Model is the case file list, grouped by agency.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	agencies    []string
	caseFiles   []model.CaseFile
	query       store.Query
	statoIndex  int
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new case file list. agencies are always shown as groups.
func New(k *keys.KeyMap, agencies []string, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Pratiche"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "cerca codice, cliente, indirizzo..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		agencies:    agencies,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetClock sets the time source used to flag overdue tasks.
func (m *Model) SetClock(now func() time.Time) {
	m.list.SetDelegate(ItemDelegate{now: now})
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetCaseFiles replaces the listed case files.
func (m *Model) SetCaseFiles(cfs []model.CaseFile) tea.Cmd {
	m.caseFiles = cfs
	return m.rebuild()
}

// rebuild regroups the filtered case files and keeps the selection on the
// same case file when it is still listed.
func (m *Model) rebuild() tea.Cmd {
	selected, _ := m.SelectedCaseFile()

	var filtered []model.CaseFile
	for _, cf := range m.caseFiles {
		if m.query.Match(cf) {
			filtered = append(filtered, cf)
		}
	}

	groups := workflow.AggregateByAgency(filtered, m.agencies)
	var items []list.Item
	for _, agency := range workflow.AgencyOrder(m.agencies) {
		group := groups[agency]
		if len(group) == 0 && agency == workflow.OtherAgency {
			continue
		}
		items = append(items, AgencyItem{Name: agency, Count: len(group)})
		for _, cf := range group {
			items = append(items, CaseFileItem{CaseFile: cf})
		}
	}

	cmd := m.list.SetItems(items)
	for i, it := range items {
		if ci, ok := it.(CaseFileItem); ok && ci.CaseFile.ID == selected.ID {
			m.list.Select(i)
			break
		}
	}
	return cmd
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query.Search = strings.TrimSpace(m.searchInput.Value())
		return m, m.rebuild()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query.Search = ""
		return m, m.rebuild()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		cf, ok := m.SelectedCaseFile()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedCaseFileMsg{ID: cf.ID}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.CycleStato):
		m.statoIndex = (m.statoIndex + 1) % len(statoFilters)
		m.setStatoFilter(statoFilters[m.statoIndex])
		return m, m.rebuild()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) setStatoFilter(s model.Stato) {
	if s == "" {
		m.query.Stato = nil
		return
	}
	m.query.Stato = &s
}

// SetStatoFilter filters the list by stato; an empty value clears it.
func (m *Model) SetStatoFilter(s model.Stato) tea.Cmd {
	m.statoIndex = 0
	for i, f := range statoFilters {
		if f == s {
			m.statoIndex = i
		}
	}
	m.setStatoFilter(s)
	return m.rebuild()
}

// ClearFilters removes the search and stato filters.
func (m *Model) ClearFilters() tea.Cmd {
	m.query = store.Query{}
	m.statoIndex = 0
	m.searchInput.Reset()
	return m.rebuild()
}

// FilterSummary describes the active filters for the status bar.
func (m Model) FilterSummary() string {
	var parts []string
	if m.query.Stato != nil {
		parts = append(parts, "stato: "+m.query.Stato.Label())
	}
	if m.query.Search != "" {
		parts = append(parts, "cerca: "+m.query.Search)
	}
	return strings.Join(parts, " | ")
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// SelectedCaseFile returns the highlighted case file, if any.
func (m Model) SelectedCaseFile() (model.CaseFile, bool) {
	it, ok := m.list.SelectedItem().(CaseFileItem)
	if !ok {
		return model.CaseFile{}, false
	}
	return it.CaseFile, true
}

// View renders the list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.caseFiles) == 0 || len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when nothing is listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if len(m.caseFiles) > 0 {
		return style.Render("Nessuna pratica corrisponde ai filtri.\nPremi : e scrivi 'clear'.")
	}

	return style.Render("Nessuna pratica.\n\nPremi n per crearne una.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
