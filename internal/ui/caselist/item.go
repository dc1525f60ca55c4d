package caselist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
	"github.com/nhle/studio-pratiche/internal/theme"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// AgencyItem is the group header of an agency.
type AgencyItem struct {
	Name  string
	Count int
}

// FilterValue returns the string used for filtering.
func (i AgencyItem) FilterValue() string { return i.Name }

// CaseFileItem wraps a model.CaseFile so it can be used in a bubbles/list.
type CaseFileItem struct {
	CaseFile model.CaseFile
}

// FilterValue returns the string used for filtering.
func (i CaseFileItem) FilterValue() string {
	return i.CaseFile.Codice + " " + i.CaseFile.Cliente + " " + i.CaseFile.Indirizzo
}

// ItemDelegate implements list.ItemDelegate for agency headers and case
// files.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	switch it := item.(type) {
	case AgencyItem:
		fmt.Fprint(w, theme.AgencyHeaderStyle.Render(fmt.Sprintf("%s (%d)", it.Name, it.Count)))
	case CaseFileItem:
		d.renderCaseFile(w, it.CaseFile, index == m.Index())
	}
}

func (d ItemDelegate) renderCaseFile(w io.Writer, cf model.CaseFile, isSelected bool) {
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	stato := theme.StatoStyle(cf.Stato).Render(cf.Stato.Label())

	paid := workflow.IsPaid(cf)
	amount := theme.PaidStyle(paid).Render(money.Format(cf.ImportoTotale))

	progress := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(stageProgress(cf))

	overdue := ""
	if n := overdueTasks(cf, now()); n > 0 {
		overdue = theme.OverdueStyle.Render(fmt.Sprintf(" %d scadut%s", n, plural(n, "o", "i")))
	}

	line := fmt.Sprintf(
		"%s %s %s  %s  %s%s",
		cf.Codice, stato, cf.Cliente, progress, amount, overdue,
	)

	if cf.Stato == model.StatoAnnullata {
		line = theme.DimmedStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// stageProgress renders one mark per catalogue stage: filled when the
// stage is completed.
func stageProgress(cf model.CaseFile) string {
	out := make([]rune, 0, len(model.Stages))
	for _, def := range model.Stages {
		st := cf.Stage(def.ID)
		switch {
		case st != nil && st.Completed:
			out = append(out, '●')
		default:
			out = append(out, '○')
		}
	}
	return string(out)
}

func overdueTasks(cf model.CaseFile, now time.Time) int {
	n := 0
	for _, def := range model.Stages {
		st := cf.Stage(def.ID)
		if st == nil {
			continue
		}
		for _, t := range st.Tasks {
			if t.IsOverdue(now) {
				n++
			}
		}
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
