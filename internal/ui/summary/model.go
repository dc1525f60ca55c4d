package summary

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
	"github.com/nhle/studio-pratiche/internal/theme"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// Model shows collected and outstanding amounts per role.
type Model struct {
	sum    workflow.AmountSummary
	paid   int
	open   int
	width  int
	height int
}

// New creates a summary view.
func New(width, height int) Model {
	return Model{sum: workflow.SummarizeAmounts(nil), width: width, height: height}
}

// SetCaseFiles recomputes the summary over cfs. Cancelled case files are
// left out.
func (m *Model) SetCaseFiles(cfs []model.CaseFile) {
	active := make([]model.CaseFile, 0, len(cfs))
	m.paid, m.open = 0, 0
	for _, cf := range cfs {
		if cf.Stato == model.StatoAnnullata {
			continue
		}
		active = append(active, cf)
		if workflow.IsPaid(cf) {
			m.paid++
		} else {
			m.open++
		}
	}
	m.sum = workflow.SummarizeAmounts(active)
}

// Summary returns the current totals.
func (m Model) Summary() workflow.AmountSummary {
	return m.sum
}

// View renders the summary table.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	head := lipgloss.NewStyle().Foreground(theme.ColorGray)

	row := func(label, a, b, c, d string) string {
		return fmt.Sprintf("%-14s %14s %14s %14s %14s", label, a, b, c, d)
	}

	lines := []string{
		head.Render(row("", "Incassato", "Lordo", "Da incassare", "Lordo")),
	}
	for _, role := range money.Roles {
		c, o := m.sum.Collected[role], m.sum.Outstanding[role]
		lines = append(lines, row(string(role),
			theme.PaidStyle(true).Render(money.Format(c.Base)), money.Format(c.Gross),
			theme.PaidStyle(false).Render(money.Format(o.Base)), money.Format(o.Gross)))
	}
	lines = append(lines, "", fmt.Sprintf("Margine studio incassato: %s", money.Format(margin(m.sum.Collected))))

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Riepilogo importi"),
		theme.DimmedStyle.Render(fmt.Sprintf("%d pratiche saldate, %d aperte", m.paid, m.open)),
		"",
		strings.Join(lines, "\n"),
	)
}

// margin is what the committente paid net of the collaboratore and
// firmatario shares.
func margin(t map[money.Role]workflow.RoleTotals) decimal.Decimal {
	return t[money.RoleCommittente].Base.
		Sub(t[money.RoleCollaboratore].Base).
		Sub(t[money.RoleFirmatario].Base)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
