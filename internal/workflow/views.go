package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
)

// OtherAgency is the group for case files without a known agency.
const OtherAgency = "ALTRO"

// AggregateByAgency groups case files by agency. Every known agency is a key
// of the result even when empty; blank or unknown agencies go to
// OtherAgency. Matching ignores case and surrounding spaces.
func AggregateByAgency(cfs []model.CaseFile, known []string) map[string][]model.CaseFile {
	groups := make(map[string][]model.CaseFile, len(known)+1)
	canonical := make(map[string]string, len(known))
	for _, a := range known {
		groups[a] = []model.CaseFile{}
		canonical[strings.ToLower(strings.TrimSpace(a))] = a
	}
	groups[OtherAgency] = []model.CaseFile{}

	for _, cf := range cfs {
		key, ok := canonical[strings.ToLower(strings.TrimSpace(cf.Agenzia))]
		if !ok || cf.Agenzia == "" {
			key = OtherAgency
		}
		groups[key] = append(groups[key], cf)
	}
	return groups
}

// AgencyOrder is the display order of the AggregateByAgency groups.
func AgencyOrder(known []string) []string {
	order := make([]string, 0, len(known)+1)
	order = append(order, known...)
	return append(order, OtherAgency)
}

// RoleTotals sums base and gross amounts for one role.
type RoleTotals struct {
	Base  decimal.Decimal
	Gross decimal.Decimal
}

// Add returns the sum of t and o.
func (t RoleTotals) Add(o RoleTotals) RoleTotals {
	return RoleTotals{Base: t.Base.Add(o.Base), Gross: t.Gross.Add(o.Gross)}
}

// AmountSummary splits amounts between settled and open case files.
type AmountSummary struct {
	Collected   map[money.Role]RoleTotals
	Outstanding map[money.Role]RoleTotals
}

// IsPaid reports whether the terminal payment stage of cf is marked done.
func IsPaid(cf model.CaseFile) bool {
	st := cf.Stage(model.TerminalPaymentStage)
	return st != nil && st.Completed
}

// SummarizeAmounts sums base and gross per role over every payment stage,
// into Collected for paid case files and Outstanding for the rest.
func SummarizeAmounts(cfs []model.CaseFile) AmountSummary {
	sum := AmountSummary{
		Collected:   make(map[money.Role]RoleTotals, len(money.Roles)),
		Outstanding: make(map[money.Role]RoleTotals, len(money.Roles)),
	}
	for _, r := range money.Roles {
		sum.Collected[r] = RoleTotals{}
		sum.Outstanding[r] = RoleTotals{}
	}

	for _, cf := range cfs {
		bucket := sum.Outstanding
		if IsPaid(cf) {
			bucket = sum.Collected
		}
		for role, t := range stageTotals(cf) {
			bucket[role] = bucket[role].Add(t)
		}
	}
	return sum
}

func stageTotals(cf model.CaseFile) map[money.Role]RoleTotals {
	out := make(map[money.Role]RoleTotals, len(money.Roles))
	for _, def := range model.Stages {
		if def.Kind != model.KindPayment {
			continue
		}
		st := cf.Stage(def.ID)
		if st == nil || st.Payment == nil {
			continue
		}
		for _, role := range money.Roles {
			a := st.Payment.For(role)
			out[role] = out[role].Add(RoleTotals{Base: a.Base, Gross: a.Gross})
		}
	}
	return out
}

// RecomputeTotals refreshes the cached totals from the payment stages: the
// committente gross for ImportoTotale and the base amounts for the other
// two. Flat-fee totals are kept while no stage carries an amount; the first
// stage amount ends the flat-fee path.
func RecomputeTotals(cf *model.CaseFile) {
	totals := stageTotals(*cf)
	if cf.FlatFee {
		if !hasAmounts(totals) {
			return
		}
		cf.FlatFee = false
	}
	cf.ImportoTotale = totals[money.RoleCommittente].Gross
	cf.ImportoCollaboratore = totals[money.RoleCollaboratore].Base
	cf.ImportoFirmatario = totals[money.RoleFirmatario].Base
}

func hasAmounts(totals map[money.Role]RoleTotals) bool {
	for _, t := range totals {
		if !t.Base.IsZero() {
			return true
		}
	}
	return false
}

// SetAPETotal records a flat-fee APE total on cf: the studio and bollettino
// shares are fixed and the collaboratore receives the remainder.
func SetAPETotal(cf model.CaseFile, total decimal.Decimal, now time.Time) (model.CaseFile, money.APESplit, error) {
	split, err := money.SplitAPE(total)
	if err != nil {
		return cf, money.APESplit{}, err
	}
	out := cf.Clone()
	out.ImportoTotale = split.Total
	out.ImportoCollaboratore = split.Collaboratore
	out.ImportoFirmatario = decimal.Zero
	out.FlatFee = true
	out.DataUltimaModifica = now
	return out, split, nil
}

// AgendaItem is an open task with a due date.
type AgendaItem struct {
	CaseFileID string
	Codice     string
	Cliente    string
	Stage      model.StageID
	Task       model.Task
}

// UpcomingTasks lists open tasks due before now+horizon, overdue ones
// included, earliest first. A zero horizon lists every dated task.
func UpcomingTasks(cfs []model.CaseFile, now time.Time, horizon time.Duration) []AgendaItem {
	var items []AgendaItem
	for _, cf := range cfs {
		for _, def := range model.Stages {
			st := cf.Stage(def.ID)
			if st == nil {
				continue
			}
			for _, t := range st.Tasks {
				if t.Completed || t.DueDate == nil {
					continue
				}
				if horizon > 0 && t.DueDate.After(now.Add(horizon)) {
					continue
				}
				items = append(items, AgendaItem{
					CaseFileID: cf.ID,
					Codice:     cf.Codice,
					Cliente:    cf.Cliente,
					Stage:      def.ID,
					Task:       t.Clone(),
				})
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Task.DueDate.Before(*items[j].Task.DueDate)
	})
	return items
}
