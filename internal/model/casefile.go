package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stato is the lifecycle state of a case file.
type Stato string

const (
	StatoInCorso    Stato = "in_corso"
	StatoCompletata Stato = "completata"
	StatoInAttesa   Stato = "in_attesa"
	StatoAnnullata  Stato = "annullata"
)

// Valid reports whether s is a known state.
func (s Stato) Valid() bool {
	switch s {
	case StatoInCorso, StatoCompletata, StatoInAttesa, StatoAnnullata:
		return true
	}
	return false
}

// Label returns the human-readable name of the state.
func (s Stato) Label() string {
	switch s {
	case StatoInCorso:
		return "In corso"
	case StatoCompletata:
		return "Completata"
	case StatoInAttesa:
		return "In attesa"
	case StatoAnnullata:
		return "Annullata"
	default:
		return string(s)
	}
}

// CaseFile is a pratica: one administrative procedure carried out for a
// client, with its workflow of stages.
type CaseFile struct {
	ID            string
	Codice        string
	Indirizzo     string
	Cliente       string
	Proprieta     string
	Agenzia       string // empty when the pratica did not come through an agency
	Collaboratore string
	Stato         Stato

	Workflow map[StageID]*WorkflowStage

	// Cached totals, refreshed by workflow.RecomputeTotals.
	ImportoTotale        decimal.Decimal
	ImportoCollaboratore decimal.Decimal
	ImportoFirmatario    decimal.Decimal

	// FlatFee marks totals entered through the flat-fee APE path; they stand
	// until an amount is entered on a payment stage.
	FlatFee bool

	DataCreazione      time.Time
	DataUltimaModifica time.Time

	// Extra keeps workflow entries whose key is not in the stage catalogue,
	// so they survive a read-modify-write untouched.
	Extra map[string]any
}

// Stage returns the stage entry for id, or nil when it was never touched.
func (c *CaseFile) Stage(id StageID) *WorkflowStage {
	if c.Workflow == nil {
		return nil
	}
	return c.Workflow[id]
}

// Clone returns a deep copy of the case file.
func (c CaseFile) Clone() CaseFile {
	out := c
	if c.Workflow != nil {
		out.Workflow = make(map[StageID]*WorkflowStage, len(c.Workflow))
		for id, st := range c.Workflow {
			if st == nil {
				continue
			}
			cp := st.Clone()
			out.Workflow[id] = &cp
		}
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
