package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/money"
)

// StageID identifies one phase of a case file's workflow.
type StageID string

const (
	StageIncarico      StageID = "incarico"
	StageAcconto1      StageID = "acconto1"
	StageSopralluogo   StageID = "sopralluogo"
	StageRilievo       StageID = "rilievo"
	StageAcconto2      StageID = "acconto2"
	StageRedazione     StageID = "redazione"
	StagePresentazione StageID = "presentazione"
	StageSaldo         StageID = "saldo"
)

// StageKind distinguishes stages that carry payments from plain activity
// stages.
type StageKind int

const (
	KindActivity StageKind = iota
	KindPayment
)

// StageDef describes one entry of the stage catalogue.
type StageDef struct {
	ID    StageID
	Label string
	Kind  StageKind
}

// Stages is the ordered stage catalogue. Workflow keys outside this list
// are tolerated on read but never displayed.
var Stages = []StageDef{
	{StageIncarico, "Incarico", KindActivity},
	{StageAcconto1, "Acconto 1", KindPayment},
	{StageSopralluogo, "Sopralluogo", KindActivity},
	{StageRilievo, "Rilievo", KindActivity},
	{StageAcconto2, "Acconto 2", KindPayment},
	{StageRedazione, "Redazione", KindActivity},
	{StagePresentazione, "Presentazione", KindActivity},
	{StageSaldo, "Saldo", KindPayment},
}

// TerminalPaymentStage is the stage whose payment marks a pratica as paid.
const TerminalPaymentStage = StageSaldo

// LookupStage returns the catalogue entry for id.
func LookupStage(id StageID) (StageDef, bool) {
	for _, s := range Stages {
		if s.ID == id {
			return s, true
		}
	}
	return StageDef{}, false
}

// WorkflowStage is the state of one stage. Payment is non-nil exactly when
// the stage kind is KindPayment.
type WorkflowStage struct {
	ID        StageID
	Completed bool
	Notes     []Note
	Tasks     []Task
	Payment   *PaymentRecord
}

// NewStage returns a stage with its documented defaults.
func NewStage(id StageID) *WorkflowStage {
	st := &WorkflowStage{ID: id}
	if def, ok := LookupStage(id); ok && def.Kind == KindPayment {
		st.Payment = NewPaymentRecord()
	}
	return st
}

// Kind returns the kind of the stage.
func (s *WorkflowStage) Kind() StageKind {
	if s.Payment != nil {
		return KindPayment
	}
	return KindActivity
}

// Clone returns a deep copy of the stage.
func (s WorkflowStage) Clone() WorkflowStage {
	out := s
	if s.Notes != nil {
		out.Notes = make([]Note, len(s.Notes))
		copy(out.Notes, s.Notes)
	}
	if s.Tasks != nil {
		out.Tasks = make([]Task, len(s.Tasks))
		for i, t := range s.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	if s.Payment != nil {
		p := s.Payment.Clone()
		out.Payment = &p
	}
	return out
}

// PayerAmounts holds the amounts for one payer role. Base is authoritative;
// Gross is derived from it through the money engine.
type PayerAmounts struct {
	Base       decimal.Decimal
	Gross      decimal.Decimal
	ApplyCassa bool
	ApplyIVA   bool
	PaidAt     *time.Time
}

// PaymentRecord carries the amounts of a payment-bearing stage.
type PaymentRecord struct {
	Committente   PayerAmounts
	Collaboratore PayerAmounts
	Firmatario    PayerAmounts
}

// NewPaymentRecord returns a record with cassa and IVA enabled.
func NewPaymentRecord() *PaymentRecord {
	return &PaymentRecord{
		Committente:   PayerAmounts{ApplyCassa: true, ApplyIVA: true},
		Collaboratore: PayerAmounts{ApplyCassa: true},
		Firmatario:    PayerAmounts{ApplyCassa: true},
	}
}

// For returns the amounts of role.
func (p *PaymentRecord) For(role money.Role) *PayerAmounts {
	switch role {
	case money.RoleCommittente:
		return &p.Committente
	case money.RoleCollaboratore:
		return &p.Collaboratore
	case money.RoleFirmatario:
		return &p.Firmatario
	}
	return nil
}

// Clone returns a deep copy.
func (p PaymentRecord) Clone() PaymentRecord {
	out := p
	out.Committente.PaidAt = cloneTime(p.Committente.PaidAt)
	out.Collaboratore.PaidAt = cloneTime(p.Collaboratore.PaidAt)
	out.Firmatario.PaidAt = cloneTime(p.Firmatario.PaidAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
