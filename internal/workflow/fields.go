package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
)

// FieldKind is the kind of stage field being edited.
type FieldKind int

const (
	FieldCompleted FieldKind = iota
	FieldBase
	FieldGross
	FieldApplyCassa
	FieldApplyIVA
)

// Field names an editable stage field. Role is only meaningful for payment
// fields.
type Field struct {
	Kind FieldKind
	Role money.Role
}

// String returns the stored name of the field, e.g. "importoBaseCommittente".
func (f Field) String() string {
	r := string(f.Role)
	switch f.Kind {
	case FieldCompleted:
		return "completed"
	case FieldBase:
		return "importoBase" + r
	case FieldGross:
		return "importo" + r
	case FieldApplyCassa:
		return "applyCassa" + r
	case FieldApplyIVA:
		return "applyIVA" + r
	}
	return fmt.Sprintf("field(%d)", int(f.Kind))
}

func (f Field) payment() bool {
	return f.Kind != FieldCompleted
}

// ParseField parses a stored field name.
func ParseField(name string) (Field, error) {
	if name == "completed" {
		return Field{Kind: FieldCompleted}, nil
	}

	prefixes := []struct {
		prefix string
		kind   FieldKind
	}{
		// importoBase must be tried before importo.
		{"importoBase", FieldBase},
		{"importo", FieldGross},
		{"applyCassa", FieldApplyCassa},
		{"applyIVA", FieldApplyIVA},
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(name, p.prefix)
		if !ok {
			continue
		}
		role := money.Role(rest)
		if !role.Valid() {
			return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if p.kind == FieldApplyIVA && !role.AppliesIVA() {
			return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		return Field{Kind: p.kind, Role: role}, nil
	}
	return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// SetStageField returns a copy of cf with field set on stage. The stage is
// created with its defaults when absent. Payment fields keep the gross
// amount in step with the base through the money engine and maintain the
// payment date: it is set when the base first becomes non-zero and cleared
// when the base returns to zero.
func SetStageField(cf model.CaseFile, stage model.StageID, field Field, value any, now time.Time) (model.CaseFile, error) {
	def, ok := model.LookupStage(stage)
	if !ok {
		return cf, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	if field.payment() && def.Kind != model.KindPayment {
		return cf, fmt.Errorf("%w: %s on activity stage %s", ErrUnknownField, field, stage)
	}

	out := cf.Clone()
	st := ensureStage(&out, stage)

	if field.Kind == FieldCompleted {
		b, ok := value.(bool)
		if !ok {
			return cf, fmt.Errorf("%w: %s wants a bool, got %T", ErrInvalidValue, field, value)
		}
		st.Completed = b
		out.DataUltimaModifica = now
		return out, nil
	}

	amounts := st.Payment.For(field.Role)
	if amounts == nil {
		return cf, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	switch field.Kind {
	case FieldApplyCassa, FieldApplyIVA:
		b, ok := value.(bool)
		if !ok {
			return cf, fmt.Errorf("%w: %s wants a bool, got %T", ErrInvalidValue, field, value)
		}
		if field.Kind == FieldApplyCassa {
			amounts.ApplyCassa = b
		} else {
			amounts.ApplyIVA = b
		}

	case FieldBase:
		d, err := toAmount(value)
		if err != nil {
			return cf, fmt.Errorf("%s: %w", field, err)
		}
		amounts.Base = d

	case FieldGross:
		d, err := toAmount(value)
		if err != nil {
			return cf, fmt.Errorf("%s: %w", field, err)
		}
		base, err := money.NetFromGross(field.Role, d, amounts.ApplyCassa, amounts.ApplyIVA)
		if err != nil {
			return cf, fmt.Errorf("%s: %w", field, err)
		}
		amounts.Base = base
	}

	gross, err := money.GrossFromNet(field.Role, amounts.Base, amounts.ApplyCassa, amounts.ApplyIVA)
	if err != nil {
		return cf, fmt.Errorf("%s: %w", field, err)
	}
	amounts.Gross = gross

	switch {
	case amounts.Base.IsZero():
		amounts.PaidAt = nil
	case amounts.PaidAt == nil:
		t := now
		amounts.PaidAt = &t
	}

	out.DataUltimaModifica = now
	RecomputeTotals(&out)
	return out, nil
}

// toAmount accepts a decimal or user-typed text.
func toAmount(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		if v.IsNegative() {
			return decimal.Zero, money.ErrInvalidAmount
		}
		return v, nil
	case string:
		return money.Parse(v)
	}
	return decimal.Zero, fmt.Errorf("%w: want an amount, got %T", ErrInvalidValue, value)
}

// ensureStage returns the stage entry of cf, creating it when absent.
func ensureStage(cf *model.CaseFile, id model.StageID) *model.WorkflowStage {
	if cf.Workflow == nil {
		cf.Workflow = make(map[model.StageID]*model.WorkflowStage)
	}
	st, ok := cf.Workflow[id]
	if !ok || st == nil {
		st = model.NewStage(id)
		cf.Workflow[id] = st
	}
	return st
}
