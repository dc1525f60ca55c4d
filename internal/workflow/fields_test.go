package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
)

var now = time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)

func mustField(t *testing.T, name string) Field {
	t.Helper()
	f, err := ParseField(name)
	require.NoError(t, err)
	return f
}

func TestParseField(t *testing.T) {
	tests := []struct {
		name    string
		want    Field
		wantErr bool
	}{
		{"completed", Field{Kind: FieldCompleted}, false},
		{"importoBaseCommittente", Field{Kind: FieldBase, Role: money.RoleCommittente}, false},
		{"importoCollaboratore", Field{Kind: FieldGross, Role: money.RoleCollaboratore}, false},
		{"applyCassaFirmatario", Field{Kind: FieldApplyCassa, Role: money.RoleFirmatario}, false},
		{"applyIVACommittente", Field{Kind: FieldApplyIVA, Role: money.RoleCommittente}, false},
		{"applyIVACollaboratore", Field{}, true},
		{"importoBaseGeometra", Field{}, true},
		{"colore", Field{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseField(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}
}

func TestSetStageField_BaseRecomputesGross(t *testing.T) {
	cf := model.CaseFile{ID: "cf"}

	out, err := SetStageField(cf, model.StageSaldo, mustField(t, "importoBaseCommittente"), "100", now)
	require.NoError(t, err)

	p := out.Stage(model.StageSaldo).Payment
	assert.Equal(t, "128.10", p.Committente.Gross.StringFixed(2))
	require.NotNil(t, p.Committente.PaidAt)
	assert.True(t, now.Equal(*p.Committente.PaidAt))
	assert.True(t, now.Equal(out.DataUltimaModifica))
	assert.Equal(t, "128.10", out.ImportoTotale.StringFixed(2))

	// The input is never mutated.
	assert.Nil(t, cf.Workflow)
}

func TestSetStageField_FlagRecomputesGross(t *testing.T) {
	cf, err := SetStageField(model.CaseFile{}, model.StageAcconto1, mustField(t, "importoBaseCommittente"), decimal.NewFromInt(100), now)
	require.NoError(t, err)

	cf, err = SetStageField(cf, model.StageAcconto1, mustField(t, "applyIVACommittente"), false, now)
	require.NoError(t, err)
	assert.Equal(t, "105.00", cf.Stage(model.StageAcconto1).Payment.Committente.Gross.StringFixed(2))

	cf, err = SetStageField(cf, model.StageAcconto1, mustField(t, "applyCassaCommittente"), false, now)
	require.NoError(t, err)
	assert.Equal(t, "100.00", cf.Stage(model.StageAcconto1).Payment.Committente.Gross.StringFixed(2))
}

func TestSetStageField_GrossEditKeepsPairInStep(t *testing.T) {
	cf, err := SetStageField(model.CaseFile{}, model.StageSaldo, mustField(t, "importoCollaboratore"), "105", now)
	require.NoError(t, err)

	a := cf.Stage(model.StageSaldo).Payment.Collaboratore
	assert.Equal(t, "100.00", a.Base.StringFixed(2))
	want, err := money.GrossFromNet(money.RoleCollaboratore, a.Base, a.ApplyCassa, a.ApplyIVA)
	require.NoError(t, err)
	assert.True(t, want.Equal(a.Gross))
}

func TestSetStageField_ZeroClearsPaymentDate(t *testing.T) {
	field := mustField(t, "importoBaseFirmatario")
	cf, err := SetStageField(model.CaseFile{}, model.StageSaldo, field, "50", now)
	require.NoError(t, err)
	first := *cf.Stage(model.StageSaldo).Payment.Firmatario.PaidAt

	later := now.Add(time.Hour)
	cf, err = SetStageField(cf, model.StageSaldo, field, "60", later)
	require.NoError(t, err)
	assert.True(t, first.Equal(*cf.Stage(model.StageSaldo).Payment.Firmatario.PaidAt))

	cf, err = SetStageField(cf, model.StageSaldo, field, "0", later)
	require.NoError(t, err)
	assert.Nil(t, cf.Stage(model.StageSaldo).Payment.Firmatario.PaidAt)
	assert.True(t, cf.Stage(model.StageSaldo).Payment.Firmatario.Gross.IsZero())
}

func TestSetStageField_Errors(t *testing.T) {
	base := model.CaseFile{ID: "cf"}

	_, err := SetStageField(base, "archivio", Field{Kind: FieldCompleted}, true, now)
	assert.ErrorIs(t, err, ErrUnknownStage)

	_, err = SetStageField(base, model.StageRilievo, mustField(t, "importoBaseCommittente"), "10", now)
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = SetStageField(base, model.StageSaldo, mustField(t, "importoBaseCommittente"), "-10", now)
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	_, err = SetStageField(base, model.StageSaldo, mustField(t, "importoBaseCommittente"), "dieci", now)
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	out, err := SetStageField(base, model.StageSaldo, Field{Kind: FieldCompleted}, "yes", now)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Nil(t, out.Workflow)
}

func TestSetStageField_Completed(t *testing.T) {
	cf, err := SetStageField(model.CaseFile{}, model.StageSopralluogo, Field{Kind: FieldCompleted}, true, now)
	require.NoError(t, err)
	st := cf.Stage(model.StageSopralluogo)
	require.NotNil(t, st)
	assert.True(t, st.Completed)
	assert.Nil(t, st.Payment)
}
