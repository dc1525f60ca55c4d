package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCaseFile_ThroughJSON(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	saldo := NewStage(StageSaldo)
	saldo.Payment.Committente.Base = decimal.RequireFromString("100")
	saldo.Payment.Committente.Gross = decimal.RequireFromString("128.1")
	saldo.Payment.Committente.PaidAt = &created
	saldo.Notes = []Note{{ID: "n1", Text: "bonifico ricevuto", Date: created}}
	saldo.Tasks = []Task{{
		ID: "t1", Text: "emettere fattura", CreatedDate: created,
		DueDate: &due, Priority: PriorityHigh, Reminder: 60,
		GoogleCalendarEventID: "evt-1", SourceCalendarID: "primary",
	}}

	cf := CaseFile{
		Codice:        "2025-001",
		Cliente:       "Rossi",
		Agenzia:       "Tecnocasa",
		Stato:         StatoInCorso,
		Workflow:      map[StageID]*WorkflowStage{StageSaldo: saldo},
		DataCreazione: created,
		FlatFee:       true,
		Extra:         map[string]any{"vecchio": map[string]any{"completed": true}},
	}

	// Persist the way the SQLite store does: as JSON text.
	raw, err := json.Marshal(EncodeCaseFile(cf))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	got, err := DecodeCaseFile("abc", doc)
	require.NoError(t, err)

	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, "Tecnocasa", got.Agenzia)
	assert.True(t, got.FlatFee)
	assert.True(t, created.Equal(got.DataCreazione))
	assert.Contains(t, got.Extra, "vecchio")
	assert.NotContains(t, got.Workflow, StageID("vecchio"))

	st := got.Stage(StageSaldo)
	require.NotNil(t, st)
	require.NotNil(t, st.Payment)
	assert.Equal(t, "128.10", st.Payment.Committente.Gross.StringFixed(2))
	assert.NotNil(t, st.Payment.Committente.PaidAt)
	assert.True(t, st.Payment.Collaboratore.ApplyCassa)

	require.Len(t, st.Tasks, 1)
	task := st.Tasks[0]
	assert.Equal(t, "evt-1", task.GoogleCalendarEventID)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, 60, task.Reminder)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))
	assert.Nil(t, task.CompletedDate)
}

func TestDecodeStage_LegacyDefaults(t *testing.T) {
	st, err := DecodeStage(StageAcconto1, map[string]any{
		"notes": []any{map[string]any{"text": "senza id"}},
		"tasks": []any{map[string]any{"text": "chiamare", "completed": true}},
	})
	require.NoError(t, err)

	assert.Equal(t, "acconto1-note-0", st.Notes[0].ID)
	assert.Equal(t, "acconto1-task-0", st.Tasks[0].ID)
	assert.True(t, st.Tasks[0].Completed)

	// Flags default to true when the stored stage predates them.
	assert.True(t, st.Payment.Committente.ApplyCassa)
	assert.True(t, st.Payment.Committente.ApplyIVA)
	assert.True(t, st.Payment.Committente.Base.IsZero())
}

func TestDecodeCaseFile_Rejects(t *testing.T) {
	_, err := DecodeCaseFile("x", map[string]any{FieldStato: "boh"})
	assert.Error(t, err)

	_, err = DecodeCaseFile("x", map[string]any{
		FieldWorkflow: map[string]any{"saldo": "not an object"},
	})
	assert.Error(t, err)

	_, err = DecodeCaseFile("x", map[string]any{
		FieldWorkflow: map[string]any{"saldo": map[string]any{"notes": "nope"}},
	})
	assert.Error(t, err)
}

func TestDecodeCaseFile_MissingAmountsAreZero(t *testing.T) {
	got, err := DecodeCaseFile("x", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatoInCorso, got.Stato)
	assert.True(t, got.ImportoTotale.IsZero())
}

func TestTaskScheduleState(t *testing.T) {
	due := time.Now()
	assert.Equal(t, Unscheduled, Task{}.ScheduleState())
	assert.Equal(t, Scheduled, Task{DueDate: &due, GoogleCalendarEventID: "e"}.ScheduleState())
	assert.Equal(t, Dangling, Task{DueDate: &due}.ScheduleState())
	assert.Equal(t, Dangling, Task{GoogleCalendarEventID: "e"}.ScheduleState())
}

func TestCaseFileClone_IsDeep(t *testing.T) {
	cf := CaseFile{Workflow: map[StageID]*WorkflowStage{StageSaldo: NewStage(StageSaldo)}}
	cf.Workflow[StageSaldo].Notes = []Note{{ID: "a", Text: "uno"}}

	cp := cf.Clone()
	cp.Workflow[StageSaldo].Notes[0].Text = "due"
	cp.Workflow[StageSaldo].Payment.Committente.ApplyIVA = false

	assert.Equal(t, "uno", cf.Workflow[StageSaldo].Notes[0].Text)
	assert.True(t, cf.Workflow[StageSaldo].Payment.Committente.ApplyIVA)
}
