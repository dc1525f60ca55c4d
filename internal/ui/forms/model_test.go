package forms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
)

var rome = time.FixedZone("CEST", 2*60*60)

func TestParseDueDate(t *testing.T) {
	got, err := ParseDueDate("2025-06-01", "17:00", rome)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC), got.UTC())

	got, err = ParseDueDate(" 2025-06-01 ", "", rome)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())

	_, err = ParseDueDate("01/06/2025", "17:00", rome)
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.Error(t, validateRequired("Cliente")("  "))
	assert.NoError(t, validateRequired("Cliente")("Rossi"))
	assert.Error(t, validateDate(""))
	assert.NoError(t, validateClock(""))
	assert.Error(t, validateClock("25:00"))
	assert.Error(t, validateMinutes("-5"))
	assert.NoError(t, validateMinutes("0"))
	assert.Error(t, validateAmount("dieci"))
	assert.NoError(t, validateAmount("1.234,56"))
	assert.NoError(t, validateOptionalAPE(""))
	assert.Error(t, validateOptionalAPE("-1"))
}

func TestStartDueDate_Prefill(t *testing.T) {
	m := New(80, 30)
	m.SetLocation(rome)
	due := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	m.StartDueDate(Target{CaseFileID: "cf"}, model.Task{Text: "Sopralluogo", DueDate: &due, Priority: model.PriorityHigh, Reminder: 60})

	assert.Equal(t, KindDueDate, m.Kind())
	assert.Equal(t, "2025-06-01", m.fb.date)
	assert.Equal(t, "17:00", m.fb.clock)
	assert.Equal(t, model.PriorityHigh, m.fb.priority)
	assert.Equal(t, "60", m.fb.reminder)

	m.StartDueDate(Target{CaseFileID: "cf"}, model.Task{Text: "Rilievo"})
	assert.Equal(t, "", m.fb.date)
	assert.Equal(t, model.PriorityNormal, m.fb.priority)
	assert.Equal(t, "30", m.fb.reminder)
}

func TestHandleSubmit(t *testing.T) {
	target := Target{CaseFileID: "cf", Stage: model.StageSopralluogo, ItemID: "t1"}

	t.Run("due date", func(t *testing.T) {
		m := New(80, 30)
		m.SetLocation(rome)
		m.StartDueDate(target, model.Task{Text: "Sopralluogo"})
		m.fb.date = "2025-06-01"
		m.fb.clock = "17:00"
		m.fb.reminder = "15"

		msg := m.handleSubmit()()
		assert.Equal(t, DueDateSubmittedMsg{
			Target:   target,
			Due:      time.Date(2025, 6, 1, 17, 0, 0, 0, rome),
			Priority: model.PriorityNormal,
			Reminder: 15,
		}, msg)
	})

	t.Run("new case file with APE total", func(t *testing.T) {
		m := New(80, 30)
		m.StartNewCaseFile([]string{"Tecnocasa"})
		m.fb.cliente = " Rossi Mario "
		m.fb.agenzia = "Tecnocasa"
		m.fb.apeTotal = "150,00"

		msg, ok := m.handleSubmit()().(CaseFileSubmittedMsg)
		require.True(t, ok)
		assert.Equal(t, "Rossi Mario", msg.Cliente)
		assert.Equal(t, "Tecnocasa", msg.Agenzia)
		require.NotNil(t, msg.APETotal)
		assert.Equal(t, "150", msg.APETotal.String())
	})

	t.Run("amount drops IVA for roles without it", func(t *testing.T) {
		m := New(80, 30)
		m.StartAmount(Target{CaseFileID: "cf", Stage: model.StageSaldo}, *model.NewPaymentRecord())
		m.fb.role = money.RoleCollaboratore
		m.fb.amount = "500"
		m.fb.applyIVA = true

		msg, ok := m.handleSubmit()().(AmountSubmittedMsg)
		require.True(t, ok)
		assert.Equal(t, money.RoleCollaboratore, msg.Role)
		assert.Equal(t, "500", msg.Amount.String())
		assert.False(t, msg.ApplyIVA)
	})

	t.Run("delete not confirmed", func(t *testing.T) {
		m := New(80, 30)
		m.StartDeleteTask(target, model.Task{Text: "Sopralluogo", GoogleCalendarEventID: "ev"})
		assert.True(t, m.fb.deleteRemote)
		assert.Equal(t, CancelMsg{}, m.handleSubmit()())

		m.fb.confirm = true
		m.fb.deleteRemote = false
		assert.Equal(t, DeleteTaskConfirmedMsg{Target: target}, m.handleSubmit()())
	})

	t.Run("stato", func(t *testing.T) {
		m := New(80, 30)
		m.StartStato("cf", model.StatoInCorso)
		m.fb.stato = model.StatoAnnullata
		assert.Equal(t, StatoSubmittedMsg{CaseFileID: "cf", Stato: model.StatoAnnullata}, m.handleSubmit()())
	})
}
