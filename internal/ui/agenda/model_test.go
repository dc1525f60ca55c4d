package agenda

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
)

func TestAgendaOrdersAndOpens(t *testing.T) {
	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	rilievo := model.NewStage(model.StageRilievo)
	rilievo.Tasks = []model.Task{
		{ID: "late", Text: "Misure", DueDate: at(72 * time.Hour)},
		{ID: "far", Text: "Fuori orizzonte", DueDate: at(40 * 24 * time.Hour)},
		{ID: "done", Text: "Fatto", Completed: true, DueDate: at(time.Hour)},
	}
	sopr := model.NewStage(model.StageSopralluogo)
	sopr.Tasks = []model.Task{{ID: "soon", Text: "Sopralluogo", DueDate: at(-2 * time.Hour)}}

	cfs := []model.CaseFile{
		{ID: "a", Codice: "2025-001", Workflow: map[model.StageID]*model.WorkflowStage{model.StageRilievo: rilievo}},
		{ID: "b", Codice: "2025-002", Workflow: map[model.StageID]*model.WorkflowStage{model.StageSopralluogo: sopr}},
	}

	m := New(keys.DefaultKeyMap(), 100, 20)
	m.SetClock(func() time.Time { return now })
	m.SetCaseFiles(cfs)

	require.Len(t, m.Items(), 2)
	assert.Equal(t, "soon", m.Items()[0].Task.ID)
	assert.Equal(t, "late", m.Items()[1].Task.ID)
	assert.Contains(t, m.View(), "2025-002")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, OpenMsg{CaseFileID: "a", Stage: model.StageRilievo}, cmd())
}

func TestAgendaEmpty(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 20)
	m.SetCaseFiles(nil)
	assert.Contains(t, m.View(), "Nessuna attività")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}
