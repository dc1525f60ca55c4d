package workflow

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
)

// lwwRepo keeps the last value written to each document path. When gate
// is set, every write waits until the test releases it.
type lwwRepo struct {
	mu     gosync.Mutex
	fields map[string]any
	err    error

	arrived chan struct{}
	release chan struct{}
}

func newLWWRepo() *lwwRepo {
	return &lwwRepo{fields: make(map[string]any)}
}

func (r *lwwRepo) Update(_ context.Context, _ string, updates []store.Update) error {
	if r.arrived != nil {
		r.arrived <- struct{}{}
		<-r.release
	}
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		r.fields[u.Path] = u.Value
	}
	return nil
}

func (r *lwwRepo) storedNotes(stage model.StageID) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, _ := r.fields[model.WorkflowPath(stage)].(map[string]any)
	notes, _ := st["notes"].([]any)
	return notes
}

func seed() model.CaseFile {
	return model.CaseFile{ID: "cf", Codice: "2025-001", Stato: model.StatoInCorso}
}

func TestEditor_AppliesAndConfirms(t *testing.T) {
	repo := newLWWRepo()
	ed := NewEditor(repo, nil)
	ed.SetClock(func() time.Time { return now })
	ed.Load([]model.CaseFile{seed()})
	ctx := context.Background()

	_, err := ed.AppendNote(ctx, "cf", model.StageIncarico, "prima nota")
	require.NoError(t, err)
	_, err = ed.AppendNote(ctx, "cf", model.StageIncarico, "seconda nota")
	require.NoError(t, err)

	assert.Len(t, repo.storedNotes(model.StageIncarico), 2)
	assert.Equal(t, WriteConfirmed, ed.Status("cf").State)
	assert.Equal(t, now, repo.fields[model.FieldDataUltimaModifica])

	cf, ok := ed.Snapshot("cf")
	require.True(t, ok)
	assert.Len(t, cf.Stage(model.StageIncarico).Notes, 2)
}

func TestEditor_ValidationBlocksWrite(t *testing.T) {
	repo := newLWWRepo()
	ed := NewEditor(repo, nil)
	ed.Load([]model.CaseFile{seed()})

	_, err := ed.AppendNote(context.Background(), "cf", model.StageIncarico, "   ")
	assert.ErrorIs(t, err, ErrEmptyNote)
	assert.Empty(t, repo.fields)
	assert.Equal(t, WriteIdle, ed.Status("cf").State)

	_, err = ed.AppendNote(context.Background(), "missing", model.StageIncarico, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditor_FailedWriteKeepsOptimisticState(t *testing.T) {
	repo := newLWWRepo()
	repo.err = &store.PersistenceError{Op: "update", ID: "cf", Err: errors.New("offline")}
	ed := NewEditor(repo, nil)
	ed.Load([]model.CaseFile{seed()})

	_, err := ed.SetStageField(context.Background(), "cf", model.StageSaldo, Field{Kind: FieldBase, Role: "Committente"}, "100")
	require.Error(t, err)
	assert.True(t, store.IsPersistenceError(err))

	status := ed.Status("cf")
	assert.Equal(t, WriteFailed, status.State)
	assert.Equal(t, "failed", status.State.String())
	require.Error(t, status.Err)

	cf, _ := ed.Snapshot("cf")
	assert.Equal(t, "128.10", cf.ImportoTotale.StringFixed(2))
}

// Two sessions append to the same stage from the same snapshot before
// either write lands. The store keeps whichever stage array arrives last,
// so one of the notes is lost. This is the accepted behaviour of a store
// without compare-and-swap.
func TestEditor_ConcurrentAppendsLoseOneNote(t *testing.T) {
	repo := newLWWRepo()
	repo.arrived = make(chan struct{})
	repo.release = make(chan struct{})

	tabA := NewEditor(repo, nil)
	tabB := NewEditor(repo, nil)
	tabA.Load([]model.CaseFile{seed()})
	tabB.Load([]model.CaseFile{seed()})

	ctx := context.Background()
	var wg gosync.WaitGroup
	for _, tab := range []struct {
		ed   *Editor
		text string
	}{{tabA, "nota da A"}, {tabB, "nota da B"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tab.ed.AppendNote(ctx, "cf", model.StageSaldo, tab.text)
			assert.NoError(t, err)
		}()
	}

	// Both writes are in flight before either is applied.
	<-repo.arrived
	<-repo.arrived
	close(repo.release)
	wg.Wait()

	assert.Len(t, repo.storedNotes(model.StageSaldo), 1)

	a, _ := tabA.Snapshot("cf")
	b, _ := tabB.Snapshot("cf")
	assert.Len(t, a.Stage(model.StageSaldo).Notes, 1)
	assert.Len(t, b.Stage(model.StageSaldo).Notes, 1)
}

func TestEditor_SetStatoWritesTopLevelOnly(t *testing.T) {
	repo := newLWWRepo()
	ed := NewEditor(repo, nil)
	ed.Load([]model.CaseFile{seed()})

	require.NoError(t, ed.SetStato(context.Background(), "cf", model.StatoCompletata))
	assert.Equal(t, "completata", repo.fields[model.FieldStato])
	for path := range repo.fields {
		assert.NotContains(t, path, model.FieldWorkflow+".")
	}

	assert.ErrorIs(t, ed.SetStato(context.Background(), "cf", "chiusa"), ErrInvalidValue)
}
