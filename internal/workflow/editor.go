package workflow

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
)

// WriteState is the persistence state of the last edit to a case file.
type WriteState int

const (
	WriteIdle WriteState = iota
	WritePending
	WriteConfirmed
	WriteFailed
)

func (s WriteState) String() string {
	switch s {
	case WritePending:
		return "pending"
	case WriteConfirmed:
		return "confirmed"
	case WriteFailed:
		return "failed"
	}
	return "idle"
}

// WriteStatus reports how the last edit of a case file fared.
type WriteStatus struct {
	State WriteState
	Err   error
	At    time.Time
}

// Updater is the part of the repository the editor writes through.
type Updater interface {
	Update(ctx context.Context, id string, updates []store.Update) error
}

// Mutation transforms a case file snapshot.
type Mutation func(model.CaseFile) (model.CaseFile, error)

// Editor applies mutations to in-memory snapshots first and persists the
// touched stage afterwards. A failed write is not rolled back; it is
// reported through Status. Writes are last-write-wins per stage.
type Editor struct {
	repo   Updater
	logger *slog.Logger
	now    func() time.Time

	mu        gosync.Mutex
	snapshots map[string]model.CaseFile
	status    map[string]WriteStatus
}

// NewEditor returns an editor writing through repo.
func NewEditor(repo Updater, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		snapshots: make(map[string]model.CaseFile),
		status:    make(map[string]WriteStatus),
	}
}

// SetClock replaces the time source.
func (e *Editor) SetClock(now func() time.Time) {
	e.now = now
}

// Now returns the editor's current time.
func (e *Editor) Now() time.Time {
	return e.now()
}

// Load replaces the snapshots with a fresh result from the repository.
func (e *Editor) Load(cfs []model.CaseFile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cf := range cfs {
		e.snapshots[cf.ID] = cf.Clone()
	}
}

// Snapshot returns the current in-memory state of a case file.
func (e *Editor) Snapshot(id string) (model.CaseFile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cf, ok := e.snapshots[id]
	if !ok {
		return model.CaseFile{}, false
	}
	return cf.Clone(), true
}

// Status returns the write status of a case file.
func (e *Editor) Status(id string) WriteStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status[id]
}

// Apply runs fn against the snapshot of case file id, keeps the result in
// memory and persists stage plus the modification time and totals. A
// validation error from fn leaves everything untouched. The returned case
// file is the optimistic state even when persisting fails.
func (e *Editor) Apply(ctx context.Context, id string, stage model.StageID, fn Mutation) (model.CaseFile, error) {
	e.mu.Lock()
	cur, ok := e.snapshots[id]
	if !ok {
		e.mu.Unlock()
		return model.CaseFile{}, fmt.Errorf("case file %s: %w", id, store.ErrNotFound)
	}
	next, err := fn(cur.Clone())
	if err != nil {
		e.mu.Unlock()
		return cur, err
	}
	e.snapshots[id] = next
	e.status[id] = WriteStatus{State: WritePending, At: e.now()}
	e.mu.Unlock()

	err = e.repo.Update(ctx, id, stageUpdates(next, stage))

	e.mu.Lock()
	if err != nil {
		e.status[id] = WriteStatus{State: WriteFailed, Err: err, At: e.now()}
	} else {
		e.status[id] = WriteStatus{State: WriteConfirmed, At: e.now()}
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("persisting case file", "case_file", id, "stage", stage, "error", err)
		return next, fmt.Errorf("saving %s: %w", stage, err)
	}
	return next, nil
}

// stageUpdates lists the document paths touched by an edit of stage. An
// empty stage means only top-level fields changed.
func stageUpdates(cf model.CaseFile, stage model.StageID) []store.Update {
	updates := []store.Update{
		{Path: model.FieldStato, Value: string(cf.Stato)},
		{Path: model.FieldImportoTotale, Value: cf.ImportoTotale.InexactFloat64()},
		{Path: model.FieldImportoCollaboratore, Value: cf.ImportoCollaboratore.InexactFloat64()},
		{Path: model.FieldImportoFirmatario, Value: cf.ImportoFirmatario.InexactFloat64()},
		{Path: model.FieldTariffaForfettaria, Value: cf.FlatFee},
		{Path: model.FieldDataUltimaModifica, Value: cf.DataUltimaModifica},
	}
	if stage == "" {
		return updates
	}
	if st := cf.Stage(stage); st != nil {
		updates = append(updates, store.Update{
			Path:  model.WorkflowPath(stage),
			Value: model.EncodeStage(*st),
		})
	}
	return updates
}

// SetStageField edits one stage field.
func (e *Editor) SetStageField(ctx context.Context, id string, stage model.StageID, field Field, value any) (model.CaseFile, error) {
	return e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return SetStageField(cf, stage, field, value, e.now())
	})
}

// AppendNote adds a note and returns its id.
func (e *Editor) AppendNote(ctx context.Context, id string, stage model.StageID, text string) (string, error) {
	var noteID string
	_, err := e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		out, nid, err := AppendNote(cf, stage, text, e.now())
		noteID = nid
		return out, err
	})
	return noteID, err
}

// UpdateNote replaces the text of a note.
func (e *Editor) UpdateNote(ctx context.Context, id string, stage model.StageID, noteID, text string) error {
	_, err := e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return UpdateNote(cf, stage, noteID, text, e.now())
	})
	return err
}

// DeleteNote removes a note.
func (e *Editor) DeleteNote(ctx context.Context, id string, stage model.StageID, noteID string) error {
	_, err := e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return DeleteNote(cf, stage, noteID, e.now())
	})
	return err
}

// AppendTask adds a task and returns its id.
func (e *Editor) AppendTask(ctx context.Context, id string, stage model.StageID, text string) (string, error) {
	var taskID string
	_, err := e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		out, tid, err := AppendTask(cf, stage, text, e.now())
		taskID = tid
		return out, err
	})
	return taskID, err
}

// UpdateTaskText replaces the text of a task.
func (e *Editor) UpdateTaskText(ctx context.Context, id string, stage model.StageID, taskID, text string) error {
	_, err := e.Apply(ctx, id, stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return UpdateTaskText(cf, stage, taskID, text, e.now())
	})
	return err
}

// SetStato changes the lifecycle state.
func (e *Editor) SetStato(ctx context.Context, id string, stato model.Stato) error {
	_, err := e.Apply(ctx, id, "", func(cf model.CaseFile) (model.CaseFile, error) {
		return SetStato(cf, stato, e.now())
	})
	return err
}
