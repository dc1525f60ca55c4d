package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// Persister applies local task changes. workflow.Editor implements it.
type Persister interface {
	Apply(ctx context.Context, id string, stage model.StageID, fn workflow.Mutation) (model.CaseFile, error)
	Snapshot(id string) (model.CaseFile, bool)
}

// TaskRef addresses a task inside a case file.
type TaskRef struct {
	CaseFileID string
	Stage      model.StageID
	TaskID     string
}

// DueDateInfo is the scheduling input of SetDueDate.
type DueDateInfo struct {
	DueDate  time.Time
	Priority model.Priority
	Reminder int // minutes before; zero selects the default
}

// Transition names what a reconciliation did remotely.
type Transition int

const (
	// TransitionLocalOnly: the remote calendar was not changed.
	TransitionLocalOnly Transition = iota
	TransitionCreated
	TransitionUpdated
	// TransitionRecreated: the known event was gone and a new one was made.
	TransitionRecreated
	TransitionDeleted
)

func (t Transition) String() string {
	switch t {
	case TransitionCreated:
		return "created"
	case TransitionUpdated:
		return "updated"
	case TransitionRecreated:
		return "recreated"
	case TransitionDeleted:
		return "deleted"
	}
	return "local-only"
}

// SyncResult describes one reconciliation. The local change is persisted
// even when RemoteErr is set.
type SyncResult struct {
	Transition Transition
	EventID    string
	State      model.ScheduleState
	RemoteErr  error
}

// Reconciler keeps each dated task mirrored by exactly one calendar event.
type Reconciler struct {
	editor     Persister
	backend    calendar.Backend
	calendarID string
	logger     *slog.Logger
	now        func() time.Time
}

// NewReconciler builds a reconciler. A nil backend means the calendar is
// not configured: every call stays local and reports ErrUnauthenticated.
func NewReconciler(editor Persister, backend calendar.Backend, calendarID string, logger *slog.Logger) *Reconciler {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		editor:     editor,
		backend:    backend,
		calendarID: calendarID,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Reconciler) load(ref TaskRef) (model.CaseFile, model.Task, error) {
	cf, ok := r.editor.Snapshot(ref.CaseFileID)
	if !ok {
		return model.CaseFile{}, model.Task{}, fmt.Errorf("case file %s: %w", ref.CaseFileID, workflow.ErrItemNotFound)
	}
	t, err := workflow.FindTask(cf, ref.Stage, ref.TaskID)
	if err != nil {
		return model.CaseFile{}, model.Task{}, err
	}
	return cf, t, nil
}

func (r *Reconciler) updateTask(ctx context.Context, ref TaskRef, fn func(*model.Task)) (model.Task, error) {
	cf, err := r.editor.Apply(ctx, ref.CaseFileID, ref.Stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return workflow.UpdateTask(cf, ref.Stage, ref.TaskID, r.now(), func(t *model.Task) error {
			fn(t)
			return nil
		})
	})
	if err != nil {
		// The snapshot keeps the change even when persisting failed.
		if t, findErr := workflow.FindTask(cf, ref.Stage, ref.TaskID); findErr == nil {
			return t, err
		}
		return model.Task{}, err
	}
	return workflow.FindTask(cf, ref.Stage, ref.TaskID)
}

func (r *Reconciler) calendarFor(t model.Task) string {
	if t.SourceCalendarID != "" {
		return t.SourceCalendarID
	}
	return r.calendarID
}

// SetDueDate schedules a task. The due date, priority and reminder are
// saved locally first; then the event is updated, or created when the task
// has none. An update that finds the event gone falls back to creating a
// new one. Any other remote failure leaves the local fields in place and is
// returned.
func (r *Reconciler) SetDueDate(ctx context.Context, ref TaskRef, info DueDateInfo) (SyncResult, error) {
	if info.DueDate.IsZero() {
		return SyncResult{}, fmt.Errorf("%w: due date is required", workflow.ErrInvalidValue)
	}
	if info.Priority == "" {
		info.Priority = model.PriorityNormal
	}
	if !info.Priority.Valid() {
		return SyncResult{}, fmt.Errorf("%w: priority %q", workflow.ErrInvalidValue, info.Priority)
	}
	if info.Reminder < 0 {
		return SyncResult{}, fmt.Errorf("%w: reminder %d", workflow.ErrInvalidValue, info.Reminder)
	}
	if info.Reminder == 0 {
		info.Reminder = model.DefaultReminderMinutes
	}
	if _, _, err := r.load(ref); err != nil {
		return SyncResult{}, err
	}

	due := info.DueDate
	task, err := r.updateTask(ctx, ref, func(t *model.Task) {
		t.DueDate = &due
		t.Priority = info.Priority
		t.Reminder = info.Reminder
	})
	if err != nil && task.ID == "" {
		return SyncResult{}, err
	}
	localErr := err

	cf, _ := r.editor.Snapshot(ref.CaseFileID)
	result := r.pushEvent(ctx, cf, ref.Stage, task)

	if result.EventID != task.GoogleCalendarEventID {
		calID := r.calendarFor(task)
		eventID := result.EventID
		task, err = r.updateTask(ctx, ref, func(t *model.Task) {
			t.GoogleCalendarEventID = eventID
			if eventID == "" {
				t.SourceCalendarID = ""
			} else {
				t.SourceCalendarID = calID
			}
		})
		if err != nil {
			localErr = err
		}
	}
	result.State = task.ScheduleState()

	switch {
	case localErr != nil:
		return result, localErr
	case result.RemoteErr != nil:
		return result, fmt.Errorf("calendar sync for task %s: %w", ref.TaskID, result.RemoteErr)
	}
	return result, nil
}

// pushEvent creates or updates the event of t and returns the event id the
// task should carry afterwards.
func (r *Reconciler) pushEvent(ctx context.Context, cf model.CaseFile, stage model.StageID, t model.Task) SyncResult {
	if r.backend == nil {
		return SyncResult{EventID: t.GoogleCalendarEventID, RemoteErr: calendar.ErrUnauthenticated}
	}
	ev := BuildEvent(cf, stage, t)
	calID := r.calendarFor(t)

	if t.GoogleCalendarEventID != "" {
		updated, err := r.backend.PatchEvent(ctx, calID, t.GoogleCalendarEventID, ev)
		if err == nil {
			return SyncResult{Transition: TransitionUpdated, EventID: updated.ID}
		}
		if !errors.Is(err, calendar.ErrNotFound) {
			r.logger.Warn("updating calendar event", "task", t.ID, "event", t.GoogleCalendarEventID, "error", err)
			return SyncResult{EventID: t.GoogleCalendarEventID, RemoteErr: err}
		}

		r.logger.Info("calendar event gone, recreating", "task", t.ID, "event", t.GoogleCalendarEventID)
		created, err := r.backend.InsertEvent(ctx, r.calendarID, ev)
		if err != nil {
			r.logger.Warn("recreating calendar event", "task", t.ID, "error", err)
			return SyncResult{RemoteErr: err}
		}
		return SyncResult{Transition: TransitionRecreated, EventID: created.ID}
	}

	created, err := r.backend.InsertEvent(ctx, calID, ev)
	if err != nil {
		r.logger.Warn("creating calendar event", "task", t.ID, "error", err)
		return SyncResult{RemoteErr: err}
	}
	return SyncResult{Transition: TransitionCreated, EventID: created.ID}
}

// deleteEvent removes the event of t. A missing event counts as deleted.
func (r *Reconciler) deleteEvent(ctx context.Context, t model.Task) SyncResult {
	if t.GoogleCalendarEventID == "" {
		return SyncResult{}
	}
	if r.backend == nil {
		return SyncResult{RemoteErr: calendar.ErrUnauthenticated}
	}
	err := r.backend.DeleteEvent(ctx, r.calendarFor(t), t.GoogleCalendarEventID)
	if err != nil && !errors.Is(err, calendar.ErrNotFound) {
		r.logger.Warn("deleting calendar event", "task", t.ID, "event", t.GoogleCalendarEventID, "error", err)
		return SyncResult{RemoteErr: err}
	}
	return SyncResult{Transition: TransitionDeleted}
}

// RemoveDueDate unschedules a task. The event is deleted first; the local
// scheduling fields are cleared whatever the outcome.
func (r *Reconciler) RemoveDueDate(ctx context.Context, ref TaskRef) (SyncResult, error) {
	_, task, err := r.load(ref)
	if err != nil {
		return SyncResult{}, err
	}

	result := r.deleteEvent(ctx, task)

	task, err = r.updateTask(ctx, ref, func(t *model.Task) {
		t.DueDate = nil
		t.Priority = ""
		t.Reminder = 0
		t.GoogleCalendarEventID = ""
		t.SourceCalendarID = ""
	})
	result.State = task.ScheduleState()
	if err != nil {
		return result, err
	}
	if result.RemoteErr != nil {
		return result, fmt.Errorf("calendar sync for task %s: %w", ref.TaskID, result.RemoteErr)
	}
	return result, nil
}

// DeleteTask removes a task. Its event is deleted only when deleteRemote
// is set; the task is removed locally either way.
func (r *Reconciler) DeleteTask(ctx context.Context, ref TaskRef, deleteRemote bool) (SyncResult, error) {
	_, task, err := r.load(ref)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	if deleteRemote {
		result = r.deleteEvent(ctx, task)
	}

	_, err = r.editor.Apply(ctx, ref.CaseFileID, ref.Stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return workflow.DeleteTask(cf, ref.Stage, ref.TaskID, r.now())
	})
	if err != nil {
		return result, err
	}
	if result.RemoteErr != nil {
		return result, fmt.Errorf("calendar sync for task %s: %w", ref.TaskID, result.RemoteErr)
	}
	return result, nil
}

// ToggleCompletion flips the completion of a task. The calendar event is
// left alone.
func (r *Reconciler) ToggleCompletion(ctx context.Context, ref TaskRef) (model.Task, error) {
	cf, err := r.editor.Apply(ctx, ref.CaseFileID, ref.Stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return workflow.ToggleTask(cf, ref.Stage, ref.TaskID, r.now())
	})
	if err != nil {
		return model.Task{}, err
	}
	return workflow.FindTask(cf, ref.Stage, ref.TaskID)
}
