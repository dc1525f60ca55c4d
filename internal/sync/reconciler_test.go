package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
	"github.com/nhle/studio-pratiche/internal/workflow"
	"github.com/nhle/studio-pratiche/tests/testutil"
)

type fixture struct {
	store   *store.SQLiteStore
	editor  *workflow.Editor
	backend *fakeBackend
	rec     *Reconciler
	clock   *testutil.Clock
	ref     TaskRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s := testutil.NewTestStore(t)
	clock := testutil.NewClock(time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))

	cf, err := workflow.NewCaseFile(nil, "Rossi Mario", "Via Roma 1", "Tecnocasa", clock.Now())
	require.NoError(t, err)
	id, err := s.Create(ctx, cf)
	require.NoError(t, err)
	stored, err := s.Get(ctx, id)
	require.NoError(t, err)

	ed := workflow.NewEditor(s, nil)
	ed.SetClock(clock.Now)
	ed.Load([]model.CaseFile{*stored})

	taskID, err := ed.AppendTask(ctx, id, model.StageSopralluogo, "Sopralluogo in cantiere")
	require.NoError(t, err)

	backend := newFakeBackend()
	rec := NewReconciler(ed, backend, "primary", nil)
	rec.SetClock(clock.Now)

	return &fixture{
		store:   s,
		editor:  ed,
		backend: backend,
		rec:     rec,
		clock:   clock,
		ref:     TaskRef{CaseFileID: id, Stage: model.StageSopralluogo, TaskID: taskID},
	}
}

// storedTask reads the task back from the repository.
func (f *fixture) storedTask(t *testing.T) model.Task {
	t.Helper()
	cf, err := f.store.Get(context.Background(), f.ref.CaseFileID)
	require.NoError(t, err)
	task, err := workflow.FindTask(*cf, f.ref.Stage, f.ref.TaskID)
	require.NoError(t, err)
	return task
}

func TestSetDueDate_CreatesEvent(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	res, err := f.rec.SetDueDate(context.Background(), f.ref, DueDateInfo{
		DueDate:  due,
		Priority: model.PriorityHigh,
		Reminder: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, TransitionCreated, res.Transition)
	assert.Equal(t, model.Scheduled, res.State)
	require.NotEmpty(t, res.EventID)

	ev, ok := f.backend.event("primary", res.EventID)
	require.True(t, ok)
	assert.Equal(t, "2025-06-01T15:00:00Z", ev.Start.DateTime)
	assert.Equal(t, "2025-06-01T15:30:00Z", ev.End.DateTime)
	assert.Equal(t, "11", ev.ColorID)
	assert.Equal(t, 60, ev.Reminders.Overrides[0].Minutes)
	assert.Equal(t, f.ref.TaskID, ev.ExtendedProperties.Private["taskId"])

	task := f.storedTask(t)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))
	assert.Equal(t, model.PriorityHigh, task.Priority)
	assert.Equal(t, 60, task.Reminder)
	assert.Equal(t, res.EventID, task.GoogleCalendarEventID)
	assert.Equal(t, "primary", task.SourceCalendarID)
}

func TestSetDueDate_Defaults(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.SetDueDate(context.Background(), f.ref, DueDateInfo{
		DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	task := f.storedTask(t)
	assert.Equal(t, model.PriorityNormal, task.Priority)
	assert.Equal(t, model.DefaultReminderMinutes, task.Reminder)
}

func TestSetDueDate_UpdatesExistingEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	second, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{
		DueDate:  time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		Priority: model.PriorityLow,
	})
	require.NoError(t, err)

	assert.Equal(t, TransitionUpdated, second.Transition)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, 1, f.backend.count("primary"))

	ev, _ := f.backend.event("primary", second.EventID)
	assert.Equal(t, "2025-06-02T08:00:00Z", ev.Start.DateTime)
	assert.Equal(t, "2", ev.ColorID)
}

func TestSetDueDate_RecreatesVanishedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	// Deleted by hand in the calendar.
	require.NoError(t, f.backend.DeleteEvent(ctx, "primary", first.EventID))

	res, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.Equal(t, TransitionRecreated, res.Transition)
	assert.NotEqual(t, first.EventID, res.EventID)
	assert.Equal(t, res.EventID, f.storedTask(t).GoogleCalendarEventID)
	assert.Equal(t, model.Scheduled, res.State)
}

func TestSetDueDate_RemoteFailureKeepsLocalChange(t *testing.T) {
	f := newFixture(t)
	f.backend.insertErr = &calendar.RemoteError{StatusCode: 500, Method: "POST", Path: "/calendars/primary/events", Message: "backend error"}

	res, err := f.rec.SetDueDate(context.Background(), f.ref, DueDateInfo{
		DueDate:  time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC),
		Priority: model.PriorityHigh,
	})
	require.Error(t, err)
	assert.True(t, calendar.IsRemoteError(err))
	assert.Equal(t, TransitionLocalOnly, res.Transition)
	assert.Equal(t, model.Dangling, res.State)

	task := f.storedTask(t)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, model.PriorityHigh, task.Priority)
	assert.Empty(t, task.GoogleCalendarEventID)
	assert.Equal(t, workflow.WriteConfirmed, f.editor.Status(f.ref.CaseFileID).State)
}

func TestSetDueDate_WithoutCalendar(t *testing.T) {
	f := newFixture(t)
	rec := NewReconciler(f.editor, nil, "", nil)

	res, err := rec.SetDueDate(context.Background(), f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.ErrorIs(t, err, calendar.ErrUnauthenticated)
	assert.Equal(t, model.Dangling, res.State)
	assert.NotNil(t, f.storedTask(t).DueDate)
}

func TestSetDueDate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{})
	assert.ErrorIs(t, err, workflow.ErrInvalidValue)

	_, err = f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Now(), Priority: "urgent"})
	assert.ErrorIs(t, err, workflow.ErrInvalidValue)

	missing := f.ref
	missing.TaskID = "nope"
	_, err = f.rec.SetDueDate(ctx, missing, DueDateInfo{DueDate: time.Now()})
	assert.ErrorIs(t, err, workflow.ErrItemNotFound)

	assert.Empty(t, f.backend.calls)
}

func TestRemoveDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	res, err := f.rec.RemoveDueDate(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, TransitionDeleted, res.Transition)
	assert.Equal(t, model.Unscheduled, res.State)

	_, ok := f.backend.event("primary", set.EventID)
	assert.False(t, ok)

	task := f.storedTask(t)
	assert.Nil(t, task.DueDate)
	assert.Empty(t, task.Priority)
	assert.Zero(t, task.Reminder)
	assert.Empty(t, task.GoogleCalendarEventID)
	assert.Empty(t, task.SourceCalendarID)
}

func TestRemoveDueDate_MissingEventCountsAsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.backend.DeleteEvent(ctx, "primary", set.EventID))

	res, err := f.rec.RemoveDueDate(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, TransitionDeleted, res.Transition)
	assert.Nil(t, f.storedTask(t).DueDate)
}

func TestRemoveDueDate_RemoteFailureStillClearsLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	f.backend.deleteErr = errors.New("connection reset")
	res, err := f.rec.RemoveDueDate(ctx, f.ref)
	require.Error(t, err)
	assert.Equal(t, model.Unscheduled, res.State)
	assert.Nil(t, f.storedTask(t).DueDate)
	assert.Equal(t, 1, f.backend.count("primary"))
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()

	t.Run("with remote event", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
		require.NoError(t, err)

		res, err := f.rec.DeleteTask(ctx, f.ref, true)
		require.NoError(t, err)
		assert.Equal(t, TransitionDeleted, res.Transition)

		_, ok := f.backend.event("primary", set.EventID)
		assert.False(t, ok)

		cf, err := f.store.Get(ctx, f.ref.CaseFileID)
		require.NoError(t, err)
		assert.Empty(t, cf.Stage(f.ref.Stage).Tasks)
	})

	t.Run("local only", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
		require.NoError(t, err)

		res, err := f.rec.DeleteTask(ctx, f.ref, false)
		require.NoError(t, err)
		assert.Equal(t, TransitionLocalOnly, res.Transition)

		_, ok := f.backend.event("primary", set.EventID)
		assert.True(t, ok)
	})
}

func TestToggleCompletion_LeavesEventAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	calls := len(f.backend.calls)

	task, err := f.rec.ToggleCompletion(ctx, f.ref)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	require.NotNil(t, task.CompletedDate)
	assert.Equal(t, model.Scheduled, task.ScheduleState())
	assert.Len(t, f.backend.calls, calls)

	task, err = f.rec.ToggleCompletion(ctx, f.ref)
	require.NoError(t, err)
	assert.False(t, task.Completed)
	assert.Nil(t, task.CompletedDate)
}
