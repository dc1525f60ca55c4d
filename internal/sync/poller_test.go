package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
)

func newTestPoller(f *fixture) *Poller {
	return NewPoller(PollerOptions{
		Repo:          f.store,
		Notifications: f.store,
		Editor:        f.editor,
		Backend:       f.backend,
		CalendarID:    "primary",
		Interval:      time.Hour,
		Window:        30 * 24 * time.Hour,
		Clock:         f.clock.Now,
	})
}

func TestPollOnce_DetachesOrphanedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.backend.DeleteEvent(ctx, "primary", set.EventID))

	res := newTestPoller(f).PollOnce(ctx)
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, []TaskRef{f.ref}, res.Orphaned)

	task := f.storedTask(t)
	assert.Equal(t, model.Dangling, task.ScheduleState())
	assert.NotNil(t, task.DueDate)

	notes, err := f.store.GetUnreadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationEventOrphaned, notes[0].Kind)
	assert.Equal(t, f.ref.TaskID, notes[0].TaskID)

	// The dangling task is repaired by scheduling it again.
	again, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, TransitionCreated, again.Transition)
	assert.Equal(t, model.Scheduled, again.State)
}

func TestPollOnce_KeepsLiveEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	res := newTestPoller(f).PollOnce(ctx)
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Orphaned)
	assert.Equal(t, model.Scheduled, f.storedTask(t).ScheduleState())
	require.Len(t, res.CaseFiles, 1)
}

func TestPollOnce_CancelledEventIsOrphaned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	f.backend.events["primary"][set.EventID] = calendar.Event{ID: set.EventID, Status: "cancelled"}

	res := newTestPoller(f).PollOnce(ctx)
	assert.Equal(t, []TaskRef{f.ref}, res.Orphaned)
}

func TestPollOnce_EventMovedOutsideWindowStaysLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	// Moved by hand in the calendar, two months ahead.
	ev := f.backend.events["primary"][set.EventID]
	moved := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	ev.Start = &calendar.EventDateTime{DateTime: moved.Format(time.RFC3339)}
	ev.End = &calendar.EventDateTime{DateTime: moved.Add(EventDuration).Format(time.RFC3339)}
	f.backend.events["primary"][set.EventID] = ev

	res := newTestPoller(f).PollOnce(ctx)
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Orphaned)
	assert.Contains(t, f.backend.calls, "get "+set.EventID)

	task := f.storedTask(t)
	assert.Equal(t, model.Scheduled, task.ScheduleState())
	assert.Equal(t, set.EventID, task.GoogleCalendarEventID)

	notes, err := f.store.GetUnreadNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	// Rescheduling patches the same event instead of creating a second one.
	again, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, TransitionUpdated, again.Transition)
	assert.Equal(t, set.EventID, again.EventID)
	assert.Equal(t, 1, f.backend.count("primary"))
}

func TestPollOnce_LookupFailureKeepsTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.backend.DeleteEvent(ctx, "primary", set.EventID))
	f.backend.getErr = &calendar.RemoteError{Method: "GET", Path: "/calendars/primary/events/" + set.EventID, StatusCode: 503, Message: "backend error"}

	res := newTestPoller(f).PollOnce(ctx)
	require.NoError(t, res.Error)
	assert.Empty(t, res.Orphaned)
	assert.Equal(t, model.Scheduled, f.storedTask(t).ScheduleState())
}

func TestPollOnce_IgnoresTasksOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.backend.DeleteEvent(ctx, "primary", set.EventID))

	res := newTestPoller(f).PollOnce(ctx)
	assert.Zero(t, res.Checked)
	assert.Empty(t, res.Orphaned)
	assert.Equal(t, model.Scheduled, f.storedTask(t).ScheduleState())
}

func TestPollOnce_AuthExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.SetDueDate(ctx, f.ref, DueDateInfo{DueDate: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	f.backend.listErr = calendar.ErrUnauthenticated

	p := newTestPoller(f)
	res := p.PollOnce(ctx)
	require.Error(t, res.Error)
	assert.True(t, res.AuthExpired)
	assert.Equal(t, PollError, p.Status().State)
	assert.Equal(t, model.Scheduled, f.storedTask(t).ScheduleState())
}

func TestPoller_StartDeliversResult(t *testing.T) {
	f := newFixture(t)
	p := newTestPoller(f)

	cmd := p.Start()
	require.NotNil(t, cmd)
	defer p.Stop()

	assert.Nil(t, p.Start())

	msg, ok := cmd().(PollResultMsg)
	require.True(t, ok)
	assert.NoError(t, msg.Error)
	assert.Len(t, msg.CaseFiles, 1)
}
