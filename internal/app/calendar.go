package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
	appsync "github.com/nhle/studio-pratiche/internal/sync"
	"github.com/nhle/studio-pratiche/internal/ui/forms"
)

// unreadCountMsg carries the number of unread notifications to the UI.
type unreadCountMsg struct {
	count int
}

func taskRef(t forms.Target) appsync.TaskRef {
	return appsync.TaskRef{CaseFileID: t.CaseFileID, Stage: t.Stage, TaskID: t.ItemID}
}

// syncOutcome turns a reconciler result into an opResultMsg. A remote
// failure after a saved local change is recorded as a notification too.
func (m Model) syncOutcome(ctx context.Context, ref appsync.TaskRef, notice string, res appsync.SyncResult, err error) opResultMsg {
	if err == nil {
		return opResultMsg{caseFileID: ref.CaseFileID, notice: notice}
	}
	if res.RemoteErr != nil && !errors.Is(res.RemoteErr, calendar.ErrUnauthenticated) && m.svc.Notifications != nil {
		n := model.Notification{
			ID:         uuid.New().String(),
			CaseFileID: ref.CaseFileID,
			TaskID:     ref.TaskID,
			Kind:       model.NotificationSyncFailed,
			Message:    fmt.Sprintf("Sincronizzazione calendario non riuscita: %v", res.RemoteErr),
			CreatedAt:  m.svc.Clock(),
		}
		if nerr := m.svc.Notifications.CreateNotification(ctx, n); nerr != nil {
			m.svc.Logger.Error("recording sync failure", "task", ref.TaskID, "error", nerr)
		}
	}
	if res.RemoteErr != nil && errors.Is(res.RemoteErr, calendar.ErrUnauthenticated) {
		return opResultMsg{caseFileID: ref.CaseFileID, err: fmt.Errorf("%s (calendario non collegato)", notice)}
	}
	return opResultMsg{caseFileID: ref.CaseFileID, err: err}
}

func (m Model) setDueDate(msg forms.DueDateSubmittedMsg) tea.Cmd {
	rec, ctx := m.svc.Reconciler, m.ctx
	ref := taskRef(msg.Target)
	info := appsync.DueDateInfo{DueDate: msg.Due, Priority: msg.Priority, Reminder: msg.Reminder}
	return func() tea.Msg {
		res, err := rec.SetDueDate(ctx, ref, info)
		return m.syncOutcome(ctx, ref, "Scadenza salvata: "+transitionLabel(res.Transition), res, err)
	}
}

func transitionLabel(t appsync.Transition) string {
	switch t {
	case appsync.TransitionCreated:
		return "evento creato"
	case appsync.TransitionUpdated:
		return "evento aggiornato"
	case appsync.TransitionRecreated:
		return "evento ricreato"
	case appsync.TransitionDeleted:
		return "evento eliminato"
	}
	return "solo locale"
}

func (m Model) removeDueDate(t forms.Target) tea.Cmd {
	rec, ctx := m.svc.Reconciler, m.ctx
	ref := taskRef(t)
	return func() tea.Msg {
		res, err := rec.RemoveDueDate(ctx, ref)
		return m.syncOutcome(ctx, ref, "Scadenza rimossa", res, err)
	}
}

func (m Model) deleteTask(t forms.Target, deleteRemote bool) tea.Cmd {
	rec, ctx := m.svc.Reconciler, m.ctx
	ref := taskRef(t)
	return func() tea.Msg {
		res, err := rec.DeleteTask(ctx, ref, deleteRemote)
		return m.syncOutcome(ctx, ref, "Attività eliminata", res, err)
	}
}

func (m Model) toggleTask(t forms.Target) tea.Cmd {
	rec := m.svc.Reconciler
	ref := taskRef(t)
	return m.run(t.CaseFileID, "", func(ctx context.Context) error {
		_, err := rec.ToggleCompletion(ctx, ref)
		return err
	})
}

// handlePollResult records the calendar state and keeps listening.
func (m *Model) handlePollResult(msg appsync.PollResultMsg) tea.Cmd {
	m.authExpired = msg.AuthExpired
	switch {
	case msg.Error != nil:
		m.alert = "calendario: " + msg.Error.Error()
	case len(msg.Orphaned) > 0:
		m.notice = fmt.Sprintf("%d eventi non più presenti nel calendario", len(msg.Orphaned))
	}
	if msg.CaseFiles != nil {
		m.svc.Editor.Load(msg.CaseFiles)
		m.refreshDetail()
	}
	return tea.Batch(m.svc.Poller.WaitForNextResult(), m.fetchUnreadCount())
}

// refresh asks the poller for an immediate check.
func (m Model) refresh() tea.Cmd {
	if m.svc.Poller == nil {
		return m.fetchUnreadCount()
	}
	m.svc.Poller.Refresh()
	return m.fetchUnreadCount()
}

// calendarStatus returns a short string describing the calendar sync state
// and whether it needs the user's attention.
func (m Model) calendarStatus() (string, bool) {
	if m.svc.Poller == nil || m.authExpired {
		return "calendario non collegato", m.authExpired
	}
	st := m.svc.Poller.Status()
	switch st.State {
	case appsync.PollRunning:
		return "verifica calendario…", false
	case appsync.PollError:
		return "calendario non raggiungibile", true
	}
	if st.LastPoll.IsZero() {
		return "calendario", false
	}
	return "calendario " + st.LastPoll.Local().Format("15:04"), false
}

// fetchUnreadCount returns a tea.Cmd that queries the store for the
// number of unread notifications.
func (m Model) fetchUnreadCount() tea.Cmd {
	ns, ctx := m.svc.Notifications, m.ctx
	if ns == nil {
		return nil
	}
	return func() tea.Msg {
		notifications, err := ns.GetUnreadNotifications(ctx)
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: len(notifications)}
	}
}

// markNotificationsRead marks every unread notification as read.
func (m Model) markNotificationsRead() tea.Cmd {
	ns, ctx := m.svc.Notifications, m.ctx
	if ns == nil {
		return nil
	}
	return func() tea.Msg {
		unread, err := ns.GetUnreadNotifications(ctx)
		if err != nil {
			return opResultMsg{err: err}
		}
		for _, n := range unread {
			if err := ns.MarkNotificationRead(ctx, n.ID); err != nil {
				return opResultMsg{err: err}
			}
		}
		return unreadCountMsg{count: 0}
	}
}
