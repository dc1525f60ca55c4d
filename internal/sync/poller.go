package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// PollState represents the current state of the calendar poller.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// PollStatus holds the state of the last poll.
type PollStatus struct {
	State    PollState
	LastPoll time.Time
	Error    error
}

// PollResultMsg is a tea.Msg sent when a poll completes.
type PollResultMsg struct {
	CaseFiles []model.CaseFile
	Orphaned  []TaskRef
	Checked   int
	Error     error
	// AuthExpired is set when the calendar rejected the credentials.
	AuthExpired bool
}

// Defaults for the poll loop.
const (
	DefaultPollInterval = 120 * time.Second
	DefaultPollWindow   = 30 * 24 * time.Hour
)

// fetchTimeout is the maximum time allowed for a single poll.
const fetchTimeout = 30 * time.Second

// SnapshotStore is the editor surface the poller needs: it refreshes the
// snapshots and clears event ids through the normal write path.
type SnapshotStore interface {
	Persister
	Load(cfs []model.CaseFile)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Repo          store.Repository
	Notifications store.NotificationStore
	Editor        SnapshotStore
	Backend       calendar.Backend
	CalendarID    string
	Interval      time.Duration
	Window        time.Duration
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Poller periodically compares scheduled tasks with the remote calendar.
// A task whose event has vanished is marked dangling by clearing its event
// id, and a notification is written so the user can reschedule it.
type Poller struct {
	repo       store.Repository
	notes      store.NotificationStore
	editor     SnapshotStore
	backend    calendar.Backend
	calendarID string
	interval   time.Duration
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time

	status    PollStatus
	resultCh  chan PollResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a poller. It does nothing until Start is called.
func NewPoller(opts PollerOptions) *Poller {
	p := &Poller{
		repo:       opts.Repo,
		notes:      opts.Notifications,
		editor:     opts.Editor,
		backend:    opts.Backend,
		calendarID: opts.CalendarID,
		interval:   opts.Interval,
		window:     opts.Window,
		logger:     opts.Logger,
		now:        opts.Clock,
		resultCh:   make(chan PollResultMsg, 16),
		triggerCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	if p.calendarID == "" {
		p.calendarID = "primary"
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.window <= 0 {
		p.window = DefaultPollWindow
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Start returns a tea.Cmd that starts the polling goroutine and waits for
// the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh triggers an immediate poll.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A poll is already queued.
	}
	return nil
}

// Status returns the state of the last poll.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sendResult(p.PollOnce(context.Background()))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendResult(p.PollOnce(context.Background()))
		case <-p.triggerCh:
			p.sendResult(p.PollOnce(context.Background()))
		}
	}
}

// PollOnce reloads the case files, lists the remote events in the poll
// window and detaches every scheduled task whose event is gone. A task
// missing from the listing is looked up by event id first, since the
// event may have been moved out of the window.
func (p *Poller) PollOnce(ctx context.Context) PollResultMsg {
	p.setStatus(PollRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cfs, err := p.repo.List(ctx, store.Query{})
	if err != nil {
		p.setStatus(PollError, err)
		return PollResultMsg{Error: fmt.Errorf("listing case files: %w", err)}
	}
	p.editor.Load(cfs)

	if p.backend == nil {
		p.setStatus(PollIdle, nil)
		return PollResultMsg{CaseFiles: cfs}
	}

	now := p.now()
	from, to := now.Add(-24*time.Hour), now.Add(p.window)

	candidates := scheduledInWindow(cfs, p.calendarID, from, to)
	seen := make(map[string]map[string]bool)
	for calID := range candidates {
		events, err := p.backend.ListEvents(ctx, calID, from, to)
		if err != nil {
			p.setStatus(PollError, err)
			return PollResultMsg{
				CaseFiles:   cfs,
				Error:       fmt.Errorf("listing events of %s: %w", calID, err),
				AuthExpired: errors.Is(err, calendar.ErrUnauthenticated),
			}
		}
		ids := make(map[string]bool, len(events))
		for _, ev := range events {
			if ev.Status != "cancelled" {
				ids[ev.ID] = true
			}
		}
		seen[calID] = ids
	}

	result := PollResultMsg{}
	for calID, refs := range candidates {
		for _, c := range refs {
			result.Checked++
			if seen[calID][c.eventID] {
				continue
			}
			gone, err := p.eventGone(ctx, calID, c.eventID)
			if err != nil {
				if errors.Is(err, calendar.ErrUnauthenticated) {
					p.setStatus(PollError, err)
					return PollResultMsg{
						CaseFiles:   cfs,
						Error:       fmt.Errorf("confirming event %s: %w", c.eventID, err),
						AuthExpired: true,
					}
				}
				p.logger.Warn("confirming missing event", "case_file", c.ref.CaseFileID, "event", c.eventID, "error", err)
				continue
			}
			if !gone {
				// Moved outside the window; the link still holds.
				continue
			}
			if err := p.detach(ctx, c); err != nil {
				p.logger.Warn("detaching orphaned task", "case_file", c.ref.CaseFileID, "task", c.ref.TaskID, "error", err)
				continue
			}
			result.Orphaned = append(result.Orphaned, c.ref)
		}
	}

	if len(result.Orphaned) > 0 {
		// Reload so the message carries the detached tasks.
		if fresh, err := p.repo.List(ctx, store.Query{}); err == nil {
			cfs = fresh
		}
	}
	result.CaseFiles = cfs

	p.setStatus(PollIdle, nil)
	return result
}

// eventGone looks up an event missing from the window listing. Only a
// deleted or cancelled event counts as gone.
func (p *Poller) eventGone(ctx context.Context, calendarID, eventID string) (bool, error) {
	ev, err := p.backend.GetEvent(ctx, calendarID, eventID)
	if errors.Is(err, calendar.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return ev.Status == "cancelled", nil
}

type scheduledTask struct {
	ref     TaskRef
	eventID string
	text    string
	codice  string
}

// scheduledInWindow groups by calendar the scheduled tasks whose due date
// falls inside the listed window. Tasks outside it cannot be judged.
func scheduledInWindow(cfs []model.CaseFile, defaultCal string, from, to time.Time) map[string][]scheduledTask {
	out := make(map[string][]scheduledTask)
	for _, cf := range cfs {
		for _, def := range model.Stages {
			st := cf.Stage(def.ID)
			if st == nil {
				continue
			}
			for _, t := range st.Tasks {
				if t.ScheduleState() != model.Scheduled {
					continue
				}
				if t.DueDate.Before(from) || !t.DueDate.Before(to) {
					continue
				}
				calID := t.SourceCalendarID
				if calID == "" {
					calID = defaultCal
				}
				out[calID] = append(out[calID], scheduledTask{
					ref:     TaskRef{CaseFileID: cf.ID, Stage: def.ID, TaskID: t.ID},
					eventID: t.GoogleCalendarEventID,
					text:    t.Text,
					codice:  cf.Codice,
				})
			}
		}
	}
	return out
}

func (p *Poller) detach(ctx context.Context, c scheduledTask) error {
	_, err := p.editor.Apply(ctx, c.ref.CaseFileID, c.ref.Stage, func(cf model.CaseFile) (model.CaseFile, error) {
		return workflow.UpdateTask(cf, c.ref.Stage, c.ref.TaskID, p.now(), func(t *model.Task) error {
			t.GoogleCalendarEventID = ""
			t.SourceCalendarID = ""
			return nil
		})
	})
	if err != nil {
		return err
	}
	if p.notes == nil {
		return nil
	}
	return p.notes.CreateNotification(ctx, model.Notification{
		CaseFileID: c.ref.CaseFileID,
		TaskID:     c.ref.TaskID,
		Kind:       model.NotificationEventOrphaned,
		Message:    fmt.Sprintf("Pratica %s: l'evento di %q non esiste più nel calendario", c.codice, c.text),
		CreatedAt:  p.now(),
	})
}

// setStatus updates the poll status.
func (p *Poller) setStatus(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == PollIdle && err == nil {
		p.status.LastPoll = p.now()
	}
}

// sendResult sends a PollResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg PollResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next poll result.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next poll result.
// It should be called after handling a PollResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
