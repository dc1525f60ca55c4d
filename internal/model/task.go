package model

import "time"

// Priority of a task; it also selects the calendar event colour.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// DefaultReminderMinutes is used when a due date is set without a reminder.
const DefaultReminderMinutes = 30

// Note is a free-text annotation on a stage. Editing overwrites Date.
type Note struct {
	ID   string
	Text string
	Date time.Time
}

// Task is a to-do item on a stage, optionally mirrored as a calendar event.
type Task struct {
	ID            string
	Text          string
	Completed     bool
	CompletedDate *time.Time
	CreatedDate   time.Time

	DueDate  *time.Time
	Priority Priority
	Reminder int // minutes before the event

	// GoogleCalendarEventID is set only while the event is believed to
	// exist in SourceCalendarID.
	GoogleCalendarEventID string
	SourceCalendarID      string
}

// ScheduleState is the calendar-sync state of a task, derived from its
// fields.
type ScheduleState int

const (
	// Unscheduled: no due date and no event.
	Unscheduled ScheduleState = iota
	// Scheduled: a due date mirrored by a remote event.
	Scheduled
	// Dangling: the due date and the event disagree; the next SetDueDate
	// (or RemoveDueDate) brings the task back in line.
	Dangling
)

func (s ScheduleState) String() string {
	switch s {
	case Unscheduled:
		return "unscheduled"
	case Scheduled:
		return "scheduled"
	case Dangling:
		return "dangling"
	}
	return "unknown"
}

// ScheduleState derives the task's calendar-sync state.
func (t Task) ScheduleState() ScheduleState {
	hasDue := t.DueDate != nil
	hasEvent := t.GoogleCalendarEventID != ""
	switch {
	case !hasDue && !hasEvent:
		return Unscheduled
	case hasDue && hasEvent:
		return Scheduled
	default:
		return Dangling
	}
}

// IsOverdue reports whether an open task is past its due date.
func (t Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	out := t
	out.CompletedDate = cloneTime(t.CompletedDate)
	out.DueDate = cloneTime(t.DueDate)
	return out
}
