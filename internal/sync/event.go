package sync

import (
	"fmt"
	"time"

	"github.com/nhle/studio-pratiche/internal/calendar"
	"github.com/nhle/studio-pratiche/internal/model"
)

// AppMarker tags events created by this application.
const AppMarker = "studio-pratiche"

// EventDuration is the length of a task event.
const EventDuration = 30 * time.Minute

// Private extended property keys.
const (
	propApp     = "app"
	propPratica = "praticaId"
	propStage   = "stageId"
	propTask    = "taskId"
)

// BuildEvent returns the calendar payload for a task with a due date.
func BuildEvent(cf model.CaseFile, stage model.StageID, t model.Task) calendar.Event {
	start := t.DueDate.UTC()
	reminder := t.Reminder
	if reminder <= 0 {
		reminder = model.DefaultReminderMinutes
	}

	ev := calendar.Event{
		Summary: t.Text,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: start.Add(EventDuration).Format(time.RFC3339)},
		ColorID: calendar.ColorForPriority(t.Priority),
		Reminders: &calendar.Reminders{
			UseDefault: false,
			Overrides:  []calendar.ReminderOverride{{Method: "popup", Minutes: reminder}},
		},
		ExtendedProperties: &calendar.ExtendedProperties{
			Private: map[string]string{
				propApp:     AppMarker,
				propPratica: cf.ID,
				propStage:   string(stage),
				propTask:    t.ID,
			},
		},
	}
	if cf.Codice != "" {
		ev.Description = fmt.Sprintf("Pratica %s - %s", cf.Codice, cf.Cliente)
	}
	return ev
}
