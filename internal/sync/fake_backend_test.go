package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/nhle/studio-pratiche/internal/calendar"
)

// fakeBackend is an in-memory calendar keyed by calendar and event id.
type fakeBackend struct {
	mu     gosync.Mutex
	events map[string]map[string]calendar.Event
	nextID int

	insertErr error
	patchErr  error
	deleteErr error
	listErr   error
	getErr    error

	calls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(map[string]map[string]calendar.Event)}
}

func (f *fakeBackend) record(call string) {
	f.calls = append(f.calls, call)
}

// ListEvents returns the events starting in [timeMin, timeMax). Events
// without a parsable start are always listed.
func (f *fakeBackend) ListEvents(_ context.Context, calendarID string, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list " + calendarID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []calendar.Event
	for _, ev := range f.events[calendarID] {
		if ev.Start != nil {
			if start, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
				if start.Before(timeMin) || !start.Before(timeMax) {
					continue
				}
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeBackend) GetEvent(_ context.Context, calendarID, eventID string) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get " + eventID)
	if f.getErr != nil {
		return nil, f.getErr
	}
	ev, ok := f.events[calendarID][eventID]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	return &ev, nil
}

func (f *fakeBackend) InsertEvent(_ context.Context, calendarID string, ev calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("insert " + calendarID)
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	ev.ID = fmt.Sprintf("ev-%d", f.nextID)
	if f.events[calendarID] == nil {
		f.events[calendarID] = make(map[string]calendar.Event)
	}
	f.events[calendarID][ev.ID] = ev
	return &ev, nil
}

func (f *fakeBackend) PatchEvent(_ context.Context, calendarID, eventID string, ev calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("patch " + eventID)
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	if _, ok := f.events[calendarID][eventID]; !ok {
		return nil, calendar.ErrNotFound
	}
	ev.ID = eventID
	f.events[calendarID][eventID] = ev
	return &ev, nil
}

func (f *fakeBackend) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete " + eventID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.events[calendarID][eventID]; !ok {
		return calendar.ErrNotFound
	}
	delete(f.events[calendarID], eventID)
	return nil
}

func (f *fakeBackend) event(calendarID, eventID string) (calendar.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[calendarID][eventID]
	return ev, ok
}

func (f *fakeBackend) count(calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[calendarID])
}
