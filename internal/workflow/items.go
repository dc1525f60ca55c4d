package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/studio-pratiche/internal/model"
)

// newID generates item identifiers. Tests replace it for stable output.
var newID = func() string { return uuid.New().String() }

// stageFor clones cf and returns the copy together with the requested stage,
// creating the stage when absent.
func stageFor(cf model.CaseFile, stage model.StageID) (model.CaseFile, *model.WorkflowStage, error) {
	if _, ok := model.LookupStage(stage); !ok {
		return cf, nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	out := cf.Clone()
	return out, ensureStage(&out, stage), nil
}

// AppendNote adds a note dated now and returns the new note's id.
func AppendNote(cf model.CaseFile, stage model.StageID, text string, now time.Time) (model.CaseFile, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cf, "", ErrEmptyNote
	}
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, "", err
	}
	n := model.Note{ID: newID(), Text: text, Date: now}
	st.Notes = append(st.Notes, n)
	out.DataUltimaModifica = now
	return out, n.ID, nil
}

// UpdateNote replaces the text of a note. The note date moves to now.
func UpdateNote(cf model.CaseFile, stage model.StageID, noteID, text string, now time.Time) (model.CaseFile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cf, ErrEmptyNote
	}
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	i := noteIndex(st, noteID)
	if i < 0 {
		return cf, fmt.Errorf("%w: note %s in %s", ErrItemNotFound, noteID, stage)
	}
	st.Notes[i].Text = text
	st.Notes[i].Date = now
	out.DataUltimaModifica = now
	return out, nil
}

// DeleteNote removes a note by id.
func DeleteNote(cf model.CaseFile, stage model.StageID, noteID string, now time.Time) (model.CaseFile, error) {
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	i := noteIndex(st, noteID)
	if i < 0 {
		return cf, fmt.Errorf("%w: note %s in %s", ErrItemNotFound, noteID, stage)
	}
	st.Notes = append(st.Notes[:i], st.Notes[i+1:]...)
	out.DataUltimaModifica = now
	return out, nil
}

// DeleteNoteAt removes the note at a position. Positions shift when other
// sessions edit the same stage; prefer DeleteNote.
func DeleteNoteAt(cf model.CaseFile, stage model.StageID, index int, now time.Time) (model.CaseFile, error) {
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	if index < 0 || index >= len(st.Notes) {
		return cf, fmt.Errorf("%w: note %d of %d in %s", ErrIndexOutOfRange, index, len(st.Notes), stage)
	}
	st.Notes = append(st.Notes[:index], st.Notes[index+1:]...)
	out.DataUltimaModifica = now
	return out, nil
}

// AppendTask adds an open task and returns its id.
func AppendTask(cf model.CaseFile, stage model.StageID, text string, now time.Time) (model.CaseFile, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cf, "", ErrEmptyTask
	}
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, "", err
	}
	t := model.Task{ID: newID(), Text: text, CreatedDate: now}
	st.Tasks = append(st.Tasks, t)
	out.DataUltimaModifica = now
	return out, t.ID, nil
}

// ToggleTask flips the completion of a task, keeping CompletedDate in step.
// It never touches the calendar event.
func ToggleTask(cf model.CaseFile, stage model.StageID, taskID string, now time.Time) (model.CaseFile, error) {
	return UpdateTask(cf, stage, taskID, now, func(t *model.Task) error {
		t.Completed = !t.Completed
		if t.Completed {
			d := now
			t.CompletedDate = &d
		} else {
			t.CompletedDate = nil
		}
		return nil
	})
}

// UpdateTaskText replaces the text of a task.
func UpdateTaskText(cf model.CaseFile, stage model.StageID, taskID, text string, now time.Time) (model.CaseFile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cf, ErrEmptyTask
	}
	return UpdateTask(cf, stage, taskID, now, func(t *model.Task) error {
		t.Text = text
		return nil
	})
}

// UpdateTask applies fn to a copy of the task. An error from fn leaves cf
// unchanged.
func UpdateTask(cf model.CaseFile, stage model.StageID, taskID string, now time.Time, fn func(*model.Task) error) (model.CaseFile, error) {
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	i := taskIndex(st, taskID)
	if i < 0 {
		return cf, fmt.Errorf("%w: task %s in %s", ErrItemNotFound, taskID, stage)
	}
	if err := fn(&st.Tasks[i]); err != nil {
		return cf, err
	}
	out.DataUltimaModifica = now
	return out, nil
}

// DeleteTask removes a task by id. Removing its calendar event is the
// caller's decision.
func DeleteTask(cf model.CaseFile, stage model.StageID, taskID string, now time.Time) (model.CaseFile, error) {
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	i := taskIndex(st, taskID)
	if i < 0 {
		return cf, fmt.Errorf("%w: task %s in %s", ErrItemNotFound, taskID, stage)
	}
	st.Tasks = append(st.Tasks[:i], st.Tasks[i+1:]...)
	out.DataUltimaModifica = now
	return out, nil
}

// DeleteTaskAt removes the task at a position.
func DeleteTaskAt(cf model.CaseFile, stage model.StageID, index int, now time.Time) (model.CaseFile, error) {
	out, st, err := stageFor(cf, stage)
	if err != nil {
		return cf, err
	}
	if index < 0 || index >= len(st.Tasks) {
		return cf, fmt.Errorf("%w: task %d of %d in %s", ErrIndexOutOfRange, index, len(st.Tasks), stage)
	}
	st.Tasks = append(st.Tasks[:index], st.Tasks[index+1:]...)
	out.DataUltimaModifica = now
	return out, nil
}

// FindTask returns a copy of a task.
func FindTask(cf model.CaseFile, stage model.StageID, taskID string) (model.Task, error) {
	st := cf.Stage(stage)
	if st == nil {
		return model.Task{}, fmt.Errorf("%w: task %s in %s", ErrItemNotFound, taskID, stage)
	}
	i := taskIndex(st, taskID)
	if i < 0 {
		return model.Task{}, fmt.Errorf("%w: task %s in %s", ErrItemNotFound, taskID, stage)
	}
	return st.Tasks[i].Clone(), nil
}

func noteIndex(st *model.WorkflowStage, id string) int {
	for i, n := range st.Notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func taskIndex(st *model.WorkflowStage, id string) int {
	for i, t := range st.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
