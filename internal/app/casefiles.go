package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
	"github.com/nhle/studio-pratiche/internal/ui/command"
	"github.com/nhle/studio-pratiche/internal/ui/detail"
	"github.com/nhle/studio-pratiche/internal/ui/forms"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// subscribedMsg carries the change feed once the subscription is open.
type subscribedMsg struct {
	feed <-chan []model.CaseFile
}

// caseFilesMsg carries a fresh result from the change feed.
type caseFilesMsg struct {
	caseFiles []model.CaseFile
}

// opResultMsg is sent after an edit went through the editor or the
// reconciler.
type opResultMsg struct {
	caseFileID string
	notice     string
	err        error
}

// subscribe opens the case-file change feed.
func (m Model) subscribe() tea.Cmd {
	repo, ctx := m.svc.Repo, m.ctx
	return func() tea.Msg {
		feed, err := repo.Subscribe(ctx, store.Query{})
		if err != nil {
			return opResultMsg{err: fmt.Errorf("subscribing to case files: %w", err)}
		}
		return subscribedMsg{feed: feed}
	}
}

// waitForCaseFiles waits for the next result on the change feed.
func (m Model) waitForCaseFiles() tea.Cmd {
	feed := m.feed
	if feed == nil {
		return nil
	}
	return func() tea.Msg {
		cfs, ok := <-feed
		if !ok {
			return nil
		}
		return caseFilesMsg{caseFiles: cfs}
	}
}

// setCaseFiles refreshes the editor snapshots and every view.
func (m *Model) setCaseFiles(cfs []model.CaseFile) tea.Cmd {
	m.caseFiles = cfs
	m.svc.Editor.Load(cfs)
	m.agendaView.SetCaseFiles(cfs)
	m.summaryView.SetCaseFiles(cfs)
	m.refreshDetail()
	return m.caseList.SetCaseFiles(cfs)
}

// refreshDetail redraws the open case file from the editor snapshot, which
// carries edits still being written.
func (m *Model) refreshDetail() {
	id := m.detail.CaseFileID()
	if id == "" {
		return
	}
	if cf, ok := m.svc.Editor.Snapshot(id); ok {
		m.detail.SetCaseFile(cf, m.svc.Editor.Status(id))
	}
}

func (m *Model) openCaseFile(id string, stage model.StageID) {
	cf, ok := m.svc.Editor.Snapshot(id)
	if !ok {
		m.alert = "pratica non trovata"
		return
	}
	m.detail.SetCaseFile(cf, m.svc.Editor.Status(id))
	if stage != "" {
		m.detail.SelectStage(stage)
	}
	m.previousView = m.currentView
	m.currentView = ViewDetail
}

func (m *Model) handleOpResult(msg opResultMsg) {
	if msg.err != nil {
		m.alert = msg.err.Error()
		m.notice = ""
	} else if msg.notice != "" {
		m.notice = msg.notice
	}
	m.refreshDetail()
}

// run executes op off the UI goroutine and reports its outcome.
func (m Model) run(caseFileID, notice string, op func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		err := op(ctx)
		return opResultMsg{caseFileID: caseFileID, notice: notice, err: err}
	}
}

// handleAction turns a detail view request into a form or a direct edit.
func (m *Model) handleAction(a detail.ActionMsg) tea.Cmd {
	cf, ok := m.svc.Editor.Snapshot(a.CaseFileID)
	if !ok {
		m.alert = "pratica non trovata"
		return nil
	}
	st := cf.Stage(a.Stage)
	if st == nil {
		st = model.NewStage(a.Stage)
	}
	target := forms.Target{CaseFileID: a.CaseFileID, Stage: a.Stage, ItemID: a.ItemID}
	ed := m.svc.Editor

	switch a.Action {
	case detail.ActionToggleStage:
		done := !st.Completed
		return m.run(a.CaseFileID, "", func(ctx context.Context) error {
			_, err := ed.SetStageField(ctx, a.CaseFileID, a.Stage, workflow.Field{Kind: workflow.FieldCompleted}, done)
			return err
		})

	case detail.ActionEditAmount:
		if st.Payment == nil {
			return nil
		}
		return m.startForm(m.formView.StartAmount(target, *st.Payment))

	case detail.ActionAddNote:
		target.ItemID = ""
		return m.startForm(m.formView.StartNote(target, ""))

	case detail.ActionAddTask:
		target.ItemID = ""
		return m.startForm(m.formView.StartTask(target, ""))

	case detail.ActionEditItem:
		if a.ItemKind == detail.ItemNote {
			for _, n := range st.Notes {
				if n.ID == a.ItemID {
					return m.startForm(m.formView.StartNote(target, n.Text))
				}
			}
			return nil
		}
		t, err := workflow.FindTask(cf, a.Stage, a.ItemID)
		if err != nil {
			m.alert = err.Error()
			return nil
		}
		return m.startForm(m.formView.StartTask(target, t.Text))

	case detail.ActionDeleteItem:
		if a.ItemKind == detail.ItemNote {
			return m.run(a.CaseFileID, "Nota eliminata", func(ctx context.Context) error {
				return ed.DeleteNote(ctx, a.CaseFileID, a.Stage, a.ItemID)
			})
		}
		t, err := workflow.FindTask(cf, a.Stage, a.ItemID)
		if err != nil {
			m.alert = err.Error()
			return nil
		}
		return m.startForm(m.formView.StartDeleteTask(target, t))

	case detail.ActionToggleTask:
		return m.toggleTask(target)

	case detail.ActionSetDueDate:
		t, err := workflow.FindTask(cf, a.Stage, a.ItemID)
		if err != nil {
			m.alert = err.Error()
			return nil
		}
		return m.startForm(m.formView.StartDueDate(target, t))

	case detail.ActionRemoveDueDate:
		return m.removeDueDate(target)

	case detail.ActionSetStato:
		return m.startForm(m.formView.StartStato(a.CaseFileID, cf.Stato))
	}
	return nil
}

// createCaseFile stores a new case file with the next free codice.
func (m Model) createCaseFile(msg forms.CaseFileSubmittedMsg) tea.Cmd {
	existing := m.caseFiles
	repo, now := m.svc.Repo, m.svc.Clock
	ctx := m.ctx
	return func() tea.Msg {
		cf, err := workflow.NewCaseFile(existing, msg.Cliente, msg.Indirizzo, msg.Agenzia, now())
		if err != nil {
			return opResultMsg{err: err}
		}
		if msg.APETotal != nil {
			cf, _, err = workflow.SetAPETotal(cf, *msg.APETotal, now())
			if err != nil {
				return opResultMsg{err: err}
			}
		}
		id, err := repo.Create(ctx, cf)
		if err != nil {
			return opResultMsg{err: fmt.Errorf("creating case file: %w", err)}
		}
		return opResultMsg{caseFileID: id, notice: "Creata pratica " + cf.Codice}
	}
}

func (m Model) saveText(msg forms.TextSubmittedMsg) tea.Cmd {
	ed := m.svc.Editor
	t := msg.Target
	switch {
	case msg.Kind == forms.KindNote && t.ItemID == "":
		return m.run(t.CaseFileID, "Nota aggiunta", func(ctx context.Context) error {
			_, err := ed.AppendNote(ctx, t.CaseFileID, t.Stage, msg.Text)
			return err
		})
	case msg.Kind == forms.KindNote:
		return m.run(t.CaseFileID, "Nota aggiornata", func(ctx context.Context) error {
			return ed.UpdateNote(ctx, t.CaseFileID, t.Stage, t.ItemID, msg.Text)
		})
	case t.ItemID == "":
		return m.run(t.CaseFileID, "Attività aggiunta", func(ctx context.Context) error {
			_, err := ed.AppendTask(ctx, t.CaseFileID, t.Stage, msg.Text)
			return err
		})
	default:
		return m.run(t.CaseFileID, "Attività aggiornata", func(ctx context.Context) error {
			return ed.UpdateTaskText(ctx, t.CaseFileID, t.Stage, t.ItemID, msg.Text)
		})
	}
}

// saveAmount applies the surcharges and the amount of one role as a single
// write of the stage.
func (m Model) saveAmount(msg forms.AmountSubmittedMsg) tea.Cmd {
	ed := m.svc.Editor
	t := msg.Target
	now := ed.Now()
	return m.run(t.CaseFileID, "Importi salvati", func(ctx context.Context) error {
		_, err := ed.Apply(ctx, t.CaseFileID, t.Stage, func(cf model.CaseFile) (model.CaseFile, error) {
			var err error
			cf, err = workflow.SetStageField(cf, t.Stage, workflow.Field{Kind: workflow.FieldApplyCassa, Role: msg.Role}, msg.ApplyCassa, now)
			if err != nil {
				return cf, err
			}
			if msg.Role.AppliesIVA() {
				cf, err = workflow.SetStageField(cf, t.Stage, workflow.Field{Kind: workflow.FieldApplyIVA, Role: msg.Role}, msg.ApplyIVA, now)
				if err != nil {
					return cf, err
				}
			}
			kind := workflow.FieldBase
			if msg.Gross {
				kind = workflow.FieldGross
			}
			return workflow.SetStageField(cf, t.Stage, workflow.Field{Kind: kind, Role: msg.Role}, msg.Amount, now)
		})
		return err
	})
}

func (m Model) saveStato(msg forms.StatoSubmittedMsg) tea.Cmd {
	ed := m.svc.Editor
	return m.run(msg.CaseFileID, "Stato: "+msg.Stato.Label(), func(ctx context.Context) error {
		return ed.SetStato(ctx, msg.CaseFileID, msg.Stato)
	})
}

// executeCommand runs a command from the palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case command.Refresh:
		return m.refresh()
	case command.Agenda:
		m.currentView = ViewAgenda
	case command.Summary:
		m.currentView = ViewSummary
	case command.New:
		return m.startForm(m.formView.StartNewCaseFile(m.svc.Agencies))
	case command.Clear:
		m.currentView = ViewList
		return m.caseList.ClearFilters()
	case command.Stato:
		m.currentView = ViewList
		return m.caseList.SetStatoFilter(model.Stato(c.Args[0]))
	case command.Notify:
		return m.markNotificationsRead()
	case command.Quit:
		return m.shutdown()
	}
	return nil
}
