package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/studio-pratiche/internal/keys"
	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/store"
	appsync "github.com/nhle/studio-pratiche/internal/sync"
	"github.com/nhle/studio-pratiche/internal/ui"
	"github.com/nhle/studio-pratiche/internal/ui/agenda"
	"github.com/nhle/studio-pratiche/internal/ui/caselist"
	"github.com/nhle/studio-pratiche/internal/ui/command"
	"github.com/nhle/studio-pratiche/internal/ui/detail"
	"github.com/nhle/studio-pratiche/internal/ui/forms"
	helpview "github.com/nhle/studio-pratiche/internal/ui/help"
	"github.com/nhle/studio-pratiche/internal/ui/summary"
	"github.com/nhle/studio-pratiche/internal/workflow"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewAgenda
	ViewSummary
	ViewHelp
	ViewCommand
	ViewForm
)

// Services are the collaborators the dashboard drives. Poller may be nil
// when the calendar is not configured.
type Services struct {
	Repo          store.Repository
	Notifications store.NotificationStore
	Editor        *workflow.Editor
	Reconciler    *appsync.Reconciler
	Poller        *appsync.Poller
	Agencies      []string
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the calls into the services.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	svc          Services
	keys         *keys.KeyMap
	ctx          context.Context
	cancel       context.CancelFunc
	feed         <-chan []model.CaseFile

	caseFiles   []model.CaseFile
	caseList    caselist.Model
	detail      detail.Model
	agendaView  agenda.Model
	summaryView summary.Model
	helpView    helpview.Model
	commandView command.Model
	formView    forms.Model

	ready       bool
	unreadCount int
	alert       string
	notice      string
	authExpired bool
}

// New creates the root model.
func New(svc Services) Model {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	if svc.Clock == nil {
		svc.Clock = time.Now
	}
	k := keys.DefaultKeyMap()
	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		currentView: ViewList,
		svc:         svc,
		keys:        k,
		ctx:         ctx,
		cancel:      cancel,
		caseList:    caselist.New(k, svc.Agencies, 80, 24),
		detail:      detail.New(k, 80, 24),
		agendaView:  agenda.New(k, 80, 24),
		summaryView: summary.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.NewModel(80, 24),
		formView:    forms.New(80, 24),
	}
	m.caseList.SetClock(svc.Clock)
	m.detail.SetClock(svc.Clock)
	m.agendaView.SetClock(svc.Clock)
	return m
}

// Init subscribes to the case files and starts the calendar poller.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.subscribe(), m.fetchUnreadCount()}
	if m.svc.Poller != nil {
		cmds = append(cmds, m.svc.Poller.Start())
	}
	return tea.Batch(cmds...)
}

func (m *Model) shutdown() tea.Cmd {
	if m.svc.Poller != nil {
		m.svc.Poller.Stop()
	}
	m.cancel()
	return tea.Quit
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.caseList.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.agendaView.SetSize(w, h)
		m.summaryView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.formView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case subscribedMsg:
		m.feed = msg.feed
		return m, m.waitForCaseFiles()

	case caseFilesMsg:
		return m, tea.Batch(m.setCaseFiles(msg.caseFiles), m.waitForCaseFiles())

	case opResultMsg:
		m.handleOpResult(msg)
		return m, m.fetchUnreadCount()

	case appsync.PollResultMsg:
		return m, m.handlePollResult(msg)

	case unreadCountMsg:
		m.unreadCount = msg.count
		return m, nil

	case caselist.SelectedCaseFileMsg:
		m.openCaseFile(msg.ID, "")
		return m, nil

	case agenda.OpenMsg:
		m.openCaseFile(msg.CaseFileID, msg.Stage)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.ActionMsg:
		return m, m.handleAction(msg)

	case forms.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case forms.CaseFileSubmittedMsg:
		m.currentView = ViewList
		return m, m.createCaseFile(msg)

	case forms.TextSubmittedMsg:
		m.currentView = m.previousView
		return m, m.saveText(msg)

	case forms.DueDateSubmittedMsg:
		m.currentView = m.previousView
		return m, m.setDueDate(msg)

	case forms.AmountSubmittedMsg:
		m.currentView = m.previousView
		return m, m.saveAmount(msg)

	case forms.StatoSubmittedMsg:
		m.currentView = m.previousView
		return m, m.saveStato(msg)

	case forms.DeleteTaskConfirmedMsg:
		m.currentView = m.previousView
		return m, m.deleteTask(msg.Target, msg.DeleteRemote)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.ErrorMsg:
		m.alert = msg.Err.Error()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.shutdown()
		}
		if m.currentView == ViewForm {
			break
		}
		if m.currentView == ViewCommand {
			if key.Matches(msg, m.keys.Back) {
				m.currentView = m.previousView
				return m, nil
			}
			break
		}
		if m.currentView == ViewList && m.caseList.Searching() {
			break
		}

		// Any other key dismisses the last message.
		m.alert, m.notice = "", ""

		switch {
		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewList:
			return m, m.shutdown()

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()

		case key.Matches(msg, m.keys.Back) &&
			(m.currentView == ViewAgenda || m.currentView == ViewSummary || m.currentView == ViewHelp):
			m.currentView = ViewList
			return m, nil
		}

		if m.currentView == ViewList {
			switch {
			case key.Matches(msg, m.keys.New):
				return m, m.startForm(m.formView.StartNewCaseFile(m.svc.Agencies))
			case key.Matches(msg, m.keys.Agenda):
				m.currentView = ViewAgenda
				return m, nil
			case key.Matches(msg, m.keys.Summary):
				m.currentView = ViewSummary
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.caseList, cmd = m.caseList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewAgenda:
		m.agendaView, cmd = m.agendaView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewForm:
		m.formView, cmd = m.formView.Update(msg)
	}

	return m, cmd
}

// startForm switches to the form view; init is the form's Init command.
func (m *Model) startForm(init tea.Cmd) tea.Cmd {
	if m.currentView != ViewForm {
		m.previousView = m.currentView
	}
	m.currentView = ViewForm
	return init
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Caricamento..."
	}

	calStatus, calWarn := m.calendarStatus()
	header := m.layout.RenderHeader(ui.Header{
		Title:    "Studio · Pratiche",
		Unread:   m.unreadCount,
		Calendar: calStatus,
		Warning:  calWarn,
	})

	var statusBar string
	if m.alert != "" {
		statusBar = m.layout.RenderAlert(m.alert)
	} else if m.notice != "" {
		statusBar = m.layout.RenderStatusBar(m.notice)
	} else {
		statusBar = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.caseList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewAgenda:
		return m.agendaView.View()
	case ViewSummary:
		return m.summaryView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewForm:
		return m.formView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? chiudi | esc indietro"
	case ViewCommand:
		return "enter esegui | esc indietro"
	case ViewDetail:
		return "esc indietro | h/l fase | N nota | a attività | d scadenza | x fatto | i importi | s stato"
	case ViewAgenda:
		return "enter apri | esc indietro"
	case ViewSummary:
		return "esc indietro"
	case ViewForm:
		return "enter conferma | esc annulla"
	default:
		if f := m.caseList.FilterSummary(); f != "" {
			return f + " | :clear azzera"
		}
		return "q esci | ? aiuto | n nuova | / cerca | tab stato | g agenda | $ riepilogo"
	}
}
