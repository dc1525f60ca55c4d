package forms

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/money"
	"github.com/nhle/studio-pratiche/internal/theme"
)

// Kind is the form being shown.
type Kind int

const (
	KindNone Kind = iota
	KindNewCaseFile
	KindNote
	KindTask
	KindDueDate
	KindAmount
	KindStato
	KindDeleteTask
)

// Target addresses the stage item a form edits. ItemID is empty when a new
// item is being added.
type Target struct {
	CaseFileID string
	Stage      model.StageID
	ItemID     string
}

// CancelMsg is dispatched when the user aborts a form.
type CancelMsg struct{}

// CaseFileSubmittedMsg carries the fields of a new case file. APETotal is
// set when a flat-fee APE total was entered.
type CaseFileSubmittedMsg struct {
	Cliente   string
	Indirizzo string
	Agenzia   string
	APETotal  *decimal.Decimal
}

// TextSubmittedMsg carries the text of a new or edited note or task.
type TextSubmittedMsg struct {
	Kind   Kind
	Target Target
	Text   string
}

// DueDateSubmittedMsg carries a due date for a task.
type DueDateSubmittedMsg struct {
	Target   Target
	Due      time.Time
	Priority model.Priority
	Reminder int
}

// AmountSubmittedMsg carries a payment amount for one role of a stage.
// Gross tells whether Amount is the gross figure rather than the base.
type AmountSubmittedMsg struct {
	Target     Target
	Role       money.Role
	Amount     decimal.Decimal
	Gross      bool
	ApplyCassa bool
	ApplyIVA   bool
}

// StatoSubmittedMsg carries a new case file state.
type StatoSubmittedMsg struct {
	CaseFileID string
	Stato      model.Stato
}

// DeleteTaskConfirmedMsg confirms the deletion of a task.
type DeleteTaskConfirmedMsg struct {
	Target       Target
	DeleteRemote bool
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	cliente   string
	indirizzo string
	agenzia   string
	apeTotal  string

	text string

	date     string
	clock    string
	priority model.Priority
	reminder string

	role       money.Role
	amount     string
	gross      bool
	applyCassa bool
	applyIVA   bool

	stato model.Stato

	confirm      bool
	deleteRemote bool
}

// Model is the Bubble Tea model for the dashboard's input forms.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	kind     Kind
	target   Target
	editMode bool
	loc      *time.Location
	width    int
	height   int
}

// New creates a new form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		loc:    time.Local,
		width:  width,
		height: height,
	}
}

// SetLocation sets the zone due dates are typed in.
func (m *Model) SetLocation(loc *time.Location) {
	m.loc = loc
}

// Kind returns the form currently shown.
func (m Model) Kind() Kind {
	return m.kind
}

func (m *Model) start(kind Kind, target Target, edit bool, form *huh.Form) tea.Cmd {
	m.kind = kind
	m.target = target
	m.editMode = edit
	m.form = form.WithWidth(m.formWidth()).WithHeight(m.formHeight())
	return m.form.Init()
}

// StartNewCaseFile shows the form for a new case file.
func (m *Model) StartNewCaseFile(agencies []string) tea.Cmd {
	*m.fb = formBindings{}

	opts := []huh.Option[string]{huh.NewOption("Nessuna (privato)", "")}
	for _, a := range agencies {
		opts = append(opts, huh.NewOption(a, a))
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Cliente").
			Placeholder("Cognome Nome").
			Value(&m.fb.cliente).
			Validate(validateRequired("Cliente")),
		huh.NewInput().
			Title("Indirizzo").
			Placeholder("Via, civico, comune").
			Value(&m.fb.indirizzo),
		huh.NewSelect[string]().
			Title("Agenzia").
			Options(opts...).
			Value(&m.fb.agenzia),
		huh.NewInput().
			Title("Totale APE").
			Placeholder("solo per APE a forfait (opzionale)").
			Value(&m.fb.apeTotal).
			Validate(validateOptionalAPE),
	))
	return m.start(KindNewCaseFile, Target{}, false, form)
}

// StartNote shows the form for a note. An empty target item adds a new
// note.
func (m *Model) StartNote(target Target, text string) tea.Cmd {
	return m.startText(KindNote, target, text)
}

// StartTask shows the form for a task text.
func (m *Model) StartTask(target Target, text string) tea.Cmd {
	return m.startText(KindTask, target, text)
}

func (m *Model) startText(kind Kind, target Target, text string) tea.Cmd {
	*m.fb = formBindings{text: text}

	var field huh.Field
	if kind == KindNote {
		field = huh.NewText().
			Title("Nota").
			Placeholder("Markdown ammesso").
			Value(&m.fb.text).
			Validate(validateRequired("Nota"))
	} else {
		field = huh.NewInput().
			Title("Attività").
			Placeholder("Cosa c'è da fare?").
			Value(&m.fb.text).
			Validate(validateRequired("Attività"))
	}
	return m.start(kind, target, target.ItemID != "", huh.NewForm(huh.NewGroup(field)))
}

// StartDueDate shows the due-date form for task, prefilled with its
// current schedule.
func (m *Model) StartDueDate(target Target, task model.Task) tea.Cmd {
	*m.fb = formBindings{
		priority: model.PriorityNormal,
		reminder: strconv.Itoa(model.DefaultReminderMinutes),
		clock:    "09:00",
	}
	if task.DueDate != nil {
		local := task.DueDate.In(m.loc)
		m.fb.date = local.Format("2006-01-02")
		m.fb.clock = local.Format("15:04")
	}
	if task.Priority.Valid() {
		m.fb.priority = task.Priority
	}
	if task.Reminder > 0 {
		m.fb.reminder = strconv.Itoa(task.Reminder)
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewNote().
			Title("Scadenza").
			Description(task.Text),
		huh.NewInput().
			Title("Data").
			Placeholder("YYYY-MM-DD").
			Value(&m.fb.date).
			Validate(validateDate),
		huh.NewInput().
			Title("Ora").
			Placeholder("HH:MM").
			Value(&m.fb.clock).
			Validate(validateClock),
		huh.NewSelect[model.Priority]().
			Title("Priorità").
			Options(
				huh.NewOption("Bassa", model.PriorityLow),
				huh.NewOption("Normale", model.PriorityNormal),
				huh.NewOption("Alta", model.PriorityHigh),
			).
			Value(&m.fb.priority),
		huh.NewInput().
			Title("Promemoria (minuti prima)").
			Value(&m.fb.reminder).
			Validate(validateMinutes),
	))
	return m.start(KindDueDate, target, task.DueDate != nil, form)
}

// StartAmount shows the payment form of a stage.
func (m *Model) StartAmount(target Target, p model.PaymentRecord) tea.Cmd {
	*m.fb = formBindings{role: money.RoleCommittente}
	fb := m.fb
	a := p.For(money.RoleCommittente)
	if a != nil {
		m.fb.applyCassa = a.ApplyCassa
		m.fb.applyIVA = a.ApplyIVA
		if !a.Base.IsZero() {
			m.fb.amount = a.Base.StringFixed(2)
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[money.Role]().
				Title("Ruolo").
				Options(
					huh.NewOption("Committente", money.RoleCommittente),
					huh.NewOption("Collaboratore", money.RoleCollaboratore),
					huh.NewOption("Firmatario", money.RoleFirmatario),
				).
				Value(&m.fb.role),
			huh.NewInput().
				Title("Importo").
				Placeholder("1.234,56").
				Value(&m.fb.amount).
				Validate(validateAmount),
			huh.NewConfirm().
				Title("L'importo è lordo?").
				Affirmative("Lordo").
				Negative("Imponibile").
				Value(&m.fb.gross),
			huh.NewConfirm().
				Title("Cassa 5%").
				Value(&m.fb.applyCassa),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("IVA 22%").
				Value(&m.fb.applyIVA),
		).WithHideFunc(func() bool { return !fb.role.AppliesIVA() }),
	)
	return m.start(KindAmount, target, false, form)
}

// StartStato shows the state selector of a case file.
func (m *Model) StartStato(caseFileID string, current model.Stato) tea.Cmd {
	*m.fb = formBindings{stato: current}
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[model.Stato]().
			Title("Stato").
			Options(
				huh.NewOption(model.StatoInCorso.Label(), model.StatoInCorso),
				huh.NewOption(model.StatoInAttesa.Label(), model.StatoInAttesa),
				huh.NewOption(model.StatoCompletata.Label(), model.StatoCompletata),
				huh.NewOption(model.StatoAnnullata.Label(), model.StatoAnnullata),
			).
			Value(&m.fb.stato),
	))
	return m.start(KindStato, Target{CaseFileID: caseFileID}, true, form)
}

// StartDeleteTask asks for confirmation before deleting task. A scheduled
// task also asks whether its calendar event goes with it.
func (m *Model) StartDeleteTask(target Target, task model.Task) tea.Cmd {
	*m.fb = formBindings{deleteRemote: true}
	fields := []huh.Field{
		huh.NewConfirm().
			Title(fmt.Sprintf("Eliminare %q?", task.Text)).
			Affirmative("Elimina").
			Negative("Annulla").
			Value(&m.fb.confirm),
	}
	if task.GoogleCalendarEventID != "" {
		fields = append(fields, huh.NewConfirm().
			Title("Eliminare anche l'evento dal calendario?").
			Value(&m.fb.deleteRemote))
	}
	return m.start(KindDeleteTask, target, true, huh.NewForm(huh.NewGroup(fields...)))
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		submit := m.handleSubmit()
		m.form = nil
		m.kind = KindNone
		return m, submit
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		m.kind = KindNone
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(m.title()) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

func (m Model) title() string {
	switch m.kind {
	case KindNewCaseFile:
		return "Nuova pratica"
	case KindNote:
		if m.editMode {
			return "Modifica nota"
		}
		return "Nuova nota"
	case KindTask:
		if m.editMode {
			return "Modifica attività"
		}
		return "Nuova attività"
	case KindDueDate:
		return "Scadenza attività"
	case KindAmount:
		return "Importi " + string(m.target.Stage)
	case KindStato:
		return "Stato pratica"
	case KindDeleteTask:
		return "Elimina attività"
	}
	return ""
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// handleSubmit turns the bound values into the message for the current
// form. Values were checked by the field validators; a value that still
// fails to parse cancels the form.
func (m Model) handleSubmit() tea.Cmd {
	fb := *m.fb
	target := m.target

	var out tea.Msg
	switch m.kind {
	case KindNewCaseFile:
		msg := CaseFileSubmittedMsg{
			Cliente:   strings.TrimSpace(fb.cliente),
			Indirizzo: strings.TrimSpace(fb.indirizzo),
			Agenzia:   fb.agenzia,
		}
		if strings.TrimSpace(fb.apeTotal) != "" {
			total, err := money.Parse(fb.apeTotal)
			if err != nil {
				return cancel
			}
			msg.APETotal = &total
		}
		out = msg

	case KindNote, KindTask:
		out = TextSubmittedMsg{Kind: m.kind, Target: target, Text: strings.TrimSpace(fb.text)}

	case KindDueDate:
		due, err := ParseDueDate(fb.date, fb.clock, m.loc)
		if err != nil {
			return cancel
		}
		reminder, err := strconv.Atoi(strings.TrimSpace(fb.reminder))
		if err != nil {
			return cancel
		}
		out = DueDateSubmittedMsg{Target: target, Due: due, Priority: fb.priority, Reminder: reminder}

	case KindAmount:
		amount, err := money.Parse(fb.amount)
		if err != nil {
			return cancel
		}
		out = AmountSubmittedMsg{
			Target:     target,
			Role:       fb.role,
			Amount:     amount,
			Gross:      fb.gross,
			ApplyCassa: fb.applyCassa,
			ApplyIVA:   fb.applyIVA && fb.role.AppliesIVA(),
		}

	case KindStato:
		out = StatoSubmittedMsg{CaseFileID: target.CaseFileID, Stato: fb.stato}

	case KindDeleteTask:
		if !fb.confirm {
			return cancel
		}
		out = DeleteTaskConfirmedMsg{Target: target, DeleteRemote: fb.deleteRemote}

	default:
		return nil
	}
	return func() tea.Msg { return out }
}

func cancel() tea.Msg { return CancelMsg{} }

// ParseDueDate combines a YYYY-MM-DD date and an HH:MM time typed in loc.
func ParseDueDate(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "09:00"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q %q: %w", date, clock, err)
	}
	return t, nil
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s è obbligatorio", fieldName)
		}
		return nil
	}
}

func validateDate(s string) error {
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("data non valida, usa YYYY-MM-DD")
	}
	return nil
}

func validateClock(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("ora non valida, usa HH:MM")
	}
	return nil
}

func validateMinutes(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("minuti non validi")
	}
	return nil
}

func validateAmount(s string) error {
	if _, err := money.Parse(s); err != nil {
		return fmt.Errorf("importo non valido")
	}
	return nil
}

func validateOptionalAPE(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := money.Parse(s); err != nil {
		return fmt.Errorf("importo non valido")
	}
	return nil
}
