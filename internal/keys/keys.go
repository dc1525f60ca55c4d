package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down      key.Binding
	Up        key.Binding
	NextStage key.Binding
	PrevStage key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Search
	Search key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Views
	New     key.Binding
	Agenda  key.Binding
	Summary key.Binding

	// List filters
	CycleStato key.Binding

	// Stage actions
	ToggleCompleted key.Binding
	EditAmount      key.Binding
	AddNote         key.Binding
	AddTask         key.Binding
	EditItem        key.Binding
	ToggleTask      key.Binding
	DeleteItem      key.Binding
	DueDate         key.Binding
	RemoveDueDate   key.Binding
	SetStato        key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		NextStage: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "next stage"),
		),
		PrevStage: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "previous stage"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open pratica"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new pratica"),
		),
		Agenda: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "agenda"),
		),
		Summary: key.NewBinding(
			key.WithKeys("$"),
			key.WithHelp("$", "amounts summary"),
		),
		CycleStato: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "filter by stato"),
		),
		ToggleCompleted: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "toggle stage completed"),
		),
		EditAmount: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "edit amount"),
		),
		AddNote: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "add note"),
		),
		AddTask: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add task"),
		),
		EditItem: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit text"),
		),
		ToggleTask: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "toggle task"),
		),
		DeleteItem: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "delete item"),
		),
		DueDate: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "set due date"),
		),
		RemoveDueDate: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "remove due date"),
		),
		SetStato: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "change stato"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help, k.Search,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextStage, k.PrevStage, k.Select, k.Back, k.Quit},
		{k.Search, k.Command, k.Help, k.Refresh, k.CycleStato},
		{k.New, k.Agenda, k.Summary, k.SetStato},
		{k.ToggleCompleted, k.EditAmount, k.AddNote, k.AddTask, k.EditItem},
		{k.ToggleTask, k.DeleteItem, k.DueDate, k.RemoveDueDate},
	}
}
