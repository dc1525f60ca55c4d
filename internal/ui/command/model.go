package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/model"
	"github.com/nhle/studio-pratiche/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh Name = "refresh"
	Agenda  Name = "agenda"
	Summary Name = "summary"
	New     Name = "new"
	Clear   Name = "clear"
	Stato   Name = "stato"
	Notify  Name = "notifiche"
	Quit    Name = "quit"
)

var commands = []struct {
	name Name
	help string
}{
	{Refresh, "ricarica e verifica il calendario"},
	{Agenda, "attività in scadenza"},
	{Summary, "riepilogo importi"},
	{New, "nuova pratica"},
	{Clear, "azzera i filtri"},
	{Stato, "stato <in_corso|in_attesa|completata|annullata>"},
	{Notify, "segna le notifiche come lette"},
	{Quit, "esci"},
}

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name Name
	Args []string
}

// ErrorMsg is emitted when the typed command cannot be run.
type ErrorMsg struct {
	Err error
}

// Parse turns the palette input into a command.
func Parse(input string) (CommandMsg, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}
	name := Name(strings.ToLower(fields[0]))
	args := fields[1:]

	known := false
	for _, c := range commands {
		if c.name == name {
			known = true
			break
		}
	}
	if !known {
		return CommandMsg{}, fmt.Errorf("unknown command %q", fields[0])
	}

	if name == Stato {
		if len(args) != 1 || !model.Stato(args[0]).Valid() {
			return CommandMsg{}, fmt.Errorf("usage: stato <in_corso|in_attesa|completata|annullata>")
		}
	} else if len(args) > 0 {
		return CommandMsg{}, fmt.Errorf("%s takes no arguments", name)
	}
	return CommandMsg{Name: name, Args: args}, nil
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// NewModel creates a new command palette model.
func NewModel(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "digita un comando..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			parsed, err := Parse(text)
			if err != nil {
				return m, func() tea.Msg { return ErrorMsg{Err: err} }
			}
			return m, func() tea.Msg { return parsed }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Comandi")
	input := m.input.View()

	var hints []string
	for _, c := range commands {
		hints = append(hints, theme.DimmedStyle.Render(fmt.Sprintf("%-10s %s", c.name, c.help)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, input, "", strings.Join(hints, "\n"))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
