package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/studio-pratiche/internal/theme"
)

// Layout splits the terminal into a one-line header, the content area and
// a one-line status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left between header and status bar.
func (l Layout) ContentHeight() int {
	if h := l.Height - 2; h > 0 {
		return h
	}
	return 0
}

// Header is what the top bar shows.
type Header struct {
	Title    string
	Unread   int    // unread calendar notifications
	Calendar string // connection or last-poll status
	Warning  bool   // render the calendar status as an alert
}

// RenderHeader renders the title on the left and the notification badge
// plus calendar status on the right. The title is cut first when the
// terminal is too narrow.
func (l Layout) RenderHeader(h Header) string {
	var right []string
	if h.Unread > 0 {
		right = append(right, theme.BadgeStyle.Render(fmt.Sprintf("%d notifiche", h.Unread)))
	}
	if h.Calendar != "" {
		style := theme.HeaderStyle
		if h.Warning {
			style = theme.AlertStyle
		}
		right = append(right, style.Render(h.Calendar))
	}
	status := lipgloss.JoinHorizontal(lipgloss.Top, right...)

	room := l.Width - lipgloss.Width(status)
	if room < 0 {
		room = 0
	}
	title := theme.HeaderStyle.
		Width(room).
		MaxWidth(room).
		Render(h.Title)

	return lipgloss.JoinHorizontal(lipgloss.Top, title, status)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.renderBar(theme.StatusBarStyle, hints)
}

// RenderAlert renders the bottom bar as an error line, used when a write
// or a calendar call failed.
func (l Layout) RenderAlert(msg string) string {
	return l.renderBar(theme.AlertStyle, msg)
}

func (l Layout) renderBar(style lipgloss.Style, text string) string {
	// Keep the bar on a single row.
	text = strings.ReplaceAll(text, "\n", " ")
	return style.Width(l.Width).MaxWidth(l.Width).MaxHeight(1).Render(text)
}

// RenderWithFrame stacks header, content and status bar. The content is
// padded or cut to ContentHeight so the status bar stays on the last row.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	body := lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}
