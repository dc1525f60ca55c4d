package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestRenderWithFrame_KeepsStatusBarOnLastRow(t *testing.T) {
	l := NewLayout(40, 10)
	assert.Equal(t, 8, l.ContentHeight())

	short := l.RenderWithFrame(l.RenderHeader(Header{Title: "Studio"}), "una riga", l.RenderStatusBar("q esci"))
	assert.Equal(t, 10, lipgloss.Height(short))

	long := l.RenderWithFrame(l.RenderHeader(Header{Title: "Studio"}), strings.Repeat("riga\n", 30), l.RenderStatusBar("q esci"))
	assert.Equal(t, 10, lipgloss.Height(long))
	lines := strings.Split(long, "\n")
	assert.Contains(t, lines[len(lines)-1], "q esci")
}

func TestRenderHeader_ShowsBadgeAndFitsWidth(t *testing.T) {
	l := NewLayout(60, 10)

	h := l.RenderHeader(Header{Title: "Studio · Pratiche", Unread: 2, Calendar: "calendario 09:00"})
	assert.Contains(t, h, "2 notifiche")
	assert.Contains(t, h, "calendario 09:00")
	assert.Equal(t, 60, lipgloss.Width(h))

	h = l.RenderHeader(Header{Title: "Studio · Pratiche", Calendar: "calendario"})
	assert.NotContains(t, h, "notifiche")
}

func TestContentHeight_NeverNegative(t *testing.T) {
	assert.Equal(t, 0, NewLayout(10, 1).ContentHeight())
}
