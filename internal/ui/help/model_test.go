package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/studio-pratiche/internal/keys"
)

func TestView_ListsStagesAndCalendarMarkers(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 120, 40)
	out := m.View()

	assert.Contains(t, out, "Scorciatoie da tastiera")
	assert.Contains(t, out, "Fasi")
	assert.Contains(t, out, "calendario non allineato")
	assert.Contains(t, stageLegend(), " → ")
}
