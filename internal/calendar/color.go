package calendar

import "github.com/nhle/studio-pratiche/internal/model"

// Event colour ids of the Google Calendar palette.
const (
	ColorSage      = "2"
	ColorBanana    = "5"
	ColorTomato    = "11"
	DefaultColorID = ColorBanana
)

// ColorForPriority maps a task priority to an event colour.
func ColorForPriority(p model.Priority) string {
	switch p {
	case model.PriorityLow:
		return ColorSage
	case model.PriorityHigh:
		return ColorTomato
	}
	return DefaultColorID
}
