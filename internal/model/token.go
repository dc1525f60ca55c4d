package model

import "time"

// CalendarToken is the calendar-scoped grant, held apart from the
// application session.
type CalendarToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserEmail    string    `json:"user_email"`
}

// Complete reports whether every field needed for API calls is present.
func (t *CalendarToken) Complete() bool {
	return t != nil &&
		t.AccessToken != "" &&
		t.RefreshToken != "" &&
		t.UserEmail != "" &&
		!t.ExpiresAt.IsZero()
}
