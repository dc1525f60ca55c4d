package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no valid calendar token is available; the
	// user has to reconnect the calendar.
	ErrUnauthenticated = errors.New("calendar not authenticated")

	// ErrNotFound means the event (or calendar) does not exist remotely.
	ErrNotFound = errors.New("calendar event not found")
)

// RemoteError is any other failed calendar call. Re-issuing the user
// action is the only retry.
type RemoteError struct {
	StatusCode int // zero for transport failures
	Method     string
	Path       string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 || e.Message == "" {
		return fmt.Sprintf("calendar %s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("calendar %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemoteError reports whether err (or any error in its chain) is a
// RemoteError.
func IsRemoteError(err error) bool {
	var rErr *RemoteError
	return errors.As(err, &rErr)
}
