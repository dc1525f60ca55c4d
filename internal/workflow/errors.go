package workflow

import "errors"

// Validation errors. An operation that returns one of these leaves the
// case file untouched.
var (
	ErrEmptyNote       = errors.New("note text is empty")
	ErrEmptyTask       = errors.New("task text is empty")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrItemNotFound    = errors.New("item not found")
	ErrUnknownStage    = errors.New("unknown stage")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidValue    = errors.New("invalid value for field")
)
