package cnst

import "errors"

var (
	// ErrUnauthorized is returned when no access token can be obtained
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTabNotFound is returned when no state is tracked for a tab id
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoConnection is returned when a tab has no registered connection
	ErrNoConnection = errors.New("no connection registered for tab")
	// ErrQuestionInFlight is returned when a tab already has a streaming
	// answer in progress
	ErrQuestionInFlight = errors.New("a question is already in flight")
)
