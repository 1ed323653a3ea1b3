package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a command targets a session that was never started.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the chapter has no quiz content.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidTransition is returned when a command is not valid in the current session state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoHintsRemaining indicates every hint of the current question is already revealed.
	ErrNoHintsRemaining = errors.New("no hints remaining")
	// ErrInvalidResponse indicates a response whose shape does not match the question kind.
	ErrInvalidResponse = errors.New("response does not match question kind")
	// ErrInvalidInput covers other malformed input rejected at a boundary.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRecordNotFound indicates the remote store has nothing for an identity.
	ErrRecordNotFound = errors.New("progress record not found")
	// ErrUnauthorized is returned by admin endpoints without a valid token.
	ErrUnauthorized = errors.New("unauthorized")
)
