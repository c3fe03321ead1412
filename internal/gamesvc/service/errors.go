package service

import (
	"errors"
	"fmt"
)

var (
	ErrGameNotFound        = errors.New("game not found")
	ErrGameEnded           = errors.New("game already ended")
	ErrSlotTaken           = errors.New("team slot already taken")
	ErrAlreadyRevealed     = errors.New("cell already revealed")
	ErrAlreadyJoined       = errors.New("player already in game")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOpeningInProgress   = errors.New("case opening already in progress")
)

// ValidationError rejects a malformed creation request. The original engine
// dropped these silently; returning them typed lets callers tell a bad
// request from an internal failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
