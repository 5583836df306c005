package chat

import (
	"errors"
)

var (
	// Malformed input from an actor (bad duration string, missing reply target). Reported back, no state change.
	ErrInvalidInput = errors.New("invalid input")
	// Target post, user, or warning is absent.
	ErrNotFound = errors.New("not found")
)
