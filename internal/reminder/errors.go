package reminder

import "errors"

// Domain errors for the reminder module.
var (
	ErrAccessNotFound  = errors.New("form access not found")
	ErrAlreadyTerminal = errors.New("form access already in a terminal state")
)
