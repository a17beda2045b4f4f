package main

import (
	"errors"

	"fractalnote/internal/domain"
	"fractalnote/internal/store"
)

// Process exit codes, one per error kind a script may want to branch on
const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalid     = 2
	exitNotFound    = 3
	exitConflict    = 4
	exitNotEditable = 5
	exitViolation   = 6
	exitLocked      = 7
)

// ExitCode maps a command error to the process exit code. ErrNoChanges is
// not a failure: the store is already in the requested state.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, domain.ErrNoChanges):
		return exitOK
	case errors.Is(err, domain.ErrInvalidArgument):
		return exitInvalid
	case errors.Is(err, domain.ErrNotFound):
		return exitNotFound
	case errors.Is(err, domain.ErrConflict):
		return exitConflict
	case errors.Is(err, domain.ErrNotEditable):
		return exitNotEditable
	case errors.Is(err, domain.ErrLogicViolation):
		return exitViolation
	case errors.Is(err, store.ErrLockTimeout):
		return exitLocked
	default:
		return exitFailure
	}
}
