package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the tree store. Callers match them with
// errors.Is; storage-layer errors never escape without one of these or a
// wrapping message.
var (
	// ErrNotFound is returned when a referenced node or relation is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the client's version token is stale.
	ErrConflict = errors.New("version conflict")

	// ErrNoChanges is returned when a mutation would not change anything.
	ErrNoChanges = errors.New("no changes")

	// ErrNotEditable is returned when content is written to a rich or read-only node.
	ErrNotEditable = errors.New("node is not editable")

	// ErrInvalidArgument is returned for out-of-range ids and cyclic moves.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLogicViolation is returned when a mutation would break the tree shape,
	// such as deleting the only top-level node.
	ErrLogicViolation = errors.New("logic violation")
)

// ConflictError carries the current title of the contested node so the
// client can show what changed underneath it.
type ConflictError struct {
	Title string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %q was changed by someone else", ErrConflict, e.Title)
}

// Is reports ErrConflict as the error's kind
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotEditableError records both flags so the caller can explain the refusal
type NotEditableError struct {
	IsRich     bool
	IsReadOnly bool
}

func (e *NotEditableError) Error() string {
	switch {
	case e.IsReadOnly && e.IsRich:
		return fmt.Sprintf("%s: read-only rich text node", ErrNotEditable)
	case e.IsReadOnly:
		return fmt.Sprintf("%s: read-only node", ErrNotEditable)
	default:
		return fmt.Sprintf("%s: rich text node", ErrNotEditable)
	}
}

// Is reports ErrNotEditable as the error's kind
func (e *NotEditableError) Is(target error) bool {
	return target == ErrNotEditable
}

// NotFoundf wraps ErrNotFound with a description of the missing entity
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidArgumentf wraps ErrInvalidArgument with a description
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
