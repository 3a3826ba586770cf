package engine

import (
	"errors"
	"fmt"
)

// Error represents an engine-level abort reason.
//
// These are precondition failures (entry not found, caller is not the owner,
// etc.) as opposed to infrastructure errors (backend I/O, exhausted budget).
// A call that fails with an *Error had no effect on any cell.
type Error struct {
	// Op is the operation that failed (e.g. "UpdateFile")
	Op string

	// Code is the error category
	Code ErrorCode

	// EntryID is the entry the operation targeted, when there is one
	EntryID uint64

	// Message is a human-readable error description
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s %d: %s", e.Op, e.EntryID, msg)
}

// CodeName returns the snake_case code, used as a metrics label.
func (e *Error) CodeName() string {
	return e.Code.snake()
}

// ErrorCode represents the category of an engine error.
type ErrorCode int

const (
	// ErrAlreadyExists indicates a create on an id whose entry exists
	ErrAlreadyExists ErrorCode = iota

	// ErrNotFound indicates the entry (or namespace) does not exist
	ErrNotFound

	// ErrNotOwner indicates the caller is not the recorded owner
	ErrNotOwner

	// ErrTypeMismatch indicates a file-only operation on a directory
	ErrTypeMismatch

	// ErrInvalidTarget indicates a directory whose target is null or the
	// namespace itself
	ErrInvalidTarget

	// ErrSizeOverflow indicates a body extent wider than the size field
	ErrSizeOverflow

	// ErrNameTooLong indicates a name longer than MaxNameLength
	ErrNameTooLong

	// ErrNotEmpty indicates a namespace that still holds entries
	ErrNotEmpty

	// ErrCycle indicates a directory chain leading back onto itself
	ErrCycle
)

var codeNames = [...]struct{ pascal, snake string }{
	ErrAlreadyExists: {"AlreadyExists", "already_exists"},
	ErrNotFound:      {"NotFound", "not_found"},
	ErrNotOwner:      {"NotOwner", "not_owner"},
	ErrTypeMismatch:  {"TypeMismatch", "type_mismatch"},
	ErrInvalidTarget: {"InvalidTarget", "invalid_target"},
	ErrSizeOverflow:  {"SizeOverflow", "size_overflow"},
	ErrNameTooLong:   {"NameTooLong", "name_too_long"},
	ErrNotEmpty:      {"NotEmpty", "not_empty"},
	ErrCycle:         {"Cycle", "cycle"},
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
	return codeNames[c].pascal
}

func (c ErrorCode) snake() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "unknown"
	}
	return codeNames[c].snake
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(op string, code ErrorCode, id uint64, format string, args ...any) *Error {
	return &Error{Op: op, Code: code, EntryID: id, Message: fmt.Sprintf(format, args...)}
}
