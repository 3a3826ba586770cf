package cell

import "errors"

// ============================================================================
// Standard Cell Store Errors
// ============================================================================

// These errors are shared by every backend implementation. Backends wrap them
// with context:
//
//	return fmt.Errorf("store %s: %w", addr, cell.ErrReadOnly)

var (
	// ErrReadOnly is returned when Store is called on a transaction opened by
	// View.
	ErrReadOnly = errors.New("cell transaction is read-only")

	// ErrBudgetExhausted is returned by a Meter once the per-call budget has
	// been consumed. The enclosing Update is aborted with no effect.
	ErrBudgetExhausted = errors.New("call budget exhausted")

	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("cell backend is closed")

	// ErrCorruptCell is returned when a backend finds a stored value that is
	// not exactly WordSize bytes long.
	ErrCorruptCell = errors.New("corrupt cell value")
)
