package terminal

import "errors"

var (
	// ErrShellNotFound is returned when the shell executable cannot be found.
	ErrShellNotFound = errors.New("terminal: shell not found")

	// ErrClosed is returned when writing to a closed terminal.
	ErrClosed = errors.New("terminal: closed")

	// ErrInvalidSize is returned for a resize with zero rows or columns.
	ErrInvalidSize = errors.New("terminal: invalid size")

	// ErrNotResizable is returned when the process has no window size.
	ErrNotResizable = errors.New("terminal: process cannot be resized")
)
