package commands

import "errors"

// Command registry errors.
var (
	// ErrCommandNotFound indicates no handler is registered for the id.
	ErrCommandNotFound = errors.New("commands: command not found")

	// ErrInvalidCommand indicates an empty id or nil handler.
	ErrInvalidCommand = errors.New("commands: invalid command")

	// ErrDuplicateAction indicates the action id is already registered.
	ErrDuplicateAction = errors.New("commands: duplicate action")

	// ErrPreconditionFailed indicates an action's precondition is false.
	ErrPreconditionFailed = errors.New("commands: precondition not met")

	// ErrInvalidMenuItem indicates a menu item without a command or with a bad when clause.
	ErrInvalidMenuItem = errors.New("commands: invalid menu item")
)
