package jsonschema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("jsonschema: invalid value")

// ValidationError is a single failure at a path.
type ValidationError struct {
	// Path is dot-separated with [i] for array indices; empty for the root.
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects failures from one validation.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrInvalid) true.
func (e ValidationErrors) Is(target error) bool { return target == ErrInvalid }

// At returns the failures at exactly path.
func (e ValidationErrors) At(path string) []*ValidationError {
	var out []*ValidationError
	for _, err := range e {
		if err.Path == path {
			out = append(out, err)
		}
	}
	return out
}

func (e *ValidationErrors) add(path, format string, args ...any) {
	*e = append(*e, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}
