package configuration

import (
	"fmt"
	"strings"

	"github.com/dshills/extbridge/internal/jsonschema"
)

// Scope says where a setting may be set.
type Scope int

const (
	// ScopeWindow settings apply to a whole window. This is the default.
	ScopeWindow Scope = iota

	// ScopeApplication settings apply to every window and ignore workspace overrides.
	ScopeApplication

	// ScopeMachine settings are specific to the machine.
	ScopeMachine

	// ScopeResource settings may vary per folder.
	ScopeResource
)

func (s Scope) String() string {
	switch s {
	case ScopeApplication:
		return "application"
	case ScopeMachine:
		return "machine"
	case ScopeResource:
		return "resource"
	default:
		return "window"
	}
}

// Setting describes one contributed setting.
type Setting struct {
	// Key is the dotted identifier, e.g. "workbench.startupEditor".
	Key    string
	Schema *jsonschema.Schema
	Scope  Scope
	Tags   []string
}

// Default returns the schema default.
func (s *Setting) Default() any {
	if s.Schema == nil {
		return nil
	}
	return s.Schema.Default
}

// Section returns the first key segment.
func (s *Setting) Section() string {
	if i := strings.IndexByte(s.Key, '.'); i >= 0 {
		return s.Key[:i]
	}
	return s.Key
}

// Validate checks value against the schema.
func (s *Setting) Validate(value any) error {
	if s.Schema == nil {
		return nil
	}
	if err := s.Schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, s.Key, err)
	}
	return nil
}
