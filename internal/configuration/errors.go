package configuration

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	// ErrUnknownSetting indicates the key is not registered.
	ErrUnknownSetting = errors.New("configuration: unknown setting")

	// ErrAlreadyRegistered indicates a setting key is registered twice.
	ErrAlreadyRegistered = errors.New("configuration: setting already registered")

	// ErrInvalidValue indicates a value fails the setting's schema.
	ErrInvalidValue = errors.New("configuration: invalid value")
)

// ParseError reports a settings file that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("configuration: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
