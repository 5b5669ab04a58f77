// Package textmodel provides reference-counted in-memory text models keyed
// by URI.
package textmodel

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// Change describes one value change.
type Change struct {
	Value   string
	Version int

	// Source names who made the change, e.g. SourceUser.
	Source string
}

// Change sources.
const (
	SourceUser    = "user"
	SourceExtHost = "exthost"
)

// Model is a mutable text buffer.
type Model struct {
	uri uri.URI

	mu       sync.RWMutex
	value    string
	version  int
	disposed bool

	onDidChange *emitter.Emitter[Change]
}

// URI returns the model's resource.
func (m *Model) URI() uri.URI { return m.uri }

// Value returns the current text.
func (m *Model) Value() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Version returns the number of changes applied.
func (m *Model) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// SetValue replaces the text. Setting the current value is a no-op.
func (m *Model) SetValue(value, source string) {
	m.mu.Lock()
	if m.disposed || m.value == value {
		m.mu.Unlock()
		return
	}
	m.value = value
	m.version++
	c := Change{Value: value, Version: m.version, Source: source}
	m.mu.Unlock()

	m.onDidChange.Fire(c)
}

// OnDidChange subscribes to value changes.
func (m *Model) OnDidChange(fn emitter.Listener[Change]) emitter.Disposable {
	return m.onDidChange.Subscribe(fn)
}

// Reference is one holder's claim on a model. Dispose releases it.
type Reference struct {
	*Model
	once    sync.Once
	release func()
}

// Dispose releases the reference. The model is dropped when the last
// reference goes.
func (r *Reference) Dispose() { r.once.Do(r.release) }

// Service resolves URIs to shared models.
type Service struct {
	mu     sync.Mutex
	models map[uri.URI]*entry
}

type entry struct {
	model *Model
	refs  int
}

// NewService creates an empty model service.
func NewService() *Service {
	return &Service{models: make(map[uri.URI]*entry)}
}

// Resolve returns a reference to the model for resource, creating an empty
// one if needed.
func (s *Service) Resolve(ctx context.Context, resource uri.URI) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("textmodel: resolve %s: %w", resource, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.models[resource]
	if !ok {
		e = &entry{model: &Model{uri: resource, onDidChange: emitter.New[Change]()}}
		s.models[resource] = e
	}
	e.refs++
	return &Reference{Model: e.model, release: func() { s.release(resource, e) }}, nil
}

func (s *Service) release(resource uri.URI, e *entry) {
	s.mu.Lock()
	e.refs--
	drop := e.refs == 0 && s.models[resource] == e
	if drop {
		delete(s.models, resource)
	}
	s.mu.Unlock()

	if drop {
		e.model.mu.Lock()
		e.model.disposed = true
		e.model.mu.Unlock()
		e.model.onDidChange.Dispose()
	}
}

// Get returns the live model for resource.
func (s *Service) Get(resource uri.URI) (*Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.models[resource]
	if !ok {
		return nil, false
	}
	return e.model, true
}

// Len returns the number of live models.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}
