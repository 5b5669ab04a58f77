// Package emitter provides typed change notification and disposable resources.
//
// An Emitter delivers each fired value synchronously to its listeners in the
// order they subscribed. Subscriptions and other owned resources implement
// Disposable; a Store collects them so an owner can release everything at once.
package emitter

import (
	"sort"
	"sync"
)

// Disposable is a resource that can be released.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable. The function runs at most once.
func DisposableFunc(fn func()) Disposable {
	return &funcDisposable{fn: fn}
}

type funcDisposable struct {
	once sync.Once
	fn   func()
}

func (d *funcDisposable) Dispose() {
	d.once.Do(func() {
		if d.fn != nil {
			d.fn()
		}
	})
}

// None is a Disposable that does nothing.
var None Disposable = DisposableFunc(nil)

// Listener receives fired values.
type Listener[T any] func(T)

// Emitter fans a value out to subscribed listeners.
type Emitter[T any] struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener[T]
	nextID    uint64
	disposed  bool
}

// New creates an emitter.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{
		listeners: make(map[uint64]Listener[T]),
	}
}

// Subscribe registers a listener. Disposing the result removes it.
// Subscribing to a disposed emitter returns a no-op Disposable.
func (e *Emitter[T]) Subscribe(fn Listener[T]) Disposable {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return None
	}
	if e.listeners == nil {
		e.listeners = make(map[uint64]Listener[T])
	}

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn

	return DisposableFunc(func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	})
}

// Fire delivers v to every listener registered at the time of the call.
func (e *Emitter[T]) Fire(v T) {
	e.mu.RLock()
	if e.disposed || len(e.listeners) == 0 {
		e.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener[T], 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.RUnlock()

	// Listeners run without the lock so they may subscribe or fire again.
	for _, fn := range fns {
		fn(v)
	}
}

// HasListeners reports whether any listener is subscribed.
func (e *Emitter[T]) HasListeners() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners) > 0
}

// Dispose removes all listeners. Later Fire calls are ignored.
func (e *Emitter[T]) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.listeners = nil
}

// Store owns a set of disposables.
type Store struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

// Add registers d with the store and returns it. Adding to a disposed store
// disposes d immediately.
func (s *Store) Add(d Disposable) Disposable {
	if d == nil {
		return None
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		d.Dispose()
		return d
	}
	s.items = append(s.items, d)
	s.mu.Unlock()
	return d
}

// Dispose releases every item in reverse order of addition.
func (s *Store) Dispose() {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.disposed = true
	s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}

// IsDisposed reports whether Dispose has been called.
func (s *Store) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
