// Package handle provides arenas of local objects keyed by the integer
// handles the extension host assigns.
//
// Handles are only unique within one Registry. The extension host never
// reuses a handle while the remote object is alive, so a Registry never needs
// to reconcile two live owners of the same key.
package handle

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// ErrUnknownHandle indicates an operation named a handle with no local object.
var ErrUnknownHandle = errors.New("handle: unknown handle")

// Unknown wraps ErrUnknownHandle with the namespace and handle.
func Unknown(namespace string, h int) error {
	return fmt.Errorf("%w: %s %d", ErrUnknownHandle, namespace, h)
}

// Registry maps handles to disposable local objects.
type Registry[T emitter.Disposable] struct {
	mu    sync.RWMutex
	items map[int]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T emitter.Disposable]() *Registry[T] {
	return &Registry[T]{
		items: make(map[int]T),
	}
}

// Register stores v under h. A value already registered under h is disposed.
func (r *Registry[T]) Register(h int, v T) {
	r.mu.Lock()
	prev, exists := r.items[h]
	r.items[h] = v
	r.mu.Unlock()

	if exists {
		prev.Dispose()
	}
}

// Get returns the value registered under h.
func (r *Registry[T]) Get(h int) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[h]
	return v, ok
}

// Has reports whether h is registered.
func (r *Registry[T]) Has(h int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[h]
	return ok
}

// Unregister removes and disposes the value under h.
// It reports whether a value was registered.
func (r *Registry[T]) Unregister(h int) bool {
	r.mu.Lock()
	v, ok := r.items[h]
	delete(r.items, h)
	r.mu.Unlock()

	if ok {
		v.Dispose()
	}
	return ok
}

// UnregisterIf removes and disposes the value under h when match accepts
// it. It reports whether a value was removed.
func (r *Registry[T]) UnregisterIf(h int, match func(T) bool) bool {
	r.mu.Lock()
	v, ok := r.items[h]
	if !ok || !match(v) {
		r.mu.Unlock()
		return false
	}
	delete(r.items, h)
	r.mu.Unlock()

	v.Dispose()
	return true
}

// Handles returns the registered handles in ascending order.
func (r *Registry[T]) Handles() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := make([]int, 0, len(r.items))
	for h := range r.items {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	return hs
}

// Values returns the registered values ordered by handle.
func (r *Registry[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := make([]int, 0, len(r.items))
	for h := range r.items {
		hs = append(hs, h)
	}
	sort.Ints(hs)

	vs := make([]T, 0, len(hs))
	for _, h := range hs {
		vs = append(vs, r.items[h])
	}
	return vs
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Dispose disposes every value and empties the registry.
func (r *Registry[T]) Dispose() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[int]T)
	r.mu.Unlock()

	hs := make([]int, 0, len(items))
	for h := range items {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	for _, h := range hs {
		items[h].Dispose()
	}
}
