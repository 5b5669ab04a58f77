package mainthread

import (
	"encoding/json"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/handle"
)

// Range is a 1-based editor range.
type Range struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

// ContainsLine reports whether line falls inside r.
func (r Range) ContainsLine(line int) bool {
	return line >= r.StartLineNumber && line <= r.EndLineNumber
}

// Command is a command reference sent by the extension host.
type Command struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Tooltip   string            `json:"tooltip,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// Observable is a value with a change event.
type Observable[T any] struct {
	mu          sync.RWMutex
	value       T
	onDidChange *emitter.Emitter[T]
}

// NewObservable creates an observable holding v.
func NewObservable[T any](v T) *Observable[T] {
	return &Observable[T]{value: v, onDidChange: emitter.New[T]()}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set stores v and fires the change event.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	o.mu.Unlock()
	o.onDidChange.Fire(v)
}

// OnDidChange subscribes to changes.
func (o *Observable[T]) OnDidChange(fn emitter.Listener[T]) emitter.Disposable {
	return o.onDidChange.Subscribe(fn)
}

// Dispose removes every listener.
func (o *Observable[T]) Dispose() { o.onDidChange.Dispose() }

// DropUnknown logs a push for a handle with no local object.
func DropUnknown(log pslog.Logger, namespace string, h int, method string) {
	log.Warn("dropping message for unknown handle", "method", method, "error", handle.Unknown(namespace, h))
}
