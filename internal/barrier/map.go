package barrier

import (
	"context"
	"sync"

	"github.com/dshills/extbridge/internal/handle"
)

// Map holds one barrier per handle.
type Map struct {
	mu       sync.Mutex
	barriers map[int]*Barrier
}

// NewMap creates an empty barrier map.
func NewMap() *Map {
	return &Map{barriers: make(map[int]*Barrier)}
}

// Create installs a fresh closed barrier for h, replacing any previous one.
func (m *Map) Create(h int) *Barrier {
	b := New()
	m.mu.Lock()
	m.barriers[h] = b
	m.mu.Unlock()
	return b
}

// Get returns the barrier for h.
func (m *Map) Get(h int) (*Barrier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.barriers[h]
	return b, ok
}

// Open opens the barrier for h. It reports whether h was known.
func (m *Map) Open(h int) bool {
	b, ok := m.Get(h)
	if ok {
		b.Open()
	}
	return ok
}

// Run schedules fn behind the barrier for h.
// It returns false, without running fn, when h has no barrier.
func (m *Map) Run(h int, fn func()) bool {
	b, ok := m.Get(h)
	if !ok {
		return false
	}
	b.Run(fn)
	return true
}

// Wait blocks until the barrier for h opens.
func (m *Map) Wait(ctx context.Context, h int) error {
	b, ok := m.Get(h)
	if !ok {
		return handle.Unknown("barrier", h)
	}
	return b.Wait(ctx)
}

// Delete removes the barrier for h. Later Run calls for h are dropped.
func (m *Map) Delete(h int) {
	m.mu.Lock()
	delete(m.barriers, h)
	m.mu.Unlock()
}

// DeleteIf removes the barrier for h only while it is still b.
// It reports whether b was removed.
func (m *Map) DeleteIf(h int, b *Barrier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.barriers[h] != b {
		return false
	}
	delete(m.barriers, h)
	return true
}

// Len returns the number of tracked handles.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.barriers)
}
