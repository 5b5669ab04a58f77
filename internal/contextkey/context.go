package contextkey

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// Context supplies key values to expressions.
type Context interface {
	Value(key string) (any, bool)
}

// Map is a read-only Context backed by a map.
type Map map[string]any

// Value implements Context.
func (m Map) Value(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Set is a mutable, concurrency-safe Context.
type Set struct {
	mu       sync.RWMutex
	values   map[string]any
	onChange *emitter.Emitter[[]string]
}

// NewSet creates an empty key set.
func NewSet() *Set {
	return &Set{
		values:   make(map[string]any),
		onChange: emitter.New[[]string](),
	}
}

// Value implements Context.
func (s *Set) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and fires a change event.
func (s *Set) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	s.onChange.Fire([]string{key})
}

// Delete removes a key.
func (s *Set) Delete(key string) {
	s.mu.Lock()
	_, ok := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if ok {
		s.onChange.Fire([]string{key})
	}
}

// Keys returns the defined keys, sorted.
func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the current values.
func (s *Set) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(Map, len(s.values))
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// OnDidChange subscribes to key changes.
func (s *Set) OnDidChange(fn emitter.Listener[[]string]) emitter.Disposable {
	return s.onChange.Subscribe(fn)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// stringify renders a key value for comparison with a literal.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func contains(list any, item string) bool {
	switch l := list.(type) {
	case []string:
		for _, s := range l {
			if s == item {
				return true
			}
		}
	case []any:
		for _, s := range l {
			if stringify(s) == item {
				return true
			}
		}
	case map[string]bool:
		return l[item]
	case map[string]any:
		_, ok := l[item]
		return ok
	}
	return false
}
