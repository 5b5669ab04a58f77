package configuration

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// Registry holds setting definitions.
type Registry struct {
	mu       sync.RWMutex
	settings map[string]*Setting

	onDidRegister *emitter.Emitter[[]string]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		settings:      make(map[string]*Setting),
		onDidRegister: emitter.New[[]string](),
	}
}

// NewRegistryWithDefaults creates a registry holding the built-in settings.
func NewRegistryWithDefaults() *Registry {
	r := NewRegistry()
	for _, s := range BuiltinSettings() {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds settings. Registration is all or nothing.
func (r *Registry) Register(settings ...Setting) error {
	r.mu.Lock()
	keys := make([]string, 0, len(settings))
	for _, s := range settings {
		if s.Key == "" {
			r.mu.Unlock()
			return fmt.Errorf("%w: empty key", ErrUnknownSetting)
		}
		if _, exists := r.settings[s.Key]; exists {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, s.Key)
		}
	}
	for _, s := range settings {
		r.settings[s.Key] = &s
		keys = append(keys, s.Key)
	}
	r.mu.Unlock()

	r.onDidRegister.Fire(keys)
	return nil
}

// Get returns the setting for key.
func (r *Registry) Get(key string) (*Setting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[key]
	return s, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// All returns every setting sorted by key.
func (r *Registry) All() []*Setting {
	r.mu.RLock()
	out := make([]*Setting, 0, len(r.settings))
	for _, s := range r.settings {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Section returns the settings under a key prefix, e.g. "remote".
func (r *Registry) Section(prefix string) []*Setting {
	var out []*Setting
	for _, s := range r.All() {
		if s.Key == prefix || strings.HasPrefix(s.Key, prefix+".") {
			out = append(out, s)
		}
	}
	return out
}

// Defaults returns the default of every setting that has one.
func (r *Registry) Defaults() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.settings))
	for k, s := range r.settings {
		if d := s.Default(); d != nil {
			out[k] = d
		}
	}
	return out
}

// OnDidRegister subscribes to new settings.
func (r *Registry) OnDidRegister(fn emitter.Listener[[]string]) emitter.Disposable {
	return r.onDidRegister.Subscribe(fn)
}
