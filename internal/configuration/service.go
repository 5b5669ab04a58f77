package configuration

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
)

// ChangeEvent lists the keys whose effective value changed.
type ChangeEvent struct {
	Keys   []string
	Source string
}

// Affects reports whether key, or a key beneath it, changed.
func (e ChangeEvent) Affects(key string) bool {
	for _, k := range e.Keys {
		if k == key || (len(k) > len(key) && k[:len(key)] == key && k[len(key)] == '.') {
			return true
		}
	}
	return false
}

// Service resolves effective setting values: the user's value when set,
// otherwise the default.
type Service struct {
	registry *Registry
	log      pslog.Logger

	mu   sync.RWMutex
	user map[string]any

	onDidChange *emitter.Emitter[ChangeEvent]
}

// NewService creates a service over registry.
func NewService(registry *Registry, log pslog.Logger) *Service {
	return &Service{
		registry:    registry,
		log:         logx.WithComponent(logx.OrDefault(log), "configuration"),
		user:        make(map[string]any),
		onDidChange: emitter.New[ChangeEvent](),
	}
}

// Registry returns the setting registry.
func (s *Service) Registry() *Registry { return s.registry }

// Get returns the effective value of key, or nil for unknown keys.
func (s *Service) Get(key string) any {
	s.mu.RLock()
	v, ok := s.user[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	if setting, ok := s.registry.Get(key); ok {
		return setting.Default()
	}
	return nil
}

// GetString returns the effective value as a string, or "".
func (s *Service) GetString(key string) string {
	v, _ := s.Get(key).(string)
	return v
}

// GetBool returns the effective value as a bool, or false.
func (s *Service) GetBool(key string) bool {
	v, _ := s.Get(key).(bool)
	return v
}

// Inspection shows the layers behind an effective value.
type Inspection struct {
	Key     string
	Default any
	User    any
	HasUser bool
}

// Inspect returns the default and user layers of key.
func (s *Service) Inspect(key string) (Inspection, error) {
	setting, ok := s.registry.Get(key)
	if !ok {
		return Inspection{}, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	s.mu.RLock()
	user, has := s.user[key]
	s.mu.RUnlock()
	return Inspection{Key: key, Default: setting.Default(), User: user, HasUser: has}, nil
}

// Update sets the user value of a registered key after validating it.
func (s *Service) Update(key string, value any) error {
	setting, ok := s.registry.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := setting.Validate(value); err != nil {
		return err
	}

	s.mu.Lock()
	old, had := s.user[key]
	s.user[key] = value
	s.mu.Unlock()

	if !had || !reflect.DeepEqual(old, value) {
		s.onDidChange.Fire(ChangeEvent{Keys: []string{key}, Source: "update"})
	}
	return nil
}

// Reset removes the user value of key.
func (s *Service) Reset(key string) {
	s.mu.Lock()
	_, had := s.user[key]
	delete(s.user, key)
	s.mu.Unlock()

	if had {
		s.onDidChange.Fire(ChangeEvent{Keys: []string{key}, Source: "reset"})
	}
}

// Apply replaces every user value with values. Invalid or unknown entries
// are skipped, logged and returned joined; the valid rest is applied.
func (s *Service) Apply(values map[string]any, source string) error {
	accepted := make(map[string]any, len(values))
	var errs []error
	for key, v := range values {
		setting, ok := s.registry.Get(key)
		if !ok {
			s.log.Warn("ignoring unknown setting", "key", key, "source", source)
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownSetting, key))
			continue
		}
		if err := setting.Validate(v); err != nil {
			s.log.Warn("ignoring invalid setting", "key", key, "source", source, "error", err)
			errs = append(errs, err)
			continue
		}
		accepted[key] = v
	}

	s.mu.Lock()
	var changed []string
	for key, v := range accepted {
		if old, ok := s.user[key]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, key)
		}
	}
	for key := range s.user {
		if _, ok := accepted[key]; !ok {
			changed = append(changed, key)
		}
	}
	s.user = accepted
	s.mu.Unlock()

	if len(changed) > 0 {
		sort.Strings(changed)
		s.onDidChange.Fire(ChangeEvent{Keys: changed, Source: source})
	}
	return joinErrors(errs)
}

// UserValues returns a copy of the user layer.
func (s *Service) UserValues() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.user))
	for k, v := range s.user {
		out[k] = v
	}
	return out
}

// OnDidChange subscribes to effective value changes.
func (s *Service) OnDidChange(fn emitter.Listener[ChangeEvent]) emitter.Disposable {
	return s.onDidChange.Subscribe(fn)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return fmt.Errorf("configuration: %d settings rejected: %w", len(errs), errors.Join(errs...))
}
