package speech

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// ErrNoProvider indicates no speech provider is registered.
var ErrNoProvider = errors.New("speech: no provider registered")

// Status is the state carried by a session event.
type Status int

// Session statuses.
const (
	StatusStarted Status = iota + 1
	StatusRecognizing
	StatusRecognized
	StatusStopped
	StatusError
)

// Event is one speech session event.
type Event struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
}

// Options configure a session.
type Options struct {
	Language string `json:"language,omitempty"`
}

// Metadata describes a provider.
type Metadata struct {
	DisplayName string `json:"displayName"`
}

// Session delivers events until its context ends.
type Session struct {
	events *emitter.Emitter[Event]
	synth  func(ctx context.Context, text string) error
}

// passive returns a session that never fires.
func passive() *Session {
	return &Session{events: emitter.New[Event]()}
}

// OnDidChange subscribes to session events.
func (s *Session) OnDidChange(fn emitter.Listener[Event]) emitter.Disposable {
	return s.events.Subscribe(fn)
}

// Synthesize speaks text. It is a no-op for sessions that cannot speak.
func (s *Session) Synthesize(ctx context.Context, text string) error {
	if s.synth == nil {
		return nil
	}
	return s.synth(ctx, text)
}

// Provider creates sessions. A provider must return a passive session,
// without side effects, when ctx is already done.
type Provider interface {
	CreateSpeechToTextSession(ctx context.Context, opts Options) *Session
	CreateTextToSpeechSession(ctx context.Context, opts Options) *Session
	CreateKeywordRecognitionSession(ctx context.Context) *Session
}

// Service holds the registered providers.
type Service struct {
	mu        sync.RWMutex
	providers map[string]registered

	onDidChange *emitter.Emitter[struct{}]
}

type registered struct {
	meta     Metadata
	provider Provider
}

// NewService creates an empty speech service.
func NewService() *Service {
	return &Service{providers: make(map[string]registered), onDidChange: emitter.New[struct{}]()}
}

// RegisterProvider adds p under id until the result is disposed.
func (s *Service) RegisterProvider(id string, meta Metadata, p Provider) emitter.Disposable {
	s.mu.Lock()
	s.providers[id] = registered{meta: meta, provider: p}
	s.mu.Unlock()
	s.onDidChange.Fire(struct{}{})

	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		cur, ok := s.providers[id]
		removed := ok && cur.provider == p
		if removed {
			delete(s.providers, id)
		}
		s.mu.Unlock()
		if removed {
			s.onDidChange.Fire(struct{}{})
		}
	})
}

// HasProvider reports whether any provider is registered.
func (s *Service) HasProvider() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.providers) > 0
}

// Providers returns the registered provider ids, sorted.
func (s *Service) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnDidChangeProviders fires when providers come or go.
func (s *Service) OnDidChangeProviders(fn emitter.Listener[struct{}]) emitter.Disposable {
	return s.onDidChange.Subscribe(fn)
}

// provider picks the first provider by id.
func (s *Service) provider() (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.providers) == 0 {
		return nil, ErrNoProvider
	}
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return s.providers[ids[0]].provider, nil
}

// CreateSpeechToTextSession starts recognition. The session ends with ctx.
func (s *Service) CreateSpeechToTextSession(ctx context.Context, opts Options) (*Session, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("speech to text: %w", err)
	}
	return p.CreateSpeechToTextSession(ctx, opts), nil
}

// CreateTextToSpeechSession starts synthesis. The session ends with ctx.
func (s *Service) CreateTextToSpeechSession(ctx context.Context, opts Options) (*Session, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("text to speech: %w", err)
	}
	return p.CreateTextToSpeechSession(ctx, opts), nil
}

// CreateKeywordRecognitionSession listens for the wake word until ctx ends.
func (s *Service) CreateKeywordRecognitionSession(ctx context.Context) (*Session, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("keyword recognition: %w", err)
	}
	return p.CreateKeywordRecognitionSession(ctx), nil
}
