package scm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// ErrDuplicateRepository indicates a provider registered twice.
var ErrDuplicateRepository = errors.New("scm: repository already registered")

// Repository is a provider as seen by the workbench.
type Repository struct {
	Key      string
	Provider *Provider
}

// Service tracks the open repositories.
type Service struct {
	mu    sync.RWMutex
	repos map[string]*Repository

	onDidAdd    *emitter.Emitter[*Repository]
	onDidRemove *emitter.Emitter[*Repository]
}

// NewService creates an empty repository service.
func NewService() *Service {
	return &Service{
		repos:       make(map[string]*Repository),
		onDidAdd:    emitter.New[*Repository](),
		onDidRemove: emitter.New[*Repository](),
	}
}

// RepositoryKey returns the key a provider is registered under.
func RepositoryKey(p *Provider) string {
	return fmt.Sprintf("%s/%d", p.ID(), p.Handle())
}

// Register adds p. Disposing the result removes it.
func (s *Service) Register(p *Provider) (emitter.Disposable, error) {
	key := RepositoryKey(p)
	repo := &Repository{Key: key, Provider: p}

	s.mu.Lock()
	if _, exists := s.repos[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRepository, key)
	}
	s.repos[key] = repo
	s.mu.Unlock()

	s.onDidAdd.Fire(repo)
	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		removed := s.repos[key] == repo
		if removed {
			delete(s.repos, key)
		}
		s.mu.Unlock()
		if removed {
			s.onDidRemove.Fire(repo)
		}
	}), nil
}

// Repository returns the repository registered under key.
func (s *Service) Repository(key string) (*Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[key]
	return r, ok
}

// Repositories returns every repository sorted by key.
func (s *Service) Repositories() []*Repository {
	s.mu.RLock()
	out := make([]*Repository, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// OnDidAddRepository subscribes to additions.
func (s *Service) OnDidAddRepository(fn emitter.Listener[*Repository]) emitter.Disposable {
	return s.onDidAdd.Subscribe(fn)
}

// OnDidRemoveRepository subscribes to removals.
func (s *Service) OnDidRemoveRepository(fn emitter.Listener[*Repository]) emitter.Disposable {
	return s.onDidRemove.Subscribe(fn)
}

// QuickDiff is a source of original resources for dirty-diff decorations.
type QuickDiff struct {
	Label string

	// RootURI limits the provider to resources under it. Nil matches all.
	RootURI *uri.URI

	Original func(ctx context.Context, u uri.URI) (*uri.URI, error)
}

// QuickDiffService holds the registered quick diff providers.
type QuickDiffService struct {
	mu    sync.RWMutex
	seq   int
	diffs map[int]QuickDiff

	onDidChange *emitter.Emitter[struct{}]
}

// NewQuickDiffService creates an empty service.
func NewQuickDiffService() *QuickDiffService {
	return &QuickDiffService{diffs: make(map[int]QuickDiff), onDidChange: emitter.New[struct{}]()}
}

// Register adds qd until the result is disposed.
func (s *QuickDiffService) Register(qd QuickDiff) emitter.Disposable {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.diffs[id] = qd
	s.mu.Unlock()
	s.onDidChange.Fire(struct{}{})

	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		delete(s.diffs, id)
		s.mu.Unlock()
		s.onDidChange.Fire(struct{}{})
	})
}

// Len returns the number of providers.
func (s *QuickDiffService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diffs)
}

// Labels returns the labels of the providers in registration order.
func (s *QuickDiffService) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.sortedIDsLocked()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.diffs[id].Label
	}
	return out
}

// OnDidChange fires when providers are added or removed.
func (s *QuickDiffService) OnDidChange(fn emitter.Listener[struct{}]) emitter.Disposable {
	return s.onDidChange.Subscribe(fn)
}

// OriginalResource is one provider's answer for a resource.
type OriginalResource struct {
	Label    string
	Original uri.URI
}

// OriginalResources asks every matching provider for the original of u.
// Providers that fail or return nothing are skipped; their errors are joined.
func (s *QuickDiffService) OriginalResources(ctx context.Context, u uri.URI) ([]OriginalResource, error) {
	s.mu.RLock()
	var matched []QuickDiff
	for _, id := range s.sortedIDsLocked() {
		qd := s.diffs[id]
		if qd.RootURI == nil || uri.IsEqualOrParent(u, *qd.RootURI) {
			matched = append(matched, qd)
		}
	}
	s.mu.RUnlock()

	var out []OriginalResource
	var errs []error
	for _, qd := range matched {
		orig, err := qd.Original(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", qd.Label, err))
			continue
		}
		if orig != nil {
			out = append(out, OriginalResource{Label: qd.Label, Original: *orig})
		}
	}
	return out, errors.Join(errs...)
}

func (s *QuickDiffService) sortedIDsLocked() []int {
	ids := make([]int, 0, len(s.diffs))
	for id := range s.diffs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
