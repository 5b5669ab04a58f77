package comments

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// ThreadsEvent reports thread changes for one controller.
type ThreadsEvent struct {
	Owner   string
	Added   []*Thread
	Changed []*Thread
	Removed []*Thread
}

// RangesEvent reports that commenting ranges changed.
type RangesEvent struct {
	Owner string

	// Resource is nil when every resource may be affected.
	Resource *uri.URI
}

// RevealEvent asks the workbench to show a thread.
type RevealEvent struct {
	Thread        *Thread
	CommentID     *int
	PreserveFocus bool
	Focus         bool
}

// Service collects the comment controllers of the workbench.
type Service struct {
	mu          sync.RWMutex
	controllers map[string]*Controller

	onDidUpdateThreads *emitter.Emitter[ThreadsEvent]
	onDidChangeRanges  *emitter.Emitter[RangesEvent]
	onDidReveal        *emitter.Emitter[RevealEvent]
}

// NewService creates an empty comment service.
func NewService() *Service {
	return &Service{
		controllers:        make(map[string]*Controller),
		onDidUpdateThreads: emitter.New[ThreadsEvent](),
		onDidChangeRanges:  emitter.New[RangesEvent](),
		onDidReveal:        emitter.New[RevealEvent](),
	}
}

func (s *Service) register(c *Controller) emitter.Disposable {
	owner := c.Owner()
	s.mu.Lock()
	s.controllers[owner] = c
	s.mu.Unlock()
	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		if s.controllers[owner] == c {
			delete(s.controllers, owner)
		}
		s.mu.Unlock()
	})
}

// Controller returns the controller registered under owner.
func (s *Service) Controller(owner string) (*Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[owner]
	return c, ok
}

// Controllers returns every controller sorted by owner.
func (s *Service) Controllers() []*Controller {
	s.mu.RLock()
	out := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner() < out[j].Owner() })
	return out
}

// DocumentComments asks every controller about resource. Controllers that
// fail are skipped; their errors are joined.
func (s *Service) DocumentComments(ctx context.Context, resource uri.URI) ([]DocumentComments, error) {
	var out []DocumentComments
	var errs []error
	for _, c := range s.Controllers() {
		dc, err := c.GetDocumentComments(ctx, resource)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, dc)
	}
	return out, errors.Join(errs...)
}

// OnDidUpdateThreads subscribes to thread changes.
func (s *Service) OnDidUpdateThreads(fn emitter.Listener[ThreadsEvent]) emitter.Disposable {
	return s.onDidUpdateThreads.Subscribe(fn)
}

// OnDidChangeCommentingRanges subscribes to commenting range changes.
func (s *Service) OnDidChangeCommentingRanges(fn emitter.Listener[RangesEvent]) emitter.Disposable {
	return s.onDidChangeRanges.Subscribe(fn)
}

// OnDidRevealThread subscribes to reveal requests.
func (s *Service) OnDidRevealThread(fn emitter.Listener[RevealEvent]) emitter.Disposable {
	return s.onDidReveal.Subscribe(fn)
}

func (s *Service) fireThreads(e ThreadsEvent) { s.onDidUpdateThreads.Fire(e) }
