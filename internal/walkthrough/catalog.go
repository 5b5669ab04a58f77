package walkthrough

import (
	"fmt"
	"sort"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
)

// Completion event prefixes.
const (
	// EventOnCommand completes a step when the named command runs.
	EventOnCommand = "onCommand:"

	// EventOnSettingChanged completes a step when the named setting changes.
	EventOnSettingChanged = "onSettingChanged:"

	// EventOnStepSelected completes a step when it is opened.
	EventOnStepSelected = "onStepSelected"
)

// Step is one item in a walkthrough.
type Step struct {
	ID    string
	Title string

	// Media is the content module shown with the step.
	Media string

	// CompletionEvents mark the step done, e.g. "onCommand:git.clone".
	CompletionEvents []string
}

// Walkthrough is an ordered list of steps.
type Walkthrough struct {
	ID    string
	Title string
	Steps []Step
}

// Service combines the content registry, the walkthrough catalog and
// progress tracking.
type Service struct {
	Content  *ContentRegistry
	Progress *Progress

	log pslog.Logger

	mu           sync.RWMutex
	walkthroughs map[string]Walkthrough
	subs         emitter.Store
}

// NewService wires progress to command executions and setting changes.
// cmds and cfg may be nil.
func NewService(content *ContentRegistry, progress *Progress, cmds *commands.CommandRegistry, cfg *configuration.Service, log pslog.Logger) *Service {
	s := &Service{
		Content:      content,
		Progress:     progress,
		log:          logx.WithComponent(logx.OrDefault(log), "walkthrough"),
		walkthroughs: make(map[string]Walkthrough),
	}
	if cmds != nil {
		s.subs.Add(cmds.OnDidExecuteCommand(func(e commands.ExecutionEvent) {
			s.complete(EventOnCommand + e.ID)
		}))
	}
	if cfg != nil {
		s.subs.Add(cfg.OnDidChange(func(e configuration.ChangeEvent) {
			for _, k := range e.Keys {
				s.complete(EventOnSettingChanged + k)
			}
		}))
	}
	return s
}

// Register adds a walkthrough to the catalog.
func (s *Service) Register(w Walkthrough) error {
	if w.ID == "" {
		return fmt.Errorf("walkthrough: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.walkthroughs[w.ID]; exists {
		return fmt.Errorf("walkthrough: %s already registered", w.ID)
	}
	s.walkthroughs[w.ID] = w
	return nil
}

// Walkthrough returns the walkthrough with id.
func (s *Service) Walkthrough(id string) (Walkthrough, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.walkthroughs[id]
	return w, ok
}

// Walkthroughs returns every walkthrough sorted by id.
func (s *Service) Walkthroughs() []Walkthrough {
	s.mu.RLock()
	out := make([]Walkthrough, 0, len(s.walkthroughs))
	for _, w := range s.walkthroughs {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SelectStep records that a step was opened.
func (s *Service) SelectStep(walkthrough, step string) {
	w, ok := s.Walkthrough(walkthrough)
	if !ok {
		return
	}
	for _, st := range w.Steps {
		if st.ID == step && hasEvent(st, EventOnStepSelected) {
			s.mark(walkthrough, step)
		}
	}
}

// Done reports how many steps of a walkthrough are complete.
func (s *Service) Done(walkthrough string) (done, total int) {
	w, ok := s.Walkthrough(walkthrough)
	if !ok {
		return 0, 0
	}
	for _, st := range w.Steps {
		if s.Progress.IsStepComplete(walkthrough, st.ID) {
			done++
		}
	}
	return done, len(w.Steps)
}

func (s *Service) complete(event string) {
	for _, w := range s.Walkthroughs() {
		for _, st := range w.Steps {
			if hasEvent(st, event) {
				s.mark(w.ID, st.ID)
			}
		}
	}
}

func (s *Service) mark(walkthrough, step string) {
	if err := s.Progress.MarkStepComplete(walkthrough, step); err != nil {
		s.log.Warn("marking step complete failed", "walkthrough", walkthrough, "step", step, "error", err)
	}
}

func hasEvent(st Step, event string) bool {
	for _, e := range st.CompletionEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Dispose detaches the service from commands and configuration.
func (s *Service) Dispose() { s.subs.Dispose() }
