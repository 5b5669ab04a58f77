package walkthrough

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/storage"
)

const progressPrefix = "walkthrough.progress/"

// StepEvent reports a step whose completion changed.
type StepEvent struct {
	Walkthrough string
	Step        string
	Done        bool
}

// Progress persists completed steps.
type Progress struct {
	store       *storage.Store
	onDidChange *emitter.Emitter[StepEvent]
}

// NewProgress stores progress in store's application bucket.
func NewProgress(store *storage.Store) *Progress {
	return &Progress{store: store, onDidChange: emitter.New[StepEvent]()}
}

func progressKey(walkthrough, step string) string {
	return progressPrefix + walkthrough + "/" + step
}

// MarkStepComplete records step as done.
func (p *Progress) MarkStepComplete(walkthrough, step string) error {
	if p.IsStepComplete(walkthrough, step) {
		return nil
	}
	if err := p.store.Put(storage.BucketApplication, progressKey(walkthrough, step), []byte{1}); err != nil {
		return fmt.Errorf("walkthrough: mark %s/%s: %w", walkthrough, step, err)
	}
	p.onDidChange.Fire(StepEvent{Walkthrough: walkthrough, Step: step, Done: true})
	return nil
}

// MarkStepIncomplete clears step.
func (p *Progress) MarkStepIncomplete(walkthrough, step string) error {
	if !p.IsStepComplete(walkthrough, step) {
		return nil
	}
	if err := p.store.Delete(storage.BucketApplication, progressKey(walkthrough, step)); err != nil {
		return fmt.Errorf("walkthrough: unmark %s/%s: %w", walkthrough, step, err)
	}
	p.onDidChange.Fire(StepEvent{Walkthrough: walkthrough, Step: step, Done: false})
	return nil
}

// IsStepComplete reports whether step is done.
func (p *Progress) IsStepComplete(walkthrough, step string) bool {
	_, err := p.store.Get(storage.BucketApplication, progressKey(walkthrough, step))
	return err == nil
}

// CompletedSteps lists the completed steps of a walkthrough, sorted.
func (p *Progress) CompletedSteps(walkthrough string) ([]string, error) {
	prefix := progressPrefix + walkthrough + "/"
	keys, err := p.store.Keys(storage.BucketApplication, prefix)
	if err != nil {
		return nil, fmt.Errorf("walkthrough: %w", err)
	}
	steps := make([]string, len(keys))
	for i, k := range keys {
		steps[i] = strings.TrimPrefix(k, prefix)
	}
	return steps, nil
}

// Reset clears every step of walkthrough, or of all walkthroughs when
// walkthrough is empty.
func (p *Progress) Reset(walkthrough string) error {
	prefix := progressPrefix
	if walkthrough != "" {
		prefix += walkthrough + "/"
	}
	keys, err := p.store.Keys(storage.BucketApplication, prefix)
	if err != nil {
		return fmt.Errorf("walkthrough: %w", err)
	}
	var errs []error
	for _, k := range keys {
		rest := strings.TrimPrefix(k, progressPrefix)
		wt, step, _ := strings.Cut(rest, "/")
		if err := p.MarkStepIncomplete(wt, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnDidChange subscribes to step completion changes.
func (p *Progress) OnDidChange(fn emitter.Listener[StepEvent]) emitter.Disposable {
	return p.onDidChange.Subscribe(fn)
}
