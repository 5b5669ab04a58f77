package walkthrough

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// Action ids.
const (
	ActionMarkStepComplete   = "welcome.markStepComplete"
	ActionMarkStepIncomplete = "welcome.markStepIncomplete"
	ActionResetProgress      = "welcome.resetProgress"
	ActionShowContent        = "welcome.showContent"
)

const category = "Welcome"

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("walkthrough: missing %s argument", name)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("walkthrough: %s must be a non-empty string, got %T", name, args[i])
	}
	return s, nil
}

type markStepAction struct {
	progress *Progress
	done     bool
}

func (a markStepAction) Descriptor() commands.Descriptor {
	if a.done {
		return commands.Descriptor{ID: ActionMarkStepComplete, Title: "Mark Step Complete", Category: category}
	}
	return commands.Descriptor{
		ID:       ActionMarkStepIncomplete,
		Title:    "Mark Step Incomplete",
		Category: category,
		Menus:    []commands.MenuPlacement{{Menu: commands.MenuWelcomeContext, Group: "navigation", When: "stepComplete"}},
	}
}

func (a markStepAction) Run(_ context.Context, args ...any) (any, error) {
	wt, err := stringArg(args, 0, "walkthrough")
	if err != nil {
		return nil, err
	}
	step, err := stringArg(args, 1, "step")
	if err != nil {
		return nil, err
	}
	if a.done {
		return nil, a.progress.MarkStepComplete(wt, step)
	}
	return nil, a.progress.MarkStepIncomplete(wt, step)
}

type resetProgressAction struct {
	progress *Progress
}

func (a resetProgressAction) Descriptor() commands.Descriptor {
	return commands.Descriptor{
		ID:       ActionResetProgress,
		Title:    "Reset Welcome Page Walkthrough Progress",
		Category: "Developer",
		F1:       true,
	}
}

// Run resets one walkthrough when given an id, else all of them.
func (a resetProgressAction) Run(_ context.Context, args ...any) (any, error) {
	wt := ""
	if len(args) > 0 {
		wt, _ = args[0].(string)
	}
	return nil, a.progress.Reset(wt)
}

type showContentAction struct {
	content *ContentRegistry
}

func (a showContentAction) Descriptor() commands.Descriptor {
	return commands.Descriptor{ID: ActionShowContent, Title: "Show Walkthrough Content", Category: category}
}

// Run accepts a resource string, URI components, or a uri.URI.
func (a showContentAction) Run(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no resource given", ErrInvalidResource)
	}
	var res uri.URI
	switch v := args[0].(type) {
	case uri.URI:
		res = v
	case string:
		u, err := uri.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResource, err)
		}
		res = u
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResource, err)
		}
		var c uri.Components
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResource, err)
		}
		res = uri.Revive(c)
	}
	return a.content.ModuleToContent(res)
}

// RegisterActions registers the welcome actions.
func RegisterActions(reg *commands.Registry, svc *Service) (emitter.Disposable, error) {
	store := &emitter.Store{}
	for _, a := range []commands.Action{
		markStepAction{progress: svc.Progress, done: true},
		markStepAction{progress: svc.Progress, done: false},
		resetProgressAction{progress: svc.Progress},
		showContentAction{content: svc.Content},
	} {
		d, err := reg.RegisterAction(a)
		if err != nil {
			store.Dispose()
			return nil, err
		}
		store.Add(d)
	}
	return store, nil
}
