package commands

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/extbridge/internal/contextkey"
	"github.com/dshills/extbridge/internal/emitter"
)

// MenuPlacement puts an action's command into a menu.
type MenuPlacement struct {
	Menu  MenuID
	Group string
	Order int
	When  string
}

// Descriptor is the static description of an action.
type Descriptor struct {
	ID       string
	Title    string
	Category string

	// Precondition must hold for the action to run. Empty means always.
	Precondition string

	// F1 lists the action in the command palette.
	F1 bool

	Keybinding *Keybinding
	Menus      []MenuPlacement
}

// Action is a command with a presentation. Implementations carry their
// dependencies as struct fields.
type Action interface {
	Descriptor() Descriptor
	Run(ctx context.Context, args ...any) (any, error)
}

// Func adapts a descriptor and a function into an Action.
type Func struct {
	Desc Descriptor
	Fn   Handler
}

// Descriptor implements Action.
func (f Func) Descriptor() Descriptor { return f.Desc }

// Run implements Action.
func (f Func) Run(ctx context.Context, args ...any) (any, error) { return f.Fn(ctx, args...) }

// Registry registers actions into the command, palette, keybinding and menu
// registries.
type Registry struct {
	Commands    *CommandRegistry
	Menus       *MenuRegistry
	Palette     *Palette
	Keybindings *KeybindingRegistry

	// Context is consulted for preconditions. Nil skips the check.
	Context contextkey.Context

	mu      sync.Mutex
	actions map[string]struct{}
}

// NewRegistry creates a registry with fresh sub-registries.
func NewRegistry() *Registry {
	return &Registry{
		Commands:    NewCommandRegistry(),
		Menus:       NewMenuRegistry(),
		Palette:     NewPalette(),
		Keybindings: NewKeybindingRegistry(),
		actions:     make(map[string]struct{}),
	}
}

// RegisterAction registers a. Disposing the result removes every
// registration made for it.
func (r *Registry) RegisterAction(a Action) (emitter.Disposable, error) {
	d := a.Descriptor()
	if d.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidCommand)
	}
	precondition, err := contextkey.Parse(d.Precondition)
	if err != nil {
		return nil, fmt.Errorf("%s: precondition: %w", d.ID, err)
	}

	r.mu.Lock()
	if _, exists := r.actions[d.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, d.ID)
	}
	r.actions[d.ID] = struct{}{}
	r.mu.Unlock()

	store := &emitter.Store{}
	store.Add(emitter.DisposableFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.actions, d.ID)
	}))

	fail := func(err error) (emitter.Disposable, error) {
		store.Dispose()
		return nil, err
	}

	cmd, err := r.Commands.Register(Command{
		ID:     d.ID,
		Source: "action",
		Handler: func(ctx context.Context, args ...any) (any, error) {
			if r.Context != nil && !precondition.Eval(r.Context) {
				return nil, fmt.Errorf("%w: %s", ErrPreconditionFailed, d.ID)
			}
			return a.Run(ctx, args...)
		},
	})
	if err != nil {
		return fail(err)
	}
	store.Add(cmd)

	if d.F1 {
		store.Add(r.Palette.Add(PaletteEntry{
			ID:           d.ID,
			Title:        d.Title,
			Category:     d.Category,
			precondition: precondition,
		}))
	}
	if d.Keybinding != nil {
		store.Add(r.Keybindings.Add(KeybindingRecord{Command: d.ID, Keybinding: *d.Keybinding}))
	}
	for _, m := range d.Menus {
		item, err := r.Menus.AppendMenuItem(m.Menu, MenuItem{
			Command: d.ID,
			Title:   d.Title,
			Group:   m.Group,
			Order:   m.Order,
			When:    m.When,
		})
		if err != nil {
			return fail(err)
		}
		store.Add(item)
	}
	return store, nil
}

// HasAction reports whether an action id is registered.
func (r *Registry) HasAction(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.actions[id]
	return ok
}
