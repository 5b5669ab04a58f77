package commands

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/contextkey"
	"github.com/dshills/extbridge/internal/emitter"
)

// MenuID identifies a menu location.
type MenuID string

// Well-known menus.
const (
	MenuCommandPalette     MenuID = "commandPalette"
	MenuSCMTitle           MenuID = "scm/title"
	MenuSCMResourceContext MenuID = "scm/resourceState/context"
	MenuCommentThreadTitle MenuID = "comments/commentThread/title"
	MenuWelcomeContext     MenuID = "welcome/context"
	MenuEditorTitle        MenuID = "editor/title"
)

// MenuItem places a command in a menu.
type MenuItem struct {
	Command string
	Title   string
	Group   string
	Order   int

	// When hides the item unless it evaluates true. Empty means always shown.
	When string

	when contextkey.Expr
}

type menuEntry struct {
	seq  int
	item MenuItem
}

// MenuRegistry holds menu items per menu.
type MenuRegistry struct {
	mu    sync.RWMutex
	menus map[MenuID][]menuEntry
	seq   int

	onDidChange *emitter.Emitter[MenuID]
}

// NewMenuRegistry creates an empty registry.
func NewMenuRegistry() *MenuRegistry {
	return &MenuRegistry{
		menus:       make(map[MenuID][]menuEntry),
		onDidChange: emitter.New[MenuID](),
	}
}

// AppendMenuItem adds item to menu. The when clause is compiled now, so a
// malformed clause rejects the item.
func (r *MenuRegistry) AppendMenuItem(menu MenuID, item MenuItem) (emitter.Disposable, error) {
	if item.Command == "" {
		return nil, fmt.Errorf("%w: no command", ErrInvalidMenuItem)
	}
	expr, err := contextkey.Parse(item.When)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMenuItem, item.Command, err)
	}
	item.when = expr

	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.menus[menu] = append(r.menus[menu], menuEntry{seq: seq, item: item})
	r.mu.Unlock()

	r.onDidChange.Fire(menu)
	return emitter.DisposableFunc(func() { r.remove(menu, seq) }), nil
}

func (r *MenuRegistry) remove(menu MenuID, seq int) {
	r.mu.Lock()
	entries := r.menus[menu]
	for i, e := range entries {
		if e.seq == seq {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.menus, menu)
	} else {
		r.menus[menu] = entries
	}
	r.mu.Unlock()

	r.onDidChange.Fire(menu)
}

// MenuItems returns the items of menu visible in ctx, ordered by group,
// then order, then title. A nil ctx shows every item.
func (r *MenuRegistry) MenuItems(menu MenuID, ctx contextkey.Context) []MenuItem {
	r.mu.RLock()
	entries := append([]menuEntry(nil), r.menus[menu]...)
	r.mu.RUnlock()

	items := make([]MenuItem, 0, len(entries))
	for _, e := range entries {
		if ctx != nil && !e.item.when.Eval(ctx) {
			continue
		}
		items = append(items, e.item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Group != b.Group {
			return groupLess(a.Group, b.Group)
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Title < b.Title
	})
	return items
}

// groupLess sorts "navigation" first and ungrouped items last.
func groupLess(a, b string) bool {
	switch {
	case a == "navigation":
		return true
	case b == "navigation":
		return false
	case a == "":
		return false
	case b == "":
		return true
	}
	return a < b
}

// OnDidChangeMenu subscribes to menu changes.
func (r *MenuRegistry) OnDidChangeMenu(fn emitter.Listener[MenuID]) emitter.Disposable {
	return r.onDidChange.Subscribe(fn)
}
