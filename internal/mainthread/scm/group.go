package scm

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

// Resource is one changed file in a group.
type Resource struct {
	Handle        int
	URI           uri.URI
	Tooltip       string
	StrikeThrough bool
	Faded         bool
	ContextValue  string
	Command       *mainthread.Command

	group *Group
}

func newResource(g *Group, s ResourceState) *Resource {
	return &Resource{
		Handle:        s.Handle,
		URI:           uri.Revive(s.URI),
		Tooltip:       s.Tooltip,
		StrikeThrough: s.StrikeThrough,
		Faded:         s.Faded,
		ContextValue:  s.ContextValue,
		Command:       s.Command,
		group:         g,
	}
}

// Group returns the owning group.
func (r *Resource) Group() *Group { return r.group }

// Open asks the extension host to run the resource's command.
func (r *Resource) Open(ctx context.Context, preserveFocus bool) error {
	p := r.group.provider
	return rpc.Call(ctx, p.peer, executeResourceCommand{
		SourceControl: p.handle,
		Group:         r.group.handle,
		Resource:      r.Handle,
		PreserveFocus: preserveFocus,
	}, nil)
}

// Group is an ordered list of resources owned by a provider.
type Group struct {
	handle   int
	id       string
	provider *Provider

	mu            sync.RWMutex
	label         string
	hideWhenEmpty bool
	contextValue  string
	resources     []*Resource
	tree          *Node

	onDidChange      *emitter.Emitter[struct{}]
	onDidSplice      *emitter.Emitter[[]mainthread.Splice[*Resource]]
	onDidChangeLabel *emitter.Emitter[string]
}

func newGroup(p *Provider, s GroupState) *Group {
	g := &Group{
		handle:           s.Handle,
		id:               s.ID,
		provider:         p,
		label:            s.Label,
		onDidChange:      emitter.New[struct{}](),
		onDidSplice:      emitter.New[[]mainthread.Splice[*Resource]](),
		onDidChangeLabel: emitter.New[string](),
	}
	g.updateFeatures(s.Features)
	return g
}

// Handle returns the group handle.
func (g *Group) Handle() int { return g.handle }

// ID returns the group id, e.g. "index" or "workingTree".
func (g *Group) ID() string { return g.id }

// Provider returns the owning provider.
func (g *Group) Provider() *Provider { return g.provider }

// Label returns the display label.
func (g *Group) Label() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.label
}

// HideWhenEmpty reports whether the group is hidden without resources.
func (g *Group) HideWhenEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hideWhenEmpty
}

// ContextValue returns the group's context value.
func (g *Group) ContextValue() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.contextValue
}

// Resources returns a copy of the resource list.
func (g *Group) Resources() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Resource(nil), g.resources...)
}

// Len returns the number of resources.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// OnDidChange fires after any change to the group.
func (g *Group) OnDidChange(fn emitter.Listener[struct{}]) emitter.Disposable {
	return g.onDidChange.Subscribe(fn)
}

// OnDidSplice fires with each applied splice batch.
func (g *Group) OnDidSplice(fn emitter.Listener[[]mainthread.Splice[*Resource]]) emitter.Disposable {
	return g.onDidSplice.Subscribe(fn)
}

// OnDidChangeLabel fires when the label changes.
func (g *Group) OnDidChangeLabel(fn emitter.Listener[string]) emitter.Disposable {
	return g.onDidChangeLabel.Subscribe(fn)
}

func (g *Group) updateFeatures(f GroupFeatures) {
	g.mu.Lock()
	if f.HideWhenEmpty != nil {
		g.hideWhenEmpty = *f.HideWhenEmpty
	}
	if f.ContextValue != nil {
		g.contextValue = *f.ContextValue
	}
	g.mu.Unlock()
}

func (g *Group) setLabel(label string) {
	g.mu.Lock()
	g.label = label
	g.mu.Unlock()
	g.onDidChangeLabel.Fire(label)
	g.onDidChange.Fire(struct{}{})
}

// splice applies one batch. Offsets in the batch all refer to the list as it
// was before the batch.
func (g *Group) splice(batch []ResourceSplice) {
	local := make([]mainthread.Splice[*Resource], len(batch))
	for i, s := range batch {
		items := make([]*Resource, len(s.Items))
		for j, rs := range s.Items {
			items[j] = newResource(g, rs)
		}
		local[i] = mainthread.Splice[*Resource]{Start: s.Start, DeleteCount: s.DeleteCount, Items: items}
	}

	g.mu.Lock()
	g.resources = mainthread.ApplySplices(g.resources, local)
	g.tree = nil
	g.mu.Unlock()

	g.onDidSplice.Fire(local)
	g.onDidChange.Fire(struct{}{})
}

// Tree returns the resources indexed by path relative to the provider root.
// It is rebuilt after every splice.
func (g *Group) Tree() *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tree == nil {
		g.tree = buildTree(g.provider.RootURI(), g.resources)
	}
	return g.tree
}

func (g *Group) dispose() {
	g.onDidChange.Dispose()
	g.onDidSplice.Dispose()
	g.onDidChangeLabel.Dispose()
}

// Node is a folder or file in a group's resource tree.
type Node struct {
	Name     string
	Path     string
	Resource *Resource
	children map[string]*Node
}

// Child returns the direct child called name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Children returns the direct children sorted by name, folders first.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := out[i].IsFolder(), out[j].IsFolder()
		if fi != fj {
			return fi
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool { return n.Resource == nil }

// Lookup finds the node at a slash-separated relative path.
func (n *Node) Lookup(rel string) (*Node, bool) {
	cur := n
	for _, part := range strings.Split(strings.Trim(rel, "/"), "/") {
		if part == "" {
			continue
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Count returns the number of resources under n.
func (n *Node) Count() int {
	if n.Resource != nil {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.Count()
	}
	return total
}

func buildTree(root *uri.URI, resources []*Resource) *Node {
	top := &Node{children: make(map[string]*Node)}
	for _, r := range resources {
		rel := r.URI.Path()
		if root != nil {
			if p, ok := uri.RelativePath(*root, r.URI); ok {
				rel = p
			}
		}
		cur := top
		parts := strings.Split(strings.Trim(rel, "/"), "/")
		for i, part := range parts {
			next, ok := cur.children[part]
			if !ok {
				next = &Node{Name: part, Path: path.Join(cur.Path, part), children: make(map[string]*Node)}
				cur.children[part] = next
			}
			if i == len(parts)-1 {
				next.Resource = r
			}
			cur = next
		}
	}
	return top
}
