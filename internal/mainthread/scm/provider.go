package scm

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/textmodel"
	"github.com/dshills/extbridge/internal/uri"
)

// Provider mirrors one extension host source control.
type Provider struct {
	handle  int
	id      string
	label   string
	rootURI *uri.URI

	peer      rpc.Peer
	log       pslog.Logger
	quickDiff *QuickDiffService

	mu             sync.RWMutex
	features       state
	groups         []*Group
	groupsByHandle map[int]*Group
	quickDiffReg   emitter.Disposable
	history        *HistoryProvider
	input          *InputBox
	disposed       bool

	onDidChange        *emitter.Emitter[struct{}]
	onDidChangeGroups  *emitter.Emitter[struct{}]
	onDidChangeHistory *emitter.Emitter[*HistoryProvider]
}

// state is the merged feature set.
type state struct {
	hasQuickDiff      bool
	quickDiffLabel    string
	hasHistory        bool
	count             *int
	commitTemplate    string
	acceptInput       *mainthread.Command
	statusBarCommands []mainthread.Command
}

func newProvider(m *MainThread, msg *RegisterSourceControl, model *textmodel.Reference) *Provider {
	p := &Provider{
		handle:             msg.Handle,
		id:                 msg.ID,
		label:              msg.Label,
		rootURI:            uri.ReviveOptional(msg.RootURI),
		peer:               m.peer,
		log:                m.log.With("sourceControl", msg.Handle),
		quickDiff:          m.quickDiff,
		groupsByHandle:     make(map[int]*Group),
		onDidChange:        emitter.New[struct{}](),
		onDidChangeGroups:  emitter.New[struct{}](),
		onDidChangeHistory: emitter.New[*HistoryProvider](),
	}
	p.input = newInputBox(p, model)
	return p
}

// Handle returns the provider handle.
func (p *Provider) Handle() int { return p.handle }

// ID returns the provider id, e.g. "git".
func (p *Provider) ID() string { return p.id }

// Label returns the display label.
func (p *Provider) Label() string { return p.label }

// RootURI returns the provider root, or nil.
func (p *Provider) RootURI() *uri.URI { return p.rootURI }

// InputBox returns the commit message input box.
func (p *Provider) InputBox() *InputBox { return p.input }

// Groups returns the groups in registration order.
func (p *Provider) Groups() []*Group {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Group(nil), p.groups...)
}

// Group returns the group with handle h.
func (p *Provider) Group(h int) (*Group, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.groupsByHandle[h]
	return g, ok
}

// Count returns the badge count: the explicit count if set, otherwise the
// number of resources across groups.
func (p *Provider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.features.count != nil {
		return *p.features.count
	}
	n := 0
	for _, g := range p.groups {
		n += g.Len()
	}
	return n
}

// CommitTemplate returns the commit message template.
func (p *Provider) CommitTemplate() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.features.commitTemplate
}

// AcceptInputCommand returns the command run when the input is accepted.
func (p *Provider) AcceptInputCommand() *mainthread.Command {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.features.acceptInput
}

// StatusBarCommands returns the status bar commands.
func (p *Provider) StatusBarCommands() []mainthread.Command {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]mainthread.Command(nil), p.features.statusBarCommands...)
}

// HasQuickDiff reports whether the provider serves original resources.
func (p *Provider) HasQuickDiff() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.features.hasQuickDiff
}

// History returns the history provider, or nil when the feature is off.
func (p *Provider) History() *HistoryProvider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history
}

// OnDidChange fires after a feature update.
func (p *Provider) OnDidChange(fn emitter.Listener[struct{}]) emitter.Disposable {
	return p.onDidChange.Subscribe(fn)
}

// OnDidChangeGroups fires when groups are added or removed.
func (p *Provider) OnDidChangeGroups(fn emitter.Listener[struct{}]) emitter.Disposable {
	return p.onDidChangeGroups.Subscribe(fn)
}

// OnDidChangeHistoryProvider fires when the history provider appears or goes.
func (p *Provider) OnDidChangeHistoryProvider(fn emitter.Listener[*HistoryProvider]) emitter.Disposable {
	return p.onDidChangeHistory.Subscribe(fn)
}

// GetOriginalResource returns the resource to diff u against. It returns
// nil, nil when the provider has no quick diff.
func (p *Provider) GetOriginalResource(ctx context.Context, u uri.URI) (*uri.URI, error) {
	if !p.HasQuickDiff() {
		return nil, nil
	}
	var res *uri.Components
	if err := rpc.Call(ctx, p.peer, provideOriginalResource{SourceControl: p.handle, URI: u.Components()}, &res); err != nil {
		return nil, err
	}
	return uri.ReviveOptional(res), nil
}

func (p *Provider) update(f Features) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	if f.QuickDiffLabel != nil {
		p.features.quickDiffLabel = *f.QuickDiffLabel
	}
	if f.Count != nil {
		n := *f.Count
		p.features.count = &n
	}
	if f.CommitTemplate != nil {
		p.features.commitTemplate = *f.CommitTemplate
	}
	if f.AcceptInputCommand != nil {
		p.features.acceptInput = f.AcceptInputCommand
	}
	if f.StatusBarCommands != nil {
		p.features.statusBarCommands = f.StatusBarCommands
	}

	var stale emitter.Disposable
	var register *QuickDiff
	if f.HasQuickDiffProvider != nil && *f.HasQuickDiffProvider != p.features.hasQuickDiff {
		p.features.hasQuickDiff = *f.HasQuickDiffProvider
		if p.features.hasQuickDiff {
			register = &QuickDiff{
				Label:    p.quickDiffLabelLocked(),
				RootURI:  p.rootURI,
				Original: p.GetOriginalResource,
			}
		} else {
			stale, p.quickDiffReg = p.quickDiffReg, nil
		}
	}

	historyChanged := false
	var oldHistory *HistoryProvider
	if f.HasHistoryProvider != nil && *f.HasHistoryProvider != p.features.hasHistory {
		p.features.hasHistory = *f.HasHistoryProvider
		historyChanged = true
		if p.features.hasHistory {
			p.history = newHistoryProvider(p)
		} else {
			oldHistory, p.history = p.history, nil
		}
	}
	history := p.history
	p.mu.Unlock()

	if stale != nil {
		stale.Dispose()
	}
	if register != nil {
		reg := p.quickDiff.Register(*register)
		p.mu.Lock()
		if p.disposed {
			p.mu.Unlock()
			reg.Dispose()
		} else {
			p.quickDiffReg = reg
			p.mu.Unlock()
		}
	}
	if oldHistory != nil {
		oldHistory.dispose()
	}
	if historyChanged {
		p.onDidChangeHistory.Fire(history)
	}
	p.onDidChange.Fire(struct{}{})
}

func (p *Provider) quickDiffLabelLocked() string {
	if p.features.quickDiffLabel != "" {
		return p.features.quickDiffLabel
	}
	return p.label
}

func (p *Provider) registerGroups(groups []GroupState, splices []GroupSplices) {
	p.mu.Lock()
	for _, gs := range groups {
		if old, ok := p.groupsByHandle[gs.Handle]; ok {
			p.removeGroupLocked(old)
		}
		g := newGroup(p, gs)
		p.groups = append(p.groups, g)
		p.groupsByHandle[gs.Handle] = g
	}
	p.mu.Unlock()

	p.onDidChangeGroups.Fire(struct{}{})
	p.spliceGroups(splices)
}

func (p *Provider) unregisterGroup(h int) bool {
	p.mu.Lock()
	g, ok := p.groupsByHandle[h]
	if ok {
		p.removeGroupLocked(g)
	}
	p.mu.Unlock()

	if ok {
		g.dispose()
		p.onDidChangeGroups.Fire(struct{}{})
	}
	return ok
}

func (p *Provider) removeGroupLocked(g *Group) {
	delete(p.groupsByHandle, g.handle)
	for i, cur := range p.groups {
		if cur == g {
			p.groups = append(p.groups[:i:i], p.groups[i+1:]...)
			break
		}
	}
}

func (p *Provider) spliceGroups(all []GroupSplices) {
	for _, gs := range all {
		g, ok := p.Group(gs.Group)
		if !ok {
			p.log.Warn("splice for unknown group", "group", gs.Group)
			continue
		}
		g.splice(gs.Splices)
	}
}

// Dispose releases the provider's groups, model and registrations.
func (p *Provider) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	groups := p.groups
	p.groups, p.groupsByHandle = nil, map[int]*Group{}
	qd := p.quickDiffReg
	p.quickDiffReg = nil
	history := p.history
	p.history = nil
	p.mu.Unlock()

	if qd != nil {
		qd.Dispose()
	}
	if history != nil {
		history.dispose()
	}
	for _, g := range groups {
		g.dispose()
	}
	p.input.dispose()
	p.onDidChange.Dispose()
	p.onDidChangeGroups.Dispose()
	p.onDidChangeHistory.Dispose()
}

// InputBox is the commit message box. Its text lives in a shared text model.
type InputBox struct {
	provider *Provider
	model    *textmodel.Reference
	sub      emitter.Disposable

	Placeholder       *mainthread.Observable[string]
	Enabled           *mainthread.Observable[bool]
	Visible           *mainthread.Observable[bool]
	ValidationMessage *mainthread.Observable[*Validation]

	mu                sync.RWMutex
	validationEnabled bool
}

func newInputBox(p *Provider, model *textmodel.Reference) *InputBox {
	b := &InputBox{
		provider:          p,
		model:             model,
		Placeholder:       mainthread.NewObservable(""),
		Enabled:           mainthread.NewObservable(true),
		Visible:           mainthread.NewObservable(true),
		ValidationMessage: mainthread.NewObservable[*Validation](nil),
	}
	b.sub = model.OnDidChange(func(c textmodel.Change) {
		if c.Source == textmodel.SourceExtHost {
			return
		}
		err := rpc.Notify(context.Background(), p.peer, onInputBoxValueChange{SourceControl: p.handle, Value: c.Value})
		if err != nil {
			p.log.Warn("forwarding input box value failed", "error", err)
		}
	})
	return b
}

// Value returns the current text.
func (b *InputBox) Value() string { return b.model.Value() }

// SetValue changes the text from the UI and tells the extension host.
func (b *InputBox) SetValue(v string) { b.model.SetValue(v, textmodel.SourceUser) }

// Model returns the underlying text model.
func (b *InputBox) Model() *textmodel.Model { return b.model.Model }

// Validate asks the extension host to validate value. It returns nil
// when no validation provider is enabled or the value is valid.
func (b *InputBox) Validate(ctx context.Context, value string, position int) (*Validation, error) {
	b.mu.RLock()
	enabled := b.validationEnabled
	b.mu.RUnlock()
	if !enabled {
		return nil, nil
	}
	var res *Validation
	err := rpc.Call(ctx, b.provider.peer, validateInput{
		SourceControl: b.provider.handle,
		Value:         value,
		Position:      position,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ValidationEnabled reports whether the extension host validates input.
func (b *InputBox) ValidationEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.validationEnabled
}

func (b *InputBox) setValidationEnabled(enabled bool) {
	b.mu.Lock()
	b.validationEnabled = enabled
	b.mu.Unlock()
}

func (b *InputBox) dispose() {
	b.sub.Dispose()
	b.model.Dispose()
	b.Placeholder.Dispose()
	b.Enabled.Dispose()
	b.Visible.Dispose()
	b.ValidationMessage.Dispose()
}

// HistoryRefs are the refs a history provider tracks.
type HistoryRefs struct {
	Current *HistoryItemRef
	Remote  *HistoryItemRef
	Base    *HistoryItemRef
}

// HistoryProvider mirrors the extension host's history graph.
type HistoryProvider struct {
	provider *Provider
	refs     *mainthread.Observable[HistoryRefs]
}

func newHistoryProvider(p *Provider) *HistoryProvider {
	return &HistoryProvider{provider: p, refs: mainthread.NewObservable(HistoryRefs{})}
}

// Refs returns the current refs.
func (h *HistoryProvider) Refs() HistoryRefs { return h.refs.Get() }

// OnDidChangeRefs subscribes to ref changes.
func (h *HistoryProvider) OnDidChangeRefs(fn emitter.Listener[HistoryRefs]) emitter.Disposable {
	return h.refs.OnDidChange(fn)
}

// ProvideHistoryItems fetches history from the extension host.
func (h *HistoryProvider) ProvideHistoryItems(ctx context.Context, opts HistoryOptions) ([]HistoryItem, error) {
	var items []HistoryItem
	err := rpc.Call(ctx, h.provider.peer, provideHistoryItems{SourceControl: h.provider.handle, Options: opts}, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (h *HistoryProvider) dispose() { h.refs.Dispose() }
