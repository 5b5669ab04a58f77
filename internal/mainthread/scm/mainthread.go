// Package scm mirrors extension host source control providers.
//
// Registration is asynchronous: the input box model is resolved before the
// provider becomes visible. Every handle-scoped message is queued behind the
// handle's barrier, including unregistration, so pushes are applied in
// arrival order and nothing arrives after the provider is gone.
package scm

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/barrier"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/handle"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/textmodel"
	"github.com/dshills/extbridge/internal/uri"
)

const namespace = "scm"

// TextModelResolver opens the text model behind an input box.
type TextModelResolver interface {
	Resolve(ctx context.Context, resource uri.URI) (*textmodel.Reference, error)
}

// Deps are the local services the proxy writes to.
type Deps struct {
	Service   *Service
	QuickDiff *QuickDiffService
	Models    TextModelResolver
}

// MainThread is the main-thread side of the source control API.
type MainThread struct {
	peer      rpc.Peer
	log       pslog.Logger
	service   *Service
	quickDiff *QuickDiffService
	models    TextModelResolver

	// ctx bounds model resolution; cancel aborts pending registrations.
	ctx    context.Context
	cancel context.CancelFunc

	barriers  *barrier.Map
	providers *handle.Registry[*entry]

	// mu orders provider registration against Dispose and handle reuse.
	mu       sync.Mutex
	disposed bool
}

// entry is one registration of a handle. barrier identifies which
// registration it is when the host reuses the handle.
type entry struct {
	provider *Provider
	repo     emitter.Disposable
	barrier  *barrier.Barrier
}

func (e *entry) Dispose() {
	e.repo.Dispose()
	e.provider.Dispose()
}

// New creates the proxy. Zero-valued deps are replaced with fresh services.
func New(peer rpc.Peer, deps Deps, log pslog.Logger) *MainThread {
	if deps.Service == nil {
		deps.Service = NewService()
	}
	if deps.QuickDiff == nil {
		deps.QuickDiff = NewQuickDiffService()
	}
	if deps.Models == nil {
		deps.Models = textmodel.NewService()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MainThread{
		peer:      peer,
		log:       logx.WithComponent(logx.OrDefault(log), namespace),
		service:   deps.Service,
		quickDiff: deps.QuickDiff,
		models:    deps.Models,
		ctx:       ctx,
		cancel:    cancel,
		barriers:  barrier.NewMap(),
		providers: handle.NewRegistry[*entry](),
	}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table { return messages() }

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *RegisterSourceControl:
		m.register(msg)
	case *UnregisterSourceControl:
		m.unregister(msg.Handle)
	case *UpdateSourceControl:
		m.run(msg.Handle, msg, func(p *Provider) { p.update(msg.Features) })
	case *RegisterGroups:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.registerGroups(msg.Groups, msg.Splices) })
	case *UpdateGroup:
		m.runGroup(msg.SourceControl, msg.Group, msg, func(g *Group) {
			g.updateFeatures(msg.Features)
			g.onDidChange.Fire(struct{}{})
		})
	case *UpdateGroupLabel:
		m.runGroup(msg.SourceControl, msg.Group, msg, func(g *Group) { g.setLabel(msg.Label) })
	case *UnregisterGroup:
		m.run(msg.SourceControl, msg, func(p *Provider) {
			if !p.unregisterGroup(msg.Group) {
				p.log.Warn("unregister of unknown group", "group", msg.Group)
			}
		})
	case *SpliceResourceStates:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.spliceGroups(msg.Splices) })
	case *SetInputBoxValue:
		m.run(msg.SourceControl, msg, func(p *Provider) {
			p.input.model.SetValue(msg.Value, textmodel.SourceExtHost)
		})
	case *SetInputBoxPlaceholder:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.input.Placeholder.Set(msg.Placeholder) })
	case *SetInputBoxEnablement:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.input.Enabled.Set(msg.Enabled) })
	case *SetInputBoxVisibility:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.input.Visible.Set(msg.Visible) })
	case *ShowValidationMessage:
		m.run(msg.SourceControl, msg, func(p *Provider) {
			v := msg.Validation
			p.input.ValidationMessage.Set(&v)
		})
	case *SetValidationProviderIsEnabled:
		m.run(msg.SourceControl, msg, func(p *Provider) { p.input.setValidationEnabled(msg.Enabled) })
	case *HistoryRefsChanged:
		m.run(msg.SourceControl, msg, func(p *Provider) {
			h := p.History()
			if h == nil {
				p.log.Warn("history refs for provider without history")
				return
			}
			h.refs.Set(HistoryRefs{Current: msg.Current, Remote: msg.Remote, Base: msg.Base})
		})
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

// register resolves the input box model off the read loop and opens the
// handle's barrier once the provider is visible, or once resolution failed.
func (m *MainThread) register(msg *RegisterSourceControl) {
	b := m.barriers.Create(msg.Handle)
	log := logx.WithHandle(m.log, namespace, msg.Handle)

	go func() {
		defer b.Open()

		model, err := m.models.Resolve(m.ctx, uri.Revive(msg.InputBoxDocument))
		if err != nil {
			log.Warn("resolving input box model failed", "id", msg.ID, "error", err)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.disposed {
			model.Dispose()
			log.Debug("registration finished after dispose", "id", msg.ID)
			return
		}
		// A newer registration of the same handle owns it now.
		if cur, ok := m.barriers.Get(msg.Handle); !ok || cur != b {
			model.Dispose()
			log.Debug("registration superseded", "id", msg.ID)
			return
		}
		p := newProvider(m, msg, model)
		repo, err := m.service.Register(p)
		if err != nil {
			log.Warn("registering repository failed", "id", msg.ID, "error", err)
			p.Dispose()
			return
		}
		m.providers.Register(msg.Handle, &entry{provider: p, repo: repo, barrier: b})
		log.Debug("source control registered", "id", msg.ID)
	}()
}

// unregister is queued behind the barrier so it runs after registration
// finished and after every message queued before it. It only removes the
// registration that barrier belongs to.
func (m *MainThread) unregister(h int) {
	b, ok := m.barriers.Get(h)
	if !ok {
		mainthread.DropUnknown(m.log, namespace, h, "$unregisterSourceControl")
		return
	}
	b.Run(func() {
		m.barriers.DeleteIf(h, b)
		m.providers.UnregisterIf(h, func(e *entry) bool { return e.barrier == b })
	})
}

func (m *MainThread) run(h int, msg rpc.Message, fn func(*Provider)) {
	ok := m.barriers.Run(h, func() {
		e, ok := m.providers.Get(h)
		if !ok {
			mainthread.DropUnknown(m.log, namespace, h, msg.Method())
			return
		}
		fn(e.provider)
	})
	if !ok {
		mainthread.DropUnknown(m.log, namespace, h, msg.Method())
	}
}

func (m *MainThread) runGroup(h, group int, msg rpc.Message, fn func(*Group)) {
	m.run(h, msg, func(p *Provider) {
		g, ok := p.Group(group)
		if !ok {
			p.log.Warn("message for unknown group", "method", msg.Method(), "group", group)
			return
		}
		fn(g)
	})
}

// Wait blocks until registration of handle h has finished.
func (m *MainThread) Wait(ctx context.Context, h int) error {
	return m.barriers.Wait(ctx, h)
}

// Provider returns the registered provider for h.
func (m *MainThread) Provider(h int) (*Provider, bool) {
	e, ok := m.providers.Get(h)
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Service returns the repository service the proxy registers into.
func (m *MainThread) Service() *Service { return m.service }

// QuickDiff returns the quick diff service.
func (m *MainThread) QuickDiff() *QuickDiffService { return m.quickDiff }

// GetOriginalResource resolves the original of u through provider h.
func (m *MainThread) GetOriginalResource(ctx context.Context, h int, u uri.URI) (*uri.URI, error) {
	p, ok := m.Provider(h)
	if !ok {
		return nil, fmt.Errorf("scm: %w", handle.Unknown(namespace, h))
	}
	return p.GetOriginalResource(ctx, u)
}

// Dispose aborts pending registrations and disposes every provider.
func (m *MainThread) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.mu.Unlock()

	m.cancel()
	m.providers.Dispose()
}
