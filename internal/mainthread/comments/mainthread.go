// Package comments mirrors extension host comment controllers and threads.
package comments

import (
	"context"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/handle"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

const namespace = "comments"

// MainThread is the main-thread side of the comments API.
type MainThread struct {
	peer        rpc.Peer
	log         pslog.Logger
	service     *Service
	controllers *handle.Registry[*registration]
}

type registration struct {
	controller *Controller
	service    emitter.Disposable
}

func (r *registration) Dispose() {
	r.controller.Dispose()
	r.service.Dispose()
}

// New creates the proxy. A nil service is replaced with a fresh one.
func New(peer rpc.Peer, service *Service, log pslog.Logger) *MainThread {
	if service == nil {
		service = NewService()
	}
	return &MainThread{
		peer:        peer,
		log:         logx.WithComponent(logx.OrDefault(log), namespace),
		service:     service,
		controllers: handle.NewRegistry[*registration](),
	}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table { return messages() }

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *RegisterCommentController:
		c := newController(m, msg)
		m.controllers.Register(msg.Handle, &registration{controller: c, service: m.service.register(c)})
	case *UnregisterCommentController:
		if !m.controllers.Unregister(msg.Handle) {
			mainthread.DropUnknown(m.log, namespace, msg.Handle, msg.Method())
		}
	case *UpdateCommentControllerFeatures:
		m.with(msg.Handle, msg, func(c *Controller) { c.updateFeatures(msg.Features) })
	case *CreateCommentThread:
		m.with(msg.Handle, msg, func(c *Controller) { c.createThread(msg) })
	case *UpdateCommentThread:
		m.with(msg.Handle, msg, func(c *Controller) {
			if !c.updateThread(msg) {
				c.log.Warn("update of unknown thread", "thread", msg.ThreadHandle)
			}
		})
	case *DeleteCommentThread:
		m.with(msg.Handle, msg, func(c *Controller) {
			if !c.deleteThread(msg.ThreadHandle) {
				c.log.Warn("delete of unknown thread", "thread", msg.ThreadHandle)
			}
		})
	case *UpdateCommentingRanges:
		m.with(msg.Handle, msg, func(c *Controller) {
			m.service.onDidChangeRanges.Fire(RangesEvent{Owner: c.Owner(), Resource: uri.ReviveOptional(msg.Resource)})
		})
	case *RevealCommentThread:
		m.with(msg.Handle, msg, func(c *Controller) {
			t, ok := c.Thread(msg.ThreadHandle)
			if !ok {
				c.log.Warn("reveal of unknown thread", "thread", msg.ThreadHandle)
				return
			}
			m.service.onDidReveal.Fire(RevealEvent{
				Thread:        t,
				CommentID:     msg.CommentID,
				PreserveFocus: msg.PreserveFocus,
				Focus:         msg.Focus,
			})
		})
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

func (m *MainThread) with(h int, msg rpc.Message, fn func(*Controller)) {
	r, ok := m.controllers.Get(h)
	if !ok {
		mainthread.DropUnknown(m.log, namespace, h, msg.Method())
		return
	}
	fn(r.controller)
}

// Controller returns the controller registered under h.
func (m *MainThread) Controller(h int) (*Controller, bool) {
	r, ok := m.controllers.Get(h)
	if !ok {
		return nil, false
	}
	return r.controller, true
}

// Service returns the comment service.
func (m *MainThread) Service() *Service { return m.service }

// Dispose unregisters every controller.
func (m *MainThread) Dispose() { m.controllers.Dispose() }
