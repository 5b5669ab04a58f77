package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/logx"
)

type route struct {
	newMsg func() Message
	svc    Service
}

// Router dispatches inbound requests to registered services.
// It implements jsonrpc2.Handler.
type Router struct {
	mu     sync.RWMutex
	routes map[string]route
	log    pslog.Logger
}

// NewRouter creates an empty router.
func NewRouter(log pslog.Logger) *Router {
	return &Router{
		routes: make(map[string]route),
		log:    logx.WithComponent(logx.OrDefault(log), "rpc"),
	}
}

// Register adds every method in the service's table.
// Registration is all or nothing.
func (r *Router) Register(svc Service) error {
	table := svc.Messages()

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range table {
		if !ValidMethod(name) {
			return fmt.Errorf("%w: %q", ErrInvalidMethod, name)
		}
		if _, exists := r.routes[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
		}
	}
	for name, ctor := range table {
		r.routes[name] = route{newMsg: ctor, svc: svc}
	}
	return nil
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode builds the message for method from its raw params.
func (r *Router) Decode(method string, params json.RawMessage) (Message, Service, error) {
	r.mu.RLock()
	rt, ok := r.routes[method]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}

	msg := rt.newMsg()
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, msg); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, method, err)
		}
	}
	return msg, rt.svc, nil
}

// Dispatch decodes and handles a single invocation. Panics in the
// service are returned as ErrPanic.
func (r *Router) Dispatch(ctx context.Context, method string, params json.RawMessage) (result any, err error) {
	msg, svc, err := r.Decode(method, params)
	if err != nil {
		return nil, err
	}
	return r.invoke(ctx, svc, msg)
}

func (r *Router) invoke(ctx context.Context, svc Service, msg Message) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("rpc handler panic", "method", msg.Method(), "panic", fmt.Sprint(p))
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrPanic, msg.Method(), p)
		}
	}()
	return svc.Dispatch(ctx, msg)
}

// Handle implements jsonrpc2.Handler. Requests are dispatched in arrival
// order on the connection's read loop; Async results are completed on
// their own goroutine.
func (r *Router) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	result, err := r.Dispatch(ctx, req.Method, params)
	if async, ok := result.(Async); ok && err == nil {
		go func() {
			res, err := r.runAsync(ctx, req.Method, async)
			r.reply(ctx, conn, req, res, err)
		}()
		return
	}
	r.reply(ctx, conn, req, result, err)
}

func (r *Router) runAsync(ctx context.Context, method string, fn Async) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("rpc async handler panic", "method", method, "panic", fmt.Sprint(p))
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrPanic, method, p)
		}
	}()
	return fn(ctx)
}

func (r *Router) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any, err error) {
	if req.Notif {
		if err != nil {
			r.log.Warn("rpc notification failed", "method", req.Method, "error", err)
		}
		return
	}

	var sendErr error
	if err != nil {
		r.log.Debug("rpc request failed", "method", req.Method, "error", err)
		sendErr = conn.ReplyWithError(ctx, req.ID, toWireError(err))
	} else {
		sendErr = conn.Reply(ctx, req.ID, result)
	}
	if sendErr != nil && !errors.Is(sendErr, jsonrpc2.ErrClosed) {
		r.log.Warn("rpc reply failed", "method", req.Method, "error", sendErr)
	}
}
