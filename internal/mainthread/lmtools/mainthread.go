// Package lmtools exposes language model tools across the extension host
// boundary. Tools implemented by extensions are invoked remotely; tools
// implemented locally are invoked for extensions.
package lmtools

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// Inbound messages.

type GetTools struct{}

type RegisterTool struct {
	ID string `json:"id"`

	// Data describes a tool not already known locally.
	Data *ToolData `json:"data,omitempty"`
}

type UnregisterTool struct {
	ID string `json:"id"`
}

type InvokeTool struct {
	Dto Invocation `json:"dto"`
}

type CountTokensForInvocation struct {
	CallID string `json:"callId"`
	Input  string `json:"input"`
}

func (GetTools) Method() string                 { return "$getTools" }
func (RegisterTool) Method() string             { return "$registerTool" }
func (UnregisterTool) Method() string           { return "$unregisterTool" }
func (InvokeTool) Method() string               { return "$invokeTool" }
func (CountTokensForInvocation) Method() string { return "$countTokensForInvocation" }

// Outbound messages.

type invokeTool struct {
	Dto Invocation `json:"dto"`
}

func (invokeTool) Method() string { return "$invokeTool" }

type countTokens struct {
	CallID string `json:"callId"`
	Input  string `json:"input"`
}

func (countTokens) Method() string { return "$countTokensForInvocation" }

// MainThread is the main-thread side of the language model tools API.
type MainThread struct {
	peer    rpc.Peer
	service *ToolsService
	log     pslog.Logger

	mu    sync.Mutex
	tools map[string]*emitter.Store
}

// New creates the proxy. A nil service is replaced with a fresh one.
func New(peer rpc.Peer, service *ToolsService, log pslog.Logger) *MainThread {
	if service == nil {
		service = NewToolsService()
	}
	return &MainThread{
		peer:    peer,
		service: service,
		log:     logx.WithComponent(logx.OrDefault(log), "lmtools"),
		tools:   make(map[string]*emitter.Store),
	}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$getTools":                 func() rpc.Message { return &GetTools{} },
		"$registerTool":             func() rpc.Message { return &RegisterTool{} },
		"$unregisterTool":           func() rpc.Message { return &UnregisterTool{} },
		"$invokeTool":               func() rpc.Message { return &InvokeTool{} },
		"$countTokensForInvocation": func() rpc.Message { return &CountTokensForInvocation{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *GetTools:
		return m.service.Tools(), nil
	case *RegisterTool:
		return nil, m.register(msg)
	case *UnregisterTool:
		m.unregister(msg.ID)
	case *InvokeTool:
		dto := msg.Dto
		var counter TokenCounter
		if dto.TokenBudget > 0 && dto.CallID != "" {
			counter = m.remoteCounter(dto.CallID)
		}
		return rpc.Async(func(ctx context.Context) (any, error) {
			return m.service.InvokeTool(ctx, dto, counter)
		}), nil
	case *CountTokensForInvocation:
		callID, input := msg.CallID, msg.Input
		return rpc.Async(func(ctx context.Context) (any, error) {
			return m.service.CountTokens(ctx, callID, input)
		}), nil
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

func (m *MainThread) register(msg *RegisterTool) error {
	m.mu.Lock()
	prev := m.tools[msg.ID]
	delete(m.tools, msg.ID)
	m.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}

	subs := &emitter.Store{}
	if msg.Data != nil {
		if _, known := m.service.Tool(msg.ID); !known {
			data := *msg.Data
			data.ID = msg.ID
			d, err := m.service.RegisterToolData(data)
			if err != nil {
				return err
			}
			subs.Add(d)
		}
	}
	d, err := m.service.RegisterToolImplementation(msg.ID, &remoteTool{m: m})
	if err != nil {
		subs.Dispose()
		return err
	}
	// Disposal runs in reverse: implementation, then data.
	stack := &emitter.Store{}
	stack.Add(subs)
	stack.Add(d)

	m.mu.Lock()
	m.tools[msg.ID] = stack
	m.mu.Unlock()
	m.log.Debug("tool registered", "tool", msg.ID)
	return nil
}

func (m *MainThread) unregister(id string) {
	m.mu.Lock()
	subs, ok := m.tools[id]
	delete(m.tools, id)
	m.mu.Unlock()
	if !ok {
		m.log.Warn("unregistering unknown tool", "tool", id)
		return
	}
	subs.Dispose()
}

func (m *MainThread) remoteCounter(callID string) TokenCounter {
	return func(ctx context.Context, input string) (int, error) {
		var n int
		err := rpc.Call(ctx, m.peer, countTokens{CallID: callID, Input: input}, &n)
		return n, err
	}
}

// Service returns the tools registry.
func (m *MainThread) Service() *ToolsService { return m.service }

// Dispose removes every tool the extension host registered.
func (m *MainThread) Dispose() {
	m.mu.Lock()
	tools := m.tools
	m.tools = make(map[string]*emitter.Store)
	m.mu.Unlock()
	for _, subs := range tools {
		subs.Dispose()
	}
}

// remoteTool runs on the extension host.
type remoteTool struct {
	m *MainThread
}

func (t *remoteTool) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	var res Result
	if err := rpc.Call(ctx, t.m.peer, invokeTool{Dto: inv}, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}
