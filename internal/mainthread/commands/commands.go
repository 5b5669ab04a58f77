// Package commands lets the extension host contribute commands to the
// command registry and run commands registered on either side.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	registry "github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// SourceExtensionHost marks commands contributed by the extension host.
const SourceExtensionHost = "exthost"

// Inbound messages.

type RegisterCommand struct {
	ID string `json:"id"`
}

type UnregisterCommand struct {
	ID string `json:"id"`
}

type ExecuteCommand struct {
	ID   string            `json:"id"`
	Args []json.RawMessage `json:"args,omitempty"`
}

type GetCommands struct{}

func (RegisterCommand) Method() string   { return "$registerCommand" }
func (UnregisterCommand) Method() string { return "$unregisterCommand" }
func (ExecuteCommand) Method() string    { return "$executeCommand" }
func (GetCommands) Method() string       { return "$getCommands" }

type executeContributedCommand struct {
	ID   string `json:"id"`
	Args []any  `json:"args"`
}

func (executeContributedCommand) Method() string { return "$executeContributedCommand" }

// MainThread is the main-thread side of the commands API.
type MainThread struct {
	peer     rpc.Peer
	registry *registry.CommandRegistry
	log      pslog.Logger

	mu         sync.Mutex
	registered map[string]emitter.Disposable
}

// New creates the proxy over reg.
func New(peer rpc.Peer, reg *registry.CommandRegistry, log pslog.Logger) *MainThread {
	return &MainThread{
		peer:       peer,
		registry:   reg,
		log:        logx.WithComponent(logx.OrDefault(log), "commands"),
		registered: make(map[string]emitter.Disposable),
	}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$registerCommand":   func() rpc.Message { return &RegisterCommand{} },
		"$unregisterCommand": func() rpc.Message { return &UnregisterCommand{} },
		"$executeCommand":    func() rpc.Message { return &ExecuteCommand{} },
		"$getCommands":       func() rpc.Message { return &GetCommands{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *RegisterCommand:
		return nil, m.register(msg.ID)
	case *UnregisterCommand:
		m.mu.Lock()
		d, ok := m.registered[msg.ID]
		delete(m.registered, msg.ID)
		m.mu.Unlock()
		if !ok {
			m.log.Warn("unregistering unknown command", "command", msg.ID)
			return nil, nil
		}
		d.Dispose()
	case *ExecuteCommand:
		args, err := decodeArgs(msg.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", rpc.ErrInvalidParams, msg.ID, err)
		}
		id := msg.ID
		return rpc.Async(func(ctx context.Context) (any, error) {
			return m.registry.ExecuteCommand(ctx, id, args...)
		}), nil
	case *GetCommands:
		return m.registry.Commands(), nil
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &args[i]); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return args, nil
}

func (m *MainThread) register(id string) error {
	handler := func(ctx context.Context, args ...any) (any, error) {
		if args == nil {
			args = []any{}
		}
		var result json.RawMessage
		if err := rpc.Call(ctx, m.peer, executeContributedCommand{ID: id, Args: args}, &result); err != nil {
			return nil, err
		}
		if len(result) == 0 || string(result) == "null" {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(result, &v); err != nil {
			return nil, fmt.Errorf("command %s result: %w", id, err)
		}
		return v, nil
	}
	d, err := m.registry.Register(registry.Command{ID: id, Handler: handler, Source: SourceExtensionHost})
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.registered[id]
	m.registered[id] = d
	m.mu.Unlock()
	if prev != nil {
		prev.Dispose()
	}
	return nil
}

// Dispose removes every contributed command.
func (m *MainThread) Dispose() {
	m.mu.Lock()
	registered := m.registered
	m.registered = make(map[string]emitter.Disposable)
	m.mu.Unlock()
	for _, d := range registered {
		d.Dispose()
	}
}
