package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// Handler executes a command.
type Handler func(ctx context.Context, args ...any) (any, error)

// Command is a registered command.
type Command struct {
	ID      string
	Handler Handler

	// Source names the registrant, e.g. "core" or an extension id.
	Source string
}

type commandEntry struct {
	seq int
	cmd Command
}

// CommandRegistry maps command ids to handlers. Registering an id that is
// already present shadows the earlier handler until the newer registration
// is disposed.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string][]commandEntry
	seq      int

	onDidRegister *emitter.Emitter[string]
	onDidExecute  *emitter.Emitter[ExecutionEvent]
}

// ExecutionEvent reports a command that ran without error.
type ExecutionEvent struct {
	ID   string
	Args []any
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands:      make(map[string][]commandEntry),
		onDidRegister: emitter.New[string](),
		onDidExecute:  emitter.New[ExecutionEvent](),
	}
}

// RegisterCommand registers handler under id.
func (r *CommandRegistry) RegisterCommand(id string, handler Handler) (emitter.Disposable, error) {
	return r.Register(Command{ID: id, Handler: handler})
}

// Register registers a command. Disposing the result removes exactly this
// registration.
func (r *CommandRegistry) Register(cmd Command) (emitter.Disposable, error) {
	if cmd.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidCommand)
	}
	if cmd.Handler == nil {
		return nil, fmt.Errorf("%w: %s has no handler", ErrInvalidCommand, cmd.ID)
	}

	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.commands[cmd.ID] = append(r.commands[cmd.ID], commandEntry{seq: seq, cmd: cmd})
	r.mu.Unlock()

	r.onDidRegister.Fire(cmd.ID)

	return emitter.DisposableFunc(func() { r.remove(cmd.ID, seq) }), nil
}

func (r *CommandRegistry) remove(id string, seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.commands[id]
	for i, e := range stack {
		if e.seq == seq {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(r.commands, id)
		return
	}
	r.commands[id] = stack
}

// Command returns the active registration for id.
func (r *CommandRegistry) Command(id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stack := r.commands[id]
	if len(stack) == 0 {
		return Command{}, false
	}
	return stack[len(stack)-1].cmd, true
}

// HasCommand reports whether id is registered.
func (r *CommandRegistry) HasCommand(id string) bool {
	_, ok := r.Command(id)
	return ok
}

// ExecuteCommand runs the active handler for id.
func (r *CommandRegistry) ExecuteCommand(ctx context.Context, id string, args ...any) (any, error) {
	cmd, ok := r.Command(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	res, err := cmd.Handler(ctx, args...)
	if err == nil {
		r.onDidExecute.Fire(ExecutionEvent{ID: id, Args: args})
	}
	return res, err
}

// Commands returns the registered ids, sorted.
func (r *CommandRegistry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnDidRegisterCommand subscribes to registrations.
func (r *CommandRegistry) OnDidRegisterCommand(fn emitter.Listener[string]) emitter.Disposable {
	return r.onDidRegister.Subscribe(fn)
}

// OnDidExecuteCommand subscribes to successful executions.
func (r *CommandRegistry) OnDidExecuteCommand(fn emitter.Listener[ExecutionEvent]) emitter.Disposable {
	return r.onDidExecute.Subscribe(fn)
}
