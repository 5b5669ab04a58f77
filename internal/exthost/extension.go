package exthost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// State is the lifecycle state of an extension.
type State int

const (
	StateLoaded State = iota
	StateActive
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// job runs on the interpreter goroutine.
type job struct {
	ctx    context.Context
	fn     func(L *lua.LState) error
	result chan error
}

// Extension is one loaded extension and its interpreter.
type Extension struct {
	manifest *Manifest
	host     *Host
	log      pslog.Logger
	timeout  time.Duration

	L         *lua.LState
	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	state    State
	err      error
	handlers map[string]*lua.LFunction
	commands map[string]*lua.LFunction
	tools    map[string]*lua.LFunction
}

func newExtension(h *Host, m *Manifest) *Extension {
	e := &Extension{
		manifest: m,
		host:     h,
		log:      logx.WithExtension(h.log, m.ID()),
		timeout:  h.opts.CallTimeout,
		L:        newSandbox(),
		jobs:     make(chan job),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		handlers: make(map[string]*lua.LFunction),
		commands: make(map[string]*lua.LFunction),
		tools:    make(map[string]*lua.LFunction),
	}
	e.installAPI()
	go e.loop()
	return e
}

func (e *Extension) ID() string          { return e.manifest.ID() }
func (e *Extension) Manifest() *Manifest { return e.manifest }

func (e *Extension) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the error that put the extension in StateError.
func (e *Extension) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Extension) fail(err error) error {
	e.mu.Lock()
	e.state = StateError
	e.err = err
	e.mu.Unlock()
	return err
}

// loop owns the interpreter. gopher-lua states are not goroutine-safe.
func (e *Extension) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			e.L.Close()
			return
		case j := <-e.jobs:
			j.result <- e.runJob(j)
		}
	}
}

func (e *Extension) runJob(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	e.L.SetContext(j.ctx)
	defer e.L.RemoveContext()
	return j.fn(e.L)
}

// do runs fn on the interpreter goroutine with the call timeout applied.
func (e *Extension) do(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case e.jobs <- j:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-e.done:
		return ErrClosed
	}
}

// activate runs the entry point, then the global activate function if
// the script defines one.
func (e *Extension) activate(ctx context.Context) error {
	err := e.do(ctx, func(L *lua.LState) error {
		if err := L.DoFile(e.manifest.MainPath()); err != nil {
			return err
		}
		if fn, ok := L.GetGlobal("activate").(*lua.LFunction); ok {
			return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
		}
		return nil
	})
	if err != nil {
		return e.fail(fmt.Errorf("exthost: activate %s: %w", e.ID(), err))
	}
	e.mu.Lock()
	e.state = StateActive
	e.mu.Unlock()
	e.log.Info("extension activated", "version", e.manifest.Version)
	return nil
}

// invoke calls fn with args and returns its first result as a Go value.
func (e *Extension) invoke(ctx context.Context, fn *lua.LFunction, args ...any) (any, error) {
	var out any
	err := e.do(ctx, func(L *lua.LState) error {
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = toLua(L, a)
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
			return err
		}
		ret := L.Get(-1)
		L.Pop(1)
		out = toGo(ret)
		return nil
	})
	return out, err
}

func (e *Extension) handler(method string) *lua.LFunction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers[method]
}

func (e *Extension) command(id string) *lua.LFunction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commands[id]
}

func (e *Extension) tool(name string) *lua.LFunction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tools[name]
}

// Close runs the global deactivate function and stops the interpreter.
func (e *Extension) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.State() == StateActive {
			err = e.do(context.Background(), func(L *lua.LState) error {
				if fn, ok := L.GetGlobal("deactivate").(*lua.LFunction); ok {
					return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
				}
				return nil
			})
		}
		close(e.quit)
		<-e.done
		e.mu.Lock()
		e.state = StateClosed
		e.mu.Unlock()
	})
	return err
}

// installAPI publishes the ext table. Its functions run on the
// interpreter goroutine and use the context of the current job.
func (e *Extension) installAPI() {
	L := e.L
	api := L.NewTable()
	L.SetFuncs(api, map[string]lua.LGFunction{
		"call":            e.luaCall,
		"notify":          e.luaNotify,
		"on":              e.luaOn,
		"registerCommand": e.luaRegisterCommand,
		"registerTool":    e.luaRegisterTool,
		"log":             e.luaLog,
	})
	api.RawSetString("id", lua.LString(e.manifest.ID()))
	api.RawSetString("version", lua.LString(e.manifest.Version))
	L.SetGlobal("ext", api)
	L.SetGlobal("print", L.NewFunction(e.luaLog))
}

func jobContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func pushError(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

// ext.call(method, params) -> result | nil, err
func (e *Extension) luaCall(L *lua.LState) int {
	method := L.CheckString(1)
	params := toGo(L.Get(2))
	var result any
	if err := e.host.call(jobContext(L), method, params, &result); err != nil {
		return pushError(L, err)
	}
	L.Push(toLua(L, result))
	return 1
}

// ext.notify(method, params) -> true | nil, err
func (e *Extension) luaNotify(L *lua.LState) int {
	method := L.CheckString(1)
	params := toGo(L.Get(2))
	if err := e.host.notify(jobContext(L), method, params); err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// ext.on(method, fn)
func (e *Extension) luaOn(L *lua.LState) int {
	method := L.CheckString(1)
	fn := L.CheckFunction(2)
	if !rpc.ValidMethod(method) {
		L.ArgError(1, "method names start with $")
		return 0
	}
	e.mu.Lock()
	e.handlers[method] = fn
	e.mu.Unlock()
	return 0
}

// ext.registerCommand(id, fn) -> true | nil, err
func (e *Extension) luaRegisterCommand(L *lua.LState) int {
	id := L.CheckString(1)
	fn := L.CheckFunction(2)
	e.mu.Lock()
	e.commands[id] = fn
	e.mu.Unlock()
	if err := e.host.call(jobContext(L), "$registerCommand", map[string]any{"id": id}, nil); err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// ext.registerTool(name, fn) -> true | nil, err
func (e *Extension) luaRegisterTool(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	e.mu.Lock()
	e.tools[name] = fn
	e.mu.Unlock()

	params := map[string]any{"id": name}
	if t, ok := e.manifest.Tool(name); ok {
		params["data"] = map[string]any{
			"id":               name,
			"displayName":      t.DisplayName,
			"modelDescription": t.ModelDescription,
			"inputSchema":      t.InputSchema,
			"tags":             t.Tags,
			"source":           e.ID(),
		}
	}
	if err := e.host.call(jobContext(L), "$registerTool", params, nil); err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// ext.log(...) logs its arguments joined by spaces.
func (e *Extension) luaLog(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	e.log.Info(strings.Join(parts, " "))
	return 0
}
