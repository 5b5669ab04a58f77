package terminal

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// OSC codes understood by instances.
const (
	oscCwd              = 7
	oscShellIntegration = 633
)

// Resizer is implemented by processes with a window size.
type Resizer interface {
	Resize(cols, rows int) error
}

// Waiter is implemented by processes that report an exit code.
type Waiter interface {
	Wait() (int, error)
}

// Execution is one command observed through shell integration.
type Execution struct {
	ID          int
	CommandLine string
	Cwd         string
}

// ExecutionData is output written while an execution runs.
type ExecutionData struct {
	ID   int
	Data string
}

// ExecutionEnd reports a finished execution. ExitCode is nil when the
// shell did not report one.
type ExecutionEnd struct {
	Execution
	ExitCode *int
}

// Instance is one running terminal.
type Instance struct {
	id          int
	name        string
	proc        io.ReadWriteCloser
	log         pslog.Logger
	integration bool

	scanner Scanner

	mu       sync.Mutex
	active   bool
	cwd      string
	cmdline  string
	running  *Execution
	nextExec int

	closed   atomic.Bool
	exitCode atomic.Int32
	done     chan struct{}

	onData         *emitter.Emitter[string]
	onDidActivate  *emitter.Emitter[struct{}]
	onDidStart     *emitter.Emitter[Execution]
	onDidWrite     *emitter.Emitter[ExecutionData]
	onDidEnd       *emitter.Emitter[ExecutionEnd]
	onDidChangeCwd *emitter.Emitter[string]
	onDidExit      *emitter.Emitter[int]
}

func newInstance(id int, name, cwd string, proc io.ReadWriteCloser, integration bool, log pslog.Logger) *Instance {
	t := &Instance{
		id:             id,
		name:           name,
		proc:           proc,
		log:            log,
		integration:    integration,
		cwd:            cwd,
		done:           make(chan struct{}),
		onData:         emitter.New[string](),
		onDidActivate:  emitter.New[struct{}](),
		onDidStart:     emitter.New[Execution](),
		onDidWrite:     emitter.New[ExecutionData](),
		onDidEnd:       emitter.New[ExecutionEnd](),
		onDidChangeCwd: emitter.New[string](),
		onDidExit:      emitter.New[int](),
	}
	t.exitCode.Store(-1)
	return t
}

func (t *Instance) ID() int      { return t.id }
func (t *Instance) Name() string { return t.name }

// Cwd returns the last reported working directory.
func (t *Instance) Cwd() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cwd
}

// HasShellIntegration reports whether the shell has sent any OSC 633 sequence.
func (t *Instance) HasShellIntegration() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Instance) OnData(fn emitter.Listener[string]) emitter.Disposable {
	return t.onData.Subscribe(fn)
}

func (t *Instance) OnDidActivateShellIntegration(fn emitter.Listener[struct{}]) emitter.Disposable {
	return t.onDidActivate.Subscribe(fn)
}

func (t *Instance) OnDidStartExecution(fn emitter.Listener[Execution]) emitter.Disposable {
	return t.onDidStart.Subscribe(fn)
}

func (t *Instance) OnDidWriteExecutionData(fn emitter.Listener[ExecutionData]) emitter.Disposable {
	return t.onDidWrite.Subscribe(fn)
}

func (t *Instance) OnDidEndExecution(fn emitter.Listener[ExecutionEnd]) emitter.Disposable {
	return t.onDidEnd.Subscribe(fn)
}

func (t *Instance) OnDidChangeCwd(fn emitter.Listener[string]) emitter.Disposable {
	return t.onDidChangeCwd.Subscribe(fn)
}

// OnDidExit fires once with the exit code, -1 if unknown.
func (t *Instance) OnDidExit(fn emitter.Listener[int]) emitter.Disposable {
	return t.onDidExit.Subscribe(fn)
}

// Write sends raw input to the process.
func (t *Instance) Write(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	return t.proc.Write(p)
}

// SendText writes text, followed by a carriage return if addNewLine is set.
func (t *Instance) SendText(text string, addNewLine bool) error {
	if addNewLine {
		text += "\r"
	}
	_, err := t.Write([]byte(text))
	return err
}

// ExecuteCommand types commandLine into the shell and submits it.
func (t *Instance) ExecuteCommand(commandLine string) error {
	return t.SendText(commandLine, true)
}

// Resize changes the window size.
func (t *Instance) Resize(cols, rows int) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if cols < 1 || rows < 1 {
		return ErrInvalidSize
	}
	r, ok := t.proc.(Resizer)
	if !ok {
		return ErrNotResizable
	}
	return r.Resize(cols, rows)
}

// Close stops the process and waits for the output loop to finish.
func (t *Instance) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	err := t.proc.Close()
	<-t.done
	return err
}

// Done is closed once the process has exited.
func (t *Instance) Done() <-chan struct{} { return t.done }

// ExitCode returns the exit code, or -1 while running or when unknown.
func (t *Instance) ExitCode() int { return int(t.exitCode.Load()) }

func (t *Instance) readLoop() {
	defer close(t.done)

	buf := make([]byte, 4096)
	for {
		n, err := t.proc.Read(buf)
		if n > 0 {
			t.process(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.closed.Load() {
				t.log.Debug("terminal read ended", "terminal", t.id, "error", err)
			}
			break
		}
	}
	t.closed.Store(true)

	if w, ok := t.proc.(Waiter); ok {
		if code, err := w.Wait(); err == nil {
			t.exitCode.Store(int32(code))
		}
	}
	t.onDidExit.Fire(t.ExitCode())
}

// event is a deferred emitter fire, collected under the lock.
type event func()

func (t *Instance) process(data []byte) {
	var events []event

	t.mu.Lock()
	for _, tok := range t.scanner.Scan(data) {
		if tok.OSC == nil {
			text := tok.Text
			events = append(events, func() { t.onData.Fire(text) })
			if t.running != nil {
				id := t.running.ID
				events = append(events, func() { t.onDidWrite.Fire(ExecutionData{ID: id, Data: text}) })
			}
			continue
		}
		events = append(events, t.handleOSC(*tok.OSC)...)
	}
	t.mu.Unlock()

	for _, fire := range events {
		fire()
	}
}

// handleOSC updates state for one sequence. t.mu is held.
func (t *Instance) handleOSC(seq OSC) []event {
	switch seq.Code {
	case oscCwd:
		u, err := uri.Parse(seq.Data)
		if err != nil || u.Path() == "" {
			return nil
		}
		return t.setCwd(u.Path())
	case oscShellIntegration:
		if !t.integration {
			return nil
		}
	default:
		return nil
	}

	var events []event
	if !t.active {
		t.active = true
		events = append(events, func() { t.onDidActivate.Fire(struct{}{}) })
	}

	cmd, rest, _ := strings.Cut(seq.Data, ";")
	switch cmd {
	case "A":
		// A new prompt without D means the shell skipped the end marker.
		if t.running != nil {
			events = append(events, t.endExecution(nil))
		}
	case "B":
	case "E":
		line, _, _ := strings.Cut(rest, ";")
		t.cmdline = unescapeValue(line)
	case "C":
		if t.running != nil {
			events = append(events, t.endExecution(nil))
		}
		t.nextExec++
		exec := Execution{ID: t.nextExec, CommandLine: t.cmdline, Cwd: t.cwd}
		t.running = &exec
		t.cmdline = ""
		events = append(events, func() { t.onDidStart.Fire(exec) })
	case "D":
		if t.running == nil {
			return events
		}
		var code *int
		if rest != "" {
			if n, err := strconv.Atoi(rest); err == nil {
				code = &n
			}
		}
		events = append(events, t.endExecution(code))
	case "P":
		key, value, _ := strings.Cut(rest, "=")
		if key == "Cwd" {
			events = append(events, t.setCwd(unescapeValue(value))...)
		}
	default:
		t.log.Debug("unknown shell integration sequence", "terminal", t.id, "command", cmd)
	}
	return events
}

func (t *Instance) endExecution(code *int) event {
	end := ExecutionEnd{Execution: *t.running, ExitCode: code}
	t.running = nil
	return func() { t.onDidEnd.Fire(end) }
}

func (t *Instance) setCwd(dir string) []event {
	if dir == t.cwd {
		return nil
	}
	t.cwd = dir
	return []event{func() { t.onDidChangeCwd.Fire(dir) }}
}

func (t *Instance) dispose() {
	t.onData.Dispose()
	t.onDidActivate.Dispose()
	t.onDidStart.Dispose()
	t.onDidWrite.Dispose()
	t.onDidEnd.Dispose()
	t.onDidChangeCwd.Dispose()
	t.onDidExit.Dispose()
}
