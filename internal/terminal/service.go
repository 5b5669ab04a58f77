package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
)

// Options configures a new terminal.
type Options struct {
	Name string

	// Shell defaults to terminal.integrated.shell, then $SHELL, then /bin/sh.
	Shell string
	Args  []string
	Env   []string
	Cwd   string

	// Cols and Rows default to 80x24.
	Cols int
	Rows int
}

// Service owns the terminal instances of a workbench.
type Service struct {
	cfg *configuration.Service
	log pslog.Logger

	mu        sync.Mutex
	nextID    int
	instances map[int]*Instance

	onDidCreate  *emitter.Emitter[*Instance]
	onDidDispose *emitter.Emitter[*Instance]
}

// NewService creates an empty service. cfg may be nil.
func NewService(cfg *configuration.Service, log pslog.Logger) *Service {
	return &Service{
		cfg:          cfg,
		log:          logx.WithComponent(logx.OrDefault(log), "terminal"),
		instances:    make(map[int]*Instance),
		onDidCreate:  emitter.New[*Instance](),
		onDidDispose: emitter.New[*Instance](),
	}
}

func (s *Service) shell(opts Options) string {
	if opts.Shell != "" {
		return opts.Shell
	}
	if s.cfg != nil {
		if sh := s.cfg.GetString(configuration.KeyTerminalShell); sh != "" {
			return sh
		}
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func (s *Service) integrationEnabled() bool {
	return s.cfg == nil || s.cfg.GetBool(configuration.KeyShellIntegration)
}

// Create starts a shell behind a pseudo-terminal.
func (s *Service) Create(opts Options) (*Instance, error) {
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	shell := s.shell(opts)
	path, err := exec.LookPath(shell)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrShellNotFound, shell)
	}
	if opts.Name == "" {
		opts.Name = shell
	}

	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env, "TERM=xterm-256color")

	proc, err := startPTY(cmd, opts.Cols, opts.Rows)
	if err != nil {
		return nil, err
	}
	t := s.attach(opts.Name, opts.Cwd, proc)
	s.log.Info("terminal started", "terminal", t.ID(), "shell", path, "pid", cmd.Process.Pid)
	return t, nil
}

// Attach wraps an already running process as a terminal.
func (s *Service) Attach(name string, proc io.ReadWriteCloser) *Instance {
	return s.attach(name, "", proc)
}

func (s *Service) attach(name, cwd string, proc io.ReadWriteCloser) *Instance {
	s.mu.Lock()
	s.nextID++
	t := newInstance(s.nextID, name, cwd, proc, s.integrationEnabled(), s.log)
	s.instances[t.id] = t
	s.mu.Unlock()

	s.onDidCreate.Fire(t)
	go t.readLoop()
	go func() {
		<-t.Done()
		s.remove(t)
	}()
	return t
}

func (s *Service) remove(t *Instance) {
	s.mu.Lock()
	_, ok := s.instances[t.id]
	delete(s.instances, t.id)
	s.mu.Unlock()
	if ok {
		s.onDidDispose.Fire(t)
		t.dispose()
	}
}

// Get returns the live terminal with id.
func (s *Service) Get(id int) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.instances[id]
	return t, ok
}

// Instances returns the live terminals ordered by id.
func (s *Service) Instances() []*Instance {
	s.mu.Lock()
	out := make([]*Instance, 0, len(s.instances))
	for _, t := range s.instances {
		out = append(out, t)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *Instance) int { return a.id - b.id })
	return out
}

func (s *Service) OnDidCreate(fn emitter.Listener[*Instance]) emitter.Disposable {
	return s.onDidCreate.Subscribe(fn)
}

// OnDidDispose fires after a terminal's process has exited.
func (s *Service) OnDidDispose(fn emitter.Listener[*Instance]) emitter.Disposable {
	return s.onDidDispose.Subscribe(fn)
}

// Dispose closes every terminal.
func (s *Service) Dispose() {
	for _, t := range s.Instances() {
		if err := t.Close(); err != nil {
			s.log.Debug("closing terminal failed", "terminal", t.ID(), "error", err)
		}
	}
}
