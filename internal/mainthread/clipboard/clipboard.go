// Package clipboard gives the extension host access to the clipboard.
package clipboard

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// Service reads and writes clipboard text.
type Service interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// Memory is an in-process clipboard.
type Memory struct {
	mu   sync.Mutex
	text string

	onDidWrite *emitter.Emitter[string]
}

// NewMemory creates an empty clipboard.
func NewMemory() *Memory {
	return &Memory{onDidWrite: emitter.New[string]()}
}

func (m *Memory) ReadText(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) WriteText(_ context.Context, text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	m.onDidWrite.Fire(text)
	return nil
}

// OnDidWrite fires with every written text.
func (m *Memory) OnDidWrite(fn emitter.Listener[string]) emitter.Disposable {
	return m.onDidWrite.Subscribe(fn)
}

type ReadText struct{}

type WriteText struct {
	Value string `json:"value"`
}

func (ReadText) Method() string  { return "$readText" }
func (WriteText) Method() string { return "$writeText" }

// MainThread serves clipboard requests from the extension host.
type MainThread struct {
	service Service
	log     pslog.Logger
}

// New creates the proxy. A nil service uses a fresh Memory clipboard.
func New(service Service, log pslog.Logger) *MainThread {
	if service == nil {
		service = NewMemory()
	}
	return &MainThread{service: service, log: logx.WithComponent(logx.OrDefault(log), "clipboard")}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$readText":  func() rpc.Message { return &ReadText{} },
		"$writeText": func() rpc.Message { return &WriteText{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(ctx context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *ReadText:
		return m.service.ReadText(ctx)
	case *WriteText:
		m.log.Debug("clipboard write", "bytes", len(msg.Value))
		return nil, m.service.WriteText(ctx, msg.Value)
	default:
		return nil, rpc.Unhandled(msg)
	}
}

// Service returns the backing clipboard.
func (m *MainThread) Service() Service { return m.service }
