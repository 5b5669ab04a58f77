package workbench

import (
	"context"
	"io"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/mainthread/clipboard"
	cmdthread "github.com/dshills/extbridge/internal/mainthread/commands"
	"github.com/dshills/extbridge/internal/mainthread/comments"
	"github.com/dshills/extbridge/internal/mainthread/diagnostics"
	"github.com/dshills/extbridge/internal/mainthread/lmtools"
	"github.com/dshills/extbridge/internal/mainthread/scm"
	"github.com/dshills/extbridge/internal/mainthread/speech"
	"github.com/dshills/extbridge/internal/mainthread/telemetry"
	"github.com/dshills/extbridge/internal/mainthread/terminalshell"
	"github.com/dshills/extbridge/internal/rpc"
)

// Session is one extension host connection and its main-thread proxies.
type Session struct {
	Conn   *rpc.Conn
	Router *rpc.Router

	SCM         *scm.MainThread
	Comments    *comments.MainThread
	Diagnostics *diagnostics.MainThread
	Speech      *speech.MainThread
	Telemetry   *telemetry.MainThread
	Terminal    *terminalshell.MainThread
	Tools       *lmtools.MainThread
	Commands    *cmdthread.MainThread

	log       pslog.Logger
	threads   emitter.Store
	closeOnce sync.Once
}

// peerRef lets the proxies be built before the connection that carries
// their traffic exists.
type peerRef struct {
	mu   sync.RWMutex
	peer rpc.Peer
}

func (p *peerRef) set(peer rpc.Peer) {
	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
}

func (p *peerRef) get() (rpc.Peer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.peer == nil {
		return nil, rpc.ErrClosed
	}
	return p.peer, nil
}

func (p *peerRef) Call(ctx context.Context, method string, params, result any) error {
	peer, err := p.get()
	if err != nil {
		return err
	}
	return peer.Call(ctx, method, params, result)
}

func (p *peerRef) Notify(ctx context.Context, method string, params any) error {
	peer, err := p.get()
	if err != nil {
		return err
	}
	return peer.Notify(ctx, method, params)
}

// Connect serves the extension host on rwc. Every proxy is registered
// before the first message is read.
func (w *Workbench) Connect(ctx context.Context, rwc io.ReadWriteCloser) (*Session, error) {
	peer := &peerRef{}
	s := &Session{
		Router: rpc.NewRouter(w.log),
		log:    w.log,

		SCM: scm.New(peer, scm.Deps{
			Service:   w.SCM,
			QuickDiff: w.QuickDiff,
			Models:    w.Models,
		}, w.log),
		Comments:    comments.New(peer, w.Comments, w.log),
		Diagnostics: diagnostics.New(peer, w.Markers, w.log),
		Speech:      speech.New(peer, w.Speech, w.log),
		Telemetry:   telemetry.New(peer, w.Telemetry, w.log),
		Terminal:    terminalshell.New(peer, w.Terminals, w.log),
		Tools:       lmtools.New(peer, w.Tools, w.log),
		Commands:    cmdthread.New(peer, w.Actions.Commands, w.log),
	}
	services := []rpc.Service{
		s.SCM, s.Comments, s.Diagnostics, s.Speech, s.Telemetry,
		s.Terminal, s.Tools, s.Commands, clipboard.New(w.Clipboard, w.log),
	}
	for _, d := range []emitter.Disposable{
		s.SCM, s.Comments, s.Diagnostics, s.Speech, s.Telemetry,
		s.Terminal, s.Tools, s.Commands,
	} {
		s.threads.Add(d)
	}
	for _, svc := range services {
		if err := s.Router.Register(svc); err != nil {
			s.threads.Dispose()
			return nil, err
		}
	}

	s.Conn = rpc.NewConn(ctx, rwc, s.Router, w.log)
	peer.set(s.Conn)
	s.log = w.log.With("conn", s.Conn.ID())

	if err := s.Telemetry.Bind(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.log.Info("extension host connected", "methods", len(s.Router.Methods()))
	return s, nil
}

// Done is closed when the extension host goes away.
func (s *Session) Done() <-chan struct{} { return s.Conn.Done() }

// Close disposes the proxies and closes the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.threads.Dispose()
		err = s.Conn.Close()
		s.log.Info("extension host disconnected")
	})
	return err
}
