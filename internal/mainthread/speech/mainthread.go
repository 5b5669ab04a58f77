// Package speech forwards speech sessions to extension host providers.
//
// A session is created on the extension host when the local side asks for
// one and cancelled when the requesting context ends. A context that is
// already done yields a passive session without any remote call.
package speech

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/handle"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
)

const namespace = "speech"

// Inbound messages.

// RegisterProvider announces a speech provider under Handle.
type RegisterProvider struct {
	Handle     int      `json:"handle"`
	Identifier string   `json:"identifier"`
	Metadata   Metadata `json:"metadata"`
}

// UnregisterProvider removes the provider registered under Handle.
type UnregisterProvider struct {
	Handle int `json:"handle"`
}

// EmitSpeechToTextEvent delivers a transcription event to a session.
type EmitSpeechToTextEvent struct {
	Session int   `json:"session"`
	Event   Event `json:"event"`
}

// EmitTextToSpeechEvent delivers a synthesis event to a session.
type EmitTextToSpeechEvent struct {
	Session int   `json:"session"`
	Event   Event `json:"event"`
}

// EmitKeywordRecognitionEvent reports a keyword recognition result.
type EmitKeywordRecognitionEvent struct {
	Session int   `json:"session"`
	Event   Event `json:"event"`
}

func (RegisterProvider) Method() string            { return "$registerProvider" }
func (UnregisterProvider) Method() string          { return "$unregisterProvider" }
func (EmitSpeechToTextEvent) Method() string       { return "$emitSpeechToTextEvent" }
func (EmitTextToSpeechEvent) Method() string       { return "$emitTextToSpeechEvent" }
func (EmitKeywordRecognitionEvent) Method() string { return "$emitKeywordRecognitionEvent" }

// Outbound messages.

type sessionRequest struct {
	method   string
	Handle   int    `json:"handle"`
	Session  int    `json:"session"`
	Language string `json:"language,omitempty"`
}

func (r sessionRequest) Method() string { return r.method }

type cancelSession struct {
	method  string
	Session int `json:"session"`
}

func (c cancelSession) Method() string { return c.method }

type synthesizeSpeech struct {
	Session int    `json:"session"`
	Text    string `json:"text"`
}

func (synthesizeSpeech) Method() string { return "$synthesizeSpeech" }

type kind struct {
	create string
	cancel string
}

var (
	speechToText       = kind{"$createSpeechToTextSession", "$cancelSpeechToTextSession"}
	textToSpeech       = kind{"$createTextToSpeechSession", "$cancelTextToSpeechSession"}
	keywordRecognition = kind{"$createKeywordRecognitionSession", "$cancelKeywordRecognitionSession"}
)

// MainThread is the main-thread side of the speech API.
type MainThread struct {
	peer      rpc.Peer
	log       pslog.Logger
	service   *Service
	providers *handle.Registry[emitter.Disposable]

	mu       sync.Mutex
	nextID   int
	sessions map[kind]map[int]*Session
}

// New creates the proxy. A nil service is replaced with a fresh one.
func New(peer rpc.Peer, service *Service, log pslog.Logger) *MainThread {
	if service == nil {
		service = NewService()
	}
	return &MainThread{
		peer:      peer,
		log:       logx.WithComponent(logx.OrDefault(log), namespace),
		service:   service,
		providers: handle.NewRegistry[emitter.Disposable](),
		sessions: map[kind]map[int]*Session{
			speechToText:       {},
			textToSpeech:       {},
			keywordRecognition: {},
		},
	}
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$registerProvider":            func() rpc.Message { return &RegisterProvider{} },
		"$unregisterProvider":          func() rpc.Message { return &UnregisterProvider{} },
		"$emitSpeechToTextEvent":       func() rpc.Message { return &EmitSpeechToTextEvent{} },
		"$emitTextToSpeechEvent":       func() rpc.Message { return &EmitTextToSpeechEvent{} },
		"$emitKeywordRecognitionEvent": func() rpc.Message { return &EmitKeywordRecognitionEvent{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *RegisterProvider:
		p := &remoteProvider{m: m, handle: msg.Handle}
		m.providers.Register(msg.Handle, m.service.RegisterProvider(msg.Identifier, msg.Metadata, p))
	case *UnregisterProvider:
		if !m.providers.Unregister(msg.Handle) {
			mainthread.DropUnknown(m.log, namespace, msg.Handle, msg.Method())
		}
	case *EmitSpeechToTextEvent:
		m.emit(speechToText, msg.Session, msg.Event)
	case *EmitTextToSpeechEvent:
		m.emit(textToSpeech, msg.Session, msg.Event)
	case *EmitKeywordRecognitionEvent:
		m.emit(keywordRecognition, msg.Session, msg.Event)
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

func (m *MainThread) emit(k kind, id int, e Event) {
	m.mu.Lock()
	s, ok := m.sessions[k][id]
	m.mu.Unlock()
	if !ok {
		m.log.Debug("event for unknown session", "session", id, "status", int(e.Status))
		return
	}
	s.events.Fire(e)
}

// open creates a remote session of kind k, cancelled when ctx ends.
func (m *MainThread) open(ctx context.Context, k kind, h int, opts Options) *Session {
	if ctx.Err() != nil {
		return passive()
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	s := &Session{events: emitter.New[Event]()}
	m.sessions[k][id] = s
	m.mu.Unlock()

	if k == textToSpeech {
		s.synth = func(ctx context.Context, text string) error {
			return rpc.Notify(ctx, m.peer, synthesizeSpeech{Session: id, Text: text})
		}
	}

	req := sessionRequest{method: k.create, Handle: h, Session: id, Language: opts.Language}
	if err := rpc.Notify(ctx, m.peer, req); err != nil {
		m.log.Warn("creating speech session failed", "session", id, "error", err)
	}

	context.AfterFunc(ctx, func() {
		m.mu.Lock()
		delete(m.sessions[k], id)
		m.mu.Unlock()
		s.events.Dispose()

		if err := rpc.Notify(context.Background(), m.peer, cancelSession{method: k.cancel, Session: id}); err != nil {
			m.log.Warn("cancelling speech session failed", "session", id, "error", err)
		}
	})
	return s
}

// Sessions returns the number of live sessions.
func (m *MainThread) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byID := range m.sessions {
		n += len(byID)
	}
	return n
}

// Service returns the speech service.
func (m *MainThread) Service() *Service { return m.service }

// Dispose unregisters every provider.
func (m *MainThread) Dispose() { m.providers.Dispose() }

// remoteProvider is a Provider backed by the extension host.
type remoteProvider struct {
	m      *MainThread
	handle int
}

func (p *remoteProvider) CreateSpeechToTextSession(ctx context.Context, opts Options) *Session {
	return p.m.open(ctx, speechToText, p.handle, opts)
}

func (p *remoteProvider) CreateTextToSpeechSession(ctx context.Context, opts Options) *Session {
	return p.m.open(ctx, textToSpeech, p.handle, opts)
}

func (p *remoteProvider) CreateKeywordRecognitionSession(ctx context.Context) *Session {
	return p.m.open(ctx, keywordRecognition, p.handle, Options{})
}
