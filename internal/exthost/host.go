package exthost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// DefaultCallTimeout bounds a single call into an extension.
const DefaultCallTimeout = 30 * time.Second

// ErrNotBound is returned by ext.call and ext.notify before Bind.
var ErrNotBound = errors.New("exthost: not connected")

// Options configures a Host.
type Options struct {
	// CallTimeout bounds each call into an interpreter. Zero means
	// DefaultCallTimeout; a negative value disables the bound.
	CallTimeout time.Duration
}

// Host loads extensions and serves the main thread's calls into them.
type Host struct {
	log  pslog.Logger
	opts Options

	mu         sync.RWMutex
	peer       rpc.Peer
	extensions map[string]*Extension
}

// New creates a host with no extensions.
func New(log pslog.Logger, opts Options) *Host {
	switch {
	case opts.CallTimeout == 0:
		opts.CallTimeout = DefaultCallTimeout
	case opts.CallTimeout < 0:
		opts.CallTimeout = 0
	}
	return &Host{
		log:        logx.WithComponent(logx.OrDefault(log), "exthost"),
		opts:       opts,
		extensions: make(map[string]*Extension),
	}
}

// Bind sets the connection to the main thread.
func (h *Host) Bind(peer rpc.Peer) {
	h.mu.Lock()
	h.peer = peer
	h.mu.Unlock()
}

func (h *Host) currentPeer() (rpc.Peer, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.peer == nil {
		return nil, ErrNotBound
	}
	return h.peer, nil
}

func (h *Host) call(ctx context.Context, method string, params, result any) error {
	peer, err := h.currentPeer()
	if err != nil {
		return err
	}
	if err := peer.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (h *Host) notify(ctx context.Context, method string, params any) error {
	peer, err := h.currentPeer()
	if err != nil {
		return err
	}
	if err := peer.Notify(ctx, method, params); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Load reads the extension in dir and activates it. An extension that
// fails to activate is closed and not kept.
func (h *Host) Load(ctx context.Context, dir string) (*Extension, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if _, exists := h.extensions[m.ID()]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateExtension, m.ID())
	}
	e := newExtension(h, m)
	h.extensions[m.ID()] = e
	h.mu.Unlock()

	if err := e.activate(ctx); err != nil {
		h.mu.Lock()
		delete(h.extensions, m.ID())
		h.mu.Unlock()
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// LoadDir loads every extension directory under root, in name order.
// Directories without a manifest are skipped. Failures do not stop the
// remaining extensions from loading.
func (h *Host) LoadDir(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("exthost: read %s: %w", root, err)
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		e, err := h.Load(ctx, dir)
		switch {
		case errors.Is(err, ErrNoManifest):
			h.log.Debug("skipping directory without manifest", "dir", dir)
		case err != nil:
			h.log.Error("extension failed to load", "dir", dir, "error", err)
			errs = append(errs, err)
		default:
			h.log.Info("extension loaded", "extension", e.ID(), "dir", dir)
		}
	}
	return errors.Join(errs...)
}

// Extension returns the loaded extension with the given id.
func (h *Host) Extension(id string) (*Extension, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.extensions[id]
	return e, ok
}

// Extensions returns the loaded extensions sorted by id.
func (h *Host) Extensions() []*Extension {
	h.mu.RLock()
	out := make([]*Extension, 0, len(h.extensions))
	for _, e := range h.extensions {
		out = append(out, e)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close deactivates and unloads every extension.
func (h *Host) Close() error {
	exts := h.Extensions()
	h.mu.Lock()
	h.extensions = make(map[string]*Extension)
	h.mu.Unlock()

	var errs []error
	for _, e := range exts {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("exthost: deactivate %s: %w", e.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Inbound is a main thread invocation of the extension host. Params stay
// raw until an extension handles them.
type Inbound struct {
	method string
	Params json.RawMessage
}

func (m *Inbound) Method() string { return m.method }

func (m *Inbound) UnmarshalJSON(data []byte) error {
	m.Params = append(json.RawMessage(nil), data...)
	return nil
}

// Methods the main thread sends to the extension host.
var hostMethods = []string{
	"$executeContributedCommand",
	"$invokeTool",
	"$countTokensForInvocation",
	"$initializeTelemetryLevel",
	"$onDidChangeTelemetryLevel",
	"$acceptMarkersChange",
	"$provideOriginalResource",
	"$executeResourceCommand",
	"$onInputBoxValueChange",
	"$validateInput",
	"$provideHistoryItems",
	"$provideCommentingRanges",
	"$toggleReaction",
	"$createCommentThreadTemplate",
	"$createSpeechToTextSession",
	"$cancelSpeechToTextSession",
	"$createTextToSpeechSession",
	"$cancelTextToSpeechSession",
	"$synthesizeSpeech",
	"$createKeywordRecognitionSession",
	"$cancelKeywordRecognitionSession",
	"$shellIntegrationChange",
	"$shellExecutionStart",
	"$shellExecutionData",
	"$shellExecutionEnd",
	"$cwdChange",
	"$closeTerminal",
}

// Messages implements rpc.Service.
func (h *Host) Messages() rpc.Table {
	t := make(rpc.Table, len(hostMethods))
	for _, name := range hostMethods {
		t[name] = func() rpc.Message { return &Inbound{method: name} }
	}
	return t
}

type contributedCommand struct {
	ID   string            `json:"id"`
	Args []json.RawMessage `json:"args"`
}

type toolInvocation struct {
	Dto struct {
		CallID     string          `json:"callId"`
		ToolID     string          `json:"toolId"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"dto"`
}

// Dispatch implements rpc.Service. Every call runs asynchronously so an
// extension may call back into the main thread while it handles one.
func (h *Host) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	in, ok := msg.(*Inbound)
	if !ok {
		return nil, rpc.Unhandled(msg)
	}
	switch in.method {
	case "$executeContributedCommand":
		return h.executeCommand(in)
	case "$invokeTool":
		return h.invokeTool(in)
	default:
		return h.broadcast(in), nil
	}
}

func (h *Host) executeCommand(in *Inbound) (any, error) {
	var req contributedCommand
	if err := json.Unmarshal(in.Params, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", rpc.ErrInvalidParams, err)
	}
	e, fn := h.findCommand(req.ID)
	if fn == nil {
		return nil, fmt.Errorf("%w: command %s", ErrNoHandler, req.ID)
	}
	args := make([]any, len(req.Args))
	for i, a := range req.Args {
		args[i] = a
	}
	return rpc.Async(func(ctx context.Context) (any, error) {
		return e.invoke(ctx, fn, args...)
	}), nil
}

func (h *Host) invokeTool(in *Inbound) (any, error) {
	var req toolInvocation
	if err := json.Unmarshal(in.Params, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", rpc.ErrInvalidParams, err)
	}
	e, fn := h.findTool(req.Dto.ToolID)
	if fn == nil {
		return nil, fmt.Errorf("%w: tool %s", ErrNoHandler, req.Dto.ToolID)
	}
	return rpc.Async(func(ctx context.Context) (any, error) {
		out, err := e.invoke(ctx, fn, req.Dto.Parameters, req.Dto.CallID)
		if err != nil {
			return nil, err
		}
		return toolResult(out), nil
	}), nil
}

// toolResult shapes a Lua return value as a tool result. Tables that
// already carry content pass through; anything else becomes one text part.
func toolResult(v any) any {
	switch v := v.(type) {
	case nil:
		return map[string]any{"content": []any{}}
	case map[string]any:
		if _, ok := v["content"]; ok {
			return v
		}
	case string:
		return textResult(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return textResult(fmt.Sprint(v))
	}
	return textResult(string(data))
}

func textResult(s string) map[string]any {
	return map[string]any{"content": []any{map[string]any{"kind": "text", "value": s}}}
}

// broadcast hands the params to every extension that registered a
// handler. The first non-nil result is the reply.
func (h *Host) broadcast(in *Inbound) any {
	type target struct {
		ext *Extension
		fn  *lua.LFunction
	}
	var targets []target
	for _, e := range h.Extensions() {
		if fn := e.handler(in.method); fn != nil {
			targets = append(targets, target{e, fn})
		}
	}
	if len(targets) == 0 {
		h.log.Debug("no extension handles method", "method", in.method)
		return nil
	}
	return rpc.Async(func(ctx context.Context) (any, error) {
		var (
			result any
			errs   []error
		)
		for _, t := range targets {
			out, err := t.ext.invoke(ctx, t.fn, in.Params)
			if err != nil {
				t.ext.log.Warn("handler failed", "method", in.method, "error", err)
				errs = append(errs, err)
				continue
			}
			if result == nil {
				result = out
			}
		}
		if result == nil && len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return result, nil
	})
}

func (h *Host) findCommand(id string) (*Extension, *lua.LFunction) {
	for _, e := range h.Extensions() {
		if fn := e.command(id); fn != nil {
			return e, fn
		}
	}
	return nil, nil
}

func (h *Host) findTool(name string) (*Extension, *lua.LFunction) {
	for _, e := range h.Extensions() {
		if fn := e.tool(name); fn != nil {
			return e, fn
		}
	}
	return nil, nil
}
