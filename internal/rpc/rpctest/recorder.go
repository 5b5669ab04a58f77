// Package rpctest provides an in-memory Peer for tests.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Invocation is one call or notification seen by a Recorder.
type Invocation struct {
	Method string
	Params json.RawMessage
	Notify bool
}

// Decode unmarshals the recorded params into v.
func (inv Invocation) Decode(v any) error {
	return json.Unmarshal(inv.Params, v)
}

// Responder produces the reply for a call. A nil result leaves the
// caller's result untouched.
type Responder func(ctx context.Context, params json.RawMessage) (any, error)

// Recorder is a Peer that records every invocation and answers calls from
// registered responders.
type Recorder struct {
	mu         sync.Mutex
	calls      []Invocation
	responders map[string]Responder
	notify     chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		responders: make(map[string]Responder),
		notify:     make(chan struct{}, 1),
	}
}

// Respond sets the responder for method.
func (r *Recorder) Respond(method string, fn Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[method] = fn
}

// RespondWith answers every call to method with result.
func (r *Recorder) RespondWith(method string, result any) {
	r.Respond(method, func(context.Context, json.RawMessage) (any, error) {
		return result, nil
	})
}

// Call implements rpc.Peer.
func (r *Recorder) Call(ctx context.Context, method string, params, result any) error {
	raw, err := r.record(method, params, false)
	if err != nil {
		return err
	}

	r.mu.Lock()
	fn := r.responders[method]
	r.mu.Unlock()
	if fn == nil {
		return nil
	}

	res, err := fn(ctx, raw)
	if err != nil {
		return err
	}
	if res == nil || result == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("rpctest: encode result: %w", err)
	}
	return json.Unmarshal(data, result)
}

// Notify implements rpc.Peer.
func (r *Recorder) Notify(_ context.Context, method string, params any) error {
	_, err := r.record(method, params, true)
	return err
}

func (r *Recorder) record(method string, params any, notify bool) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpctest: encode params: %w", err)
	}
	r.mu.Lock()
	r.calls = append(r.calls, Invocation{Method: method, Params: raw, Notify: notify})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return raw, nil
}

// Invocations returns a copy of everything recorded so far.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.calls...)
}

// Methods returns the recorded method names in order.
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Method
	}
	return names
}

// Count returns how many times method was invoked.
func (r *Recorder) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Last returns the most recent invocation of method.
func (r *Recorder) Last(method string) (Invocation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].Method == method {
			return r.calls[i], true
		}
	}
	return Invocation{}, false
}

// Reset forgets recorded invocations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// WaitFor blocks until method has been invoked n times or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, method string, n int) error {
	for {
		if r.Count(method) >= n {
			return nil
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return fmt.Errorf("rpctest: waiting for %d x %s: %w", n, method, ctx.Err())
		}
	}
}
