package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/extbridge/internal/logx"
)

type echoMsg struct {
	Text string `json:"text"`
}

func (echoMsg) Method() string { return "$echo" }

type recordMsg struct {
	N int `json:"n"`
}

func (recordMsg) Method() string { return "$record" }

type waitMsg struct{}

func (waitMsg) Method() string { return "$wait" }

type panicMsg struct{}

func (panicMsg) Method() string { return "$panic" }

type testService struct {
	mu      sync.Mutex
	seen    []int
	release chan struct{}
}

func (s *testService) Messages() Table {
	return Table{
		"$echo":   func() Message { return &echoMsg{} },
		"$record": func() Message { return &recordMsg{} },
		"$wait":   func() Message { return &waitMsg{} },
		"$panic":  func() Message { return &panicMsg{} },
	}
}

func (s *testService) Dispatch(ctx context.Context, msg Message) (any, error) {
	switch m := msg.(type) {
	case *echoMsg:
		return m.Text, nil
	case *recordMsg:
		s.mu.Lock()
		s.seen = append(s.seen, m.N)
		s.mu.Unlock()
		return nil, nil
	case *waitMsg:
		return Async(func(ctx context.Context) (any, error) {
			select {
			case <-s.release:
				return "released", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}), nil
	case *panicMsg:
		panic("boom")
	}
	return nil, Unhandled(msg)
}

func (s *testService) recorded() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.seen...)
}

func TestRouterRegister(t *testing.T) {
	r := NewRouter(logx.Discard())
	if err := r.Register(&testService{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := []string{"$echo", "$panic", "$record", "$wait"}
	if diff := cmp.Diff(want, r.Methods()); diff != "" {
		t.Errorf("Methods() mismatch (-want +got):\n%s", diff)
	}
	if err := r.Register(&testService{}); !errors.Is(err, ErrDuplicateMethod) {
		t.Errorf("second Register error = %v, want ErrDuplicateMethod", err)
	}
}

type badService struct{}

func (badService) Messages() Table {
	return Table{"noDollar": func() Message { return &echoMsg{} }}
}

func (badService) Dispatch(context.Context, Message) (any, error) { return nil, nil }

func TestRouterRejectsInvalidMethodName(t *testing.T) {
	r := NewRouter(logx.Discard())
	if err := r.Register(badService{}); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("Register error = %v, want ErrInvalidMethod", err)
	}
	if len(r.Methods()) != 0 {
		t.Errorf("Methods() = %v, want none", r.Methods())
	}
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(logx.Discard())
	if err := r.Register(&testService{}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		method  string
		params  string
		want    any
		wantErr error
	}{
		{name: "echo", method: "$echo", params: `{"text":"hi"}`, want: "hi"},
		{name: "null params", method: "$echo", params: `null`, want: ""},
		{name: "unknown method", method: "$nope", params: `{}`, wantErr: ErrMethodNotFound},
		{name: "bad params", method: "$echo", params: `{"text":1}`, wantErr: ErrInvalidParams},
		{name: "panic", method: "$panic", params: `{}`, wantErr: ErrPanic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Dispatch(ctx, tt.method, json.RawMessage(tt.params))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToWireError(t *testing.T) {
	tests := []struct {
		err  error
		code int64
	}{
		{ErrMethodNotFound, jsonrpc2.CodeMethodNotFound},
		{ErrInvalidParams, jsonrpc2.CodeInvalidParams},
		{errors.New("other"), jsonrpc2.CodeInternalError},
		{&jsonrpc2.Error{Code: 42, Message: "custom"}, 42},
	}
	for _, tt := range tests {
		if got := toWireError(tt.err).Code; got != tt.code {
			t.Errorf("toWireError(%v).Code = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func pipe(t *testing.T, svc Service) (client, server *Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter(logx.Discard())
	if err := router.Register(svc); err != nil {
		t.Fatal(err)
	}
	client, server = Pipe(ctx, NewRouter(logx.Discard()), router, logx.Discard())
	t.Cleanup(func() {
		client.Close()
		server.Close()
		cancel()
	})
	return client, server
}

func TestConnCallAndNotify(t *testing.T) {
	svc := &testService{release: make(chan struct{})}
	client, _ := pipe(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got string
	if err := Call(ctx, client, &echoMsg{Text: "hello"}, &got); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello" {
		t.Errorf("Call result = %q, want hello", got)
	}

	for i := 1; i <= 5; i++ {
		if err := Notify(ctx, client, &recordMsg{N: i}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	// A call after the notifications is handled after them.
	if err := Call(ctx, client, &echoMsg{}, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, svc.recorded()); diff != "" {
		t.Errorf("notification order mismatch (-want +got):\n%s", diff)
	}
}

func TestConnAsyncDoesNotBlockLaterMessages(t *testing.T) {
	svc := &testService{release: make(chan struct{})}
	client, _ := pipe(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		var res string
		if err := Call(ctx, client, &waitMsg{}, &res); err != nil {
			done <- err.Error()
			return
		}
		done <- res
	}()

	var got string
	if err := Call(ctx, client, &echoMsg{Text: "meanwhile"}, &got); err != nil {
		t.Fatalf("Call while async pending: %v", err)
	}
	if got != "meanwhile" {
		t.Errorf("got %q, want meanwhile", got)
	}

	close(svc.release)
	select {
	case res := <-done:
		if res != "released" {
			t.Errorf("async result = %q, want released", res)
		}
	case <-ctx.Done():
		t.Fatal("async call never completed")
	}
}

func TestConnRemoteErrors(t *testing.T) {
	client, _ := pipe(t, &testService{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Call(ctx, "$missing", struct{}{}, nil)
	var wire *jsonrpc2.Error
	if !errors.As(err, &wire) || wire.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("missing method error = %v, want CodeMethodNotFound", err)
	}

	err = client.Call(ctx, "$panic", struct{}{}, nil)
	if !errors.As(err, &wire) || wire.Code != jsonrpc2.CodeInternalError {
		t.Errorf("panic error = %v, want CodeInternalError", err)
	}

	// The connection survives a handler panic.
	var got string
	if err := Call(ctx, client, &echoMsg{Text: "still here"}, &got); err != nil || got != "still here" {
		t.Errorf("Call after panic = %q, %v", got, err)
	}
}

func TestConnClosed(t *testing.T) {
	client, _ := pipe(t, &testService{})
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-client.Done()
	err := client.Notify(context.Background(), "$echo", echoMsg{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Notify after close = %v, want ErrClosed", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
