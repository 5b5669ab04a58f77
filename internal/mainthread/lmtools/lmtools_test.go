package lmtools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/jsonschema"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/rpc/rpctest"
)

func searchTool() ToolData {
	return ToolData{
		ID:               "search",
		DisplayName:      "Search",
		ModelDescription: "Searches the workspace",
		InputSchema: jsonschema.Object().
			Property("query", jsonschema.String().MinLength(1).Build()).
			Required("query").
			Build(),
	}
}

func echo(prefix string) Implementation {
	return ImplementationFunc(func(_ context.Context, inv Invocation) (Result, error) {
		return TextResult(prefix + string(inv.Parameters)), nil
	})
}

func TestInvokeToolValidation(t *testing.T) {
	s := NewToolsService()
	if _, err := s.RegisterToolData(searchTool()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.InvokeTool(ctx, Invocation{ToolID: "search", Parameters: json.RawMessage(`{"query":"x"}`)}, nil); !errors.Is(err, ErrNoImplementation) {
		t.Fatalf("err = %v, want ErrNoImplementation", err)
	}
	if _, err := s.RegisterToolImplementation("search", echo("> ")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		tool    string
		params  string
		wantErr error
	}{
		{"valid", "search", `{"query":"x"}`, nil},
		{"missing required", "search", `{}`, ErrInvalidInput},
		{"empty query", "search", `{"query":""}`, ErrInvalidInput},
		{"wrong type", "search", `{"query":1}`, ErrInvalidInput},
		{"no params", "search", ``, ErrInvalidInput},
		{"unknown tool", "nope", `{}`, ErrToolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.InvokeTool(ctx, Invocation{ToolID: tt.tool, Parameters: json.RawMessage(tt.params)}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && res.Text() != "> "+tt.params {
				t.Errorf("result = %q", res.Text())
			}
		})
	}
	if _, err := s.InvokeTool(ctx, Invocation{ToolID: "search", Parameters: json.RawMessage(`{}`)}, nil); !errors.Is(err, jsonschema.ErrInvalid) {
		t.Errorf("validation error does not wrap jsonschema.ErrInvalid: %v", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	s := NewToolsService()
	changes := 0
	s.OnDidChangeTools(func(struct{}) { changes++ })

	d, err := s.RegisterToolData(ToolData{ID: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RegisterToolData(ToolData{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RegisterToolData(ToolData{ID: "a"}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := s.RegisterToolImplementation("zzz", echo("")); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("implementation for unknown tool err = %v", err)
	}

	var ids []string
	for _, td := range s.Tools() {
		ids = append(ids, td.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
	d.Dispose()
	if _, ok := s.Tool("b"); ok {
		t.Error("disposed tool still present")
	}
	if changes != 3 {
		t.Errorf("change events = %d, want 3", changes)
	}
}

func TestCountTokensDuringInvocation(t *testing.T) {
	s := NewToolsService()
	if _, err := s.RegisterToolData(ToolData{ID: "count"}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	impl := ImplementationFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		n, err := s.CountTokens(ctx, inv.CallID, "four")
		if err != nil {
			return Result{}, err
		}
		return TextResult(string(rune('0' + n))), nil
	})
	if _, err := s.RegisterToolImplementation("count", impl); err != nil {
		t.Fatal(err)
	}

	counter := func(_ context.Context, input string) (int, error) { return len(input), nil }
	res, err := s.InvokeTool(ctx, Invocation{CallID: "c1", ToolID: "count"}, counter)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text() != "4" {
		t.Errorf("result = %q, want 4", res.Text())
	}
	if _, err := s.CountTokens(ctx, "c1", "late"); !errors.Is(err, ErrUnknownInvocation) {
		t.Errorf("count after invocation err = %v", err)
	}
	if _, err := s.InvokeTool(ctx, Invocation{CallID: "c2", ToolID: "count"}, nil); !errors.Is(err, ErrNoTokenCounter) {
		t.Errorf("count without counter err = %v", err)
	}
}

func runAsync(t *testing.T, res any, err error) any {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	async, ok := res.(rpc.Async)
	if !ok {
		t.Fatalf("result %T is not async", res)
	}
	out, err := async(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRemoteToolInvokedOnHost(t *testing.T) {
	peer := rpctest.NewRecorder()
	peer.Respond("$invokeTool", func(_ context.Context, params json.RawMessage) (any, error) {
		var msg invokeTool
		if err := json.Unmarshal(params, &msg); err != nil {
			return nil, err
		}
		return TextResult("host:" + msg.Dto.ToolID), nil
	})
	m := New(peer, nil, logx.Discard())
	defer m.Dispose()
	ctx := context.Background()

	data := searchTool()
	data.ID = ""
	if _, err := m.Dispatch(ctx, &RegisterTool{ID: "ext.search", Data: &data}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Service().InvokeTool(ctx, Invocation{CallID: "1", ToolID: "ext.search", Parameters: json.RawMessage(`{"query":"q"}`)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text() != "host:ext.search" {
		t.Errorf("result = %q", res.Text())
	}

	got, err := m.Dispatch(ctx, &GetTools{})
	if err != nil {
		t.Fatal(err)
	}
	if tools := got.([]ToolData); len(tools) != 1 || tools[0].ID != "ext.search" {
		t.Errorf("$getTools = %+v", tools)
	}

	if _, err := m.Dispatch(ctx, &UnregisterTool{ID: "ext.search"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Service().Tool("ext.search"); ok {
		t.Error("tool data survived unregister")
	}
}

func TestHostInvokesLocalTool(t *testing.T) {
	peer := rpctest.NewRecorder()
	peer.RespondWith("$countTokensForInvocation", 7)
	m := New(peer, nil, logx.Discard())
	defer m.Dispose()
	ctx := context.Background()

	if _, err := m.Service().RegisterToolData(ToolData{ID: "local"}); err != nil {
		t.Fatal(err)
	}
	impl := ImplementationFunc(func(ctx context.Context, inv Invocation) (Result, error) {
		n, err := m.Service().CountTokens(ctx, inv.CallID, "some text")
		if err != nil {
			return Result{}, err
		}
		return TextResult(string(rune('0' + n))), nil
	})
	if _, err := m.Service().RegisterToolImplementation("local", impl); err != nil {
		t.Fatal(err)
	}

	res, err := m.Dispatch(ctx, &InvokeTool{Dto: Invocation{CallID: "x", ToolID: "local", TokenBudget: 100}})
	out := runAsync(t, res, err).(Result)
	if out.Text() != "7" {
		t.Errorf("result = %q, want 7", out.Text())
	}
	inv, ok := peer.Last("$countTokensForInvocation")
	if !ok {
		t.Fatal("token count not forwarded to host")
	}
	var req countTokens
	if err := inv.Decode(&req); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(countTokens{CallID: "x", Input: "some text"}, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestHostCountsTokensForLocalInvocation(t *testing.T) {
	m := New(rpctest.NewRecorder(), nil, logx.Discard())
	defer m.Dispose()
	ctx := context.Background()

	if _, err := m.Service().RegisterToolData(ToolData{ID: "remote"}); err != nil {
		t.Fatal(err)
	}
	block := make(chan struct{})
	started := make(chan struct{})
	impl := ImplementationFunc(func(context.Context, Invocation) (Result, error) {
		close(started)
		<-block
		return Result{}, nil
	})
	if _, err := m.Service().RegisterToolImplementation("remote", impl); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Service().InvokeTool(ctx, Invocation{CallID: "k", ToolID: "remote"},
			func(_ context.Context, input string) (int, error) { return len(input) * 2, nil })
		done <- err
	}()
	<-started

	res, err := m.Dispatch(ctx, &CountTokensForInvocation{CallID: "k", Input: "abc"})
	if n := runAsync(t, res, err).(int); n != 6 {
		t.Errorf("count = %d, want 6", n)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
