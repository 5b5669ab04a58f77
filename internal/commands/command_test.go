package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func constHandler(v any) Handler {
	return func(context.Context, ...any) (any, error) { return v, nil }
}

func TestCommandRegistryExecute(t *testing.T) {
	r := NewCommandRegistry()
	ctx := context.Background()

	_, err := r.RegisterCommand("sum", func(_ context.Context, args ...any) (any, error) {
		total := 0
		for _, a := range args {
			total += a.(int)
		}
		return total, nil
	})
	if err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}

	got, err := r.ExecuteCommand(ctx, "sum", 1, 2, 3)
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if got != 6 {
		t.Errorf("sum = %v, want 6", got)
	}

	if _, err := r.ExecuteCommand(ctx, "missing"); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("missing command error = %v, want ErrCommandNotFound", err)
	}
}

func TestCommandRegistryInvalid(t *testing.T) {
	r := NewCommandRegistry()
	if _, err := r.RegisterCommand("", constHandler(nil)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("empty id error = %v", err)
	}
	if _, err := r.RegisterCommand("x", nil); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestCommandRegistryShadowing(t *testing.T) {
	r := NewCommandRegistry()
	ctx := context.Background()

	first, _ := r.RegisterCommand("cmd", constHandler("first"))
	second, _ := r.RegisterCommand("cmd", constHandler("second"))

	if got, _ := r.ExecuteCommand(ctx, "cmd"); got != "second" {
		t.Errorf("with both registered = %v, want second", got)
	}
	second.Dispose()
	if got, _ := r.ExecuteCommand(ctx, "cmd"); got != "first" {
		t.Errorf("after disposing second = %v, want first", got)
	}
	second.Dispose()
	if got, _ := r.ExecuteCommand(ctx, "cmd"); got != "first" {
		t.Errorf("double dispose removed first: got %v", got)
	}
	first.Dispose()
	if r.HasCommand("cmd") {
		t.Error("cmd still registered after disposing both")
	}
}

func TestCommandRegistryEvents(t *testing.T) {
	r := NewCommandRegistry()
	var ids []string
	r.OnDidRegisterCommand(func(id string) { ids = append(ids, id) })

	r.RegisterCommand("b", constHandler(nil))
	r.RegisterCommand("a", constHandler(nil))

	if diff := cmp.Diff([]string{"b", "a"}, ids); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Commands()); diff != "" {
		t.Errorf("Commands mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandRegistryExecutionEvents(t *testing.T) {
	r := NewCommandRegistry()
	var got []ExecutionEvent
	r.OnDidExecuteCommand(func(e ExecutionEvent) { got = append(got, e) })

	r.RegisterCommand("ok", constHandler(nil))
	r.RegisterCommand("fails", func(context.Context, ...any) (any, error) {
		return nil, errors.New("boom")
	})

	ctx := context.Background()
	r.ExecuteCommand(ctx, "ok", "x")
	r.ExecuteCommand(ctx, "fails")
	r.ExecuteCommand(ctx, "missing")

	want := []ExecutionEvent{{ID: "ok", Args: []any{"x"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("execution events mismatch (-want +got):\n%s", diff)
	}
}
