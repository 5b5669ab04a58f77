package walkthrough

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/uri"
)

func TestActions(t *testing.T) {
	reg := commands.NewRegistry()
	content := NewContentRegistry()
	content.RegisterProvider("intro", func() string { return "hello" })
	svc := NewService(content, newProgress(t), reg.Commands, nil, logx.Discard())

	if _, err := RegisterActions(reg, svc); err != nil {
		t.Fatalf("RegisterActions: %v", err)
	}
	ctx := context.Background()
	exec := func(id string, args ...any) (any, error) {
		return reg.Commands.ExecuteCommand(ctx, id, args...)
	}

	if _, err := exec(ActionMarkStepComplete, "wt", "step"); err != nil {
		t.Fatal(err)
	}
	if !svc.Progress.IsStepComplete("wt", "step") {
		t.Error("step not complete")
	}
	if _, err := exec(ActionMarkStepIncomplete, "wt", "step"); err != nil {
		t.Fatal(err)
	}
	if svc.Progress.IsStepComplete("wt", "step") {
		t.Error("step still complete")
	}
	if _, err := exec(ActionMarkStepComplete, "wt"); err == nil {
		t.Error("missing step argument accepted")
	}

	exec(ActionMarkStepComplete, "wt", "a")
	if _, err := exec(ActionResetProgress); err != nil {
		t.Fatal(err)
	}
	if svc.Progress.IsStepComplete("wt", "a") {
		t.Error("reset did not clear progress")
	}

	for _, arg := range []any{
		Resource("intro"),
		Resource("intro").String(),
		map[string]any{"scheme": Scheme, "path": "/media/intro", "query": `{"moduleId":"intro"}`},
	} {
		got, err := exec(ActionShowContent, arg)
		if err != nil || got != "hello" {
			t.Errorf("showContent(%v) = %v, %v", arg, got, err)
		}
	}
	if _, err := exec(ActionShowContent, uri.MustParse("walkThrough:/x")); !errors.Is(err, ErrInvalidResource) {
		t.Errorf("showContent without query error = %v", err)
	}
}
