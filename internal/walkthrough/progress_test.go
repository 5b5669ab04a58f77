package walkthrough

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/storage"
)

func newProgress(t *testing.T) *Progress {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewProgress(store)
}

func TestProgress(t *testing.T) {
	p := newProgress(t)
	var events []StepEvent
	p.OnDidChange(func(e StepEvent) { events = append(events, e) })

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(p.MarkStepComplete("go", "install"))
	must(p.MarkStepComplete("go", "install"))
	must(p.MarkStepComplete("go", "run"))
	must(p.MarkStepComplete("rust", "install"))

	if !p.IsStepComplete("go", "install") || p.IsStepComplete("go", "debug") {
		t.Error("IsStepComplete wrong")
	}
	steps, err := p.CompletedSteps("go")
	must(err)
	if diff := cmp.Diff([]string{"install", "run"}, steps); diff != "" {
		t.Errorf("CompletedSteps mismatch (-want +got):\n%s", diff)
	}

	must(p.MarkStepIncomplete("go", "run"))
	must(p.MarkStepIncomplete("go", "run"))
	must(p.Reset("go"))
	if p.IsStepComplete("go", "install") {
		t.Error("go/install survived Reset(go)")
	}
	if !p.IsStepComplete("rust", "install") {
		t.Error("Reset(go) cleared rust")
	}
	must(p.Reset(""))
	if p.IsStepComplete("rust", "install") {
		t.Error("rust/install survived Reset()")
	}

	want := []StepEvent{
		{"go", "install", true},
		{"go", "run", true},
		{"rust", "install", true},
		{"go", "run", false},
		{"go", "install", false},
		{"rust", "install", false},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCompletionEvents(t *testing.T) {
	cmds := commands.NewCommandRegistry()
	cfg := configuration.NewService(configuration.NewRegistryWithDefaults(), logx.Discard())
	svc := NewService(NewContentRegistry(), newProgress(t), cmds, cfg, logx.Discard())
	defer svc.Dispose()

	err := svc.Register(Walkthrough{
		ID: "setup",
		Steps: []Step{
			{ID: "clone", CompletionEvents: []string{"onCommand:git.clone"}},
			{ID: "theme", CompletionEvents: []string{"onSettingChanged:workbench.startupEditor"}},
			{ID: "read", CompletionEvents: []string{"onStepSelected"}},
			{ID: "manual"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Register(Walkthrough{ID: "setup"}); err == nil {
		t.Error("duplicate walkthrough accepted")
	}

	cmds.RegisterCommand("git.clone", func(context.Context, ...any) (any, error) { return nil, nil })
	if _, err := cmds.ExecuteCommand(context.Background(), "git.clone"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Update(configuration.KeyStartupEditor, configuration.StartupNone); err != nil {
		t.Fatal(err)
	}
	svc.SelectStep("setup", "read")
	svc.SelectStep("setup", "manual")

	done, total := svc.Done("setup")
	if done != 3 || total != 4 {
		t.Errorf("Done = %d/%d, want 3/4", done, total)
	}
	if svc.Progress.IsStepComplete("setup", "manual") {
		t.Error("manual step completed without an event")
	}
}
