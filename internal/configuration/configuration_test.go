package configuration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/jsonschema"
	"github.com/dshills/extbridge/internal/logx"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewRegistryWithDefaults(), logx.Discard())
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistryWithDefaults()
	for _, key := range []string{KeyStartupEditor, KeyPortsAttributes, KeyTelemetryLevel} {
		if !r.Has(key) {
			t.Errorf("built-in setting %s missing", key)
		}
	}
	if got := r.Defaults()[KeyStartupEditor]; got != StartupWelcomePage {
		t.Errorf("startupEditor default = %v, want %s", got, StartupWelcomePage)
	}
	if err := r.Register(Setting{Key: KeyStartupEditor}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate register error = %v", err)
	}

	var keys []string
	for _, s := range r.Section("remote") {
		keys = append(keys, s.Key)
	}
	if diff := cmp.Diff([]string{KeyOtherPortsAttributes, KeyPortsAttributes}, keys); diff != "" {
		t.Errorf("Section(remote) mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterIsAtomic(t *testing.T) {
	r := NewRegistry()
	err := r.Register(
		Setting{Key: "a.one", Schema: jsonschema.Boolean().Build()},
		Setting{Key: "a.one", Schema: jsonschema.Boolean().Build()},
	)
	if err == nil {
		t.Fatal("duplicate within one call accepted")
	}
	if r.Has("a.one") {
		t.Error("partial registration left a.one behind")
	}
}

func TestServiceUpdate(t *testing.T) {
	s := newService(t)
	var events []ChangeEvent
	s.OnDidChange(func(e ChangeEvent) { events = append(events, e) })

	if got := s.GetString(KeyTelemetryLevel); got != TelemetryAll {
		t.Errorf("default telemetry level = %q", got)
	}
	if err := s.Update(KeyTelemetryLevel, TelemetryOff); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := s.GetString(KeyTelemetryLevel); got != TelemetryOff {
		t.Errorf("telemetry level = %q, want off", got)
	}
	if err := s.Update(KeyTelemetryLevel, TelemetryOff); err != nil {
		t.Fatalf("Update same value: %v", err)
	}
	if err := s.Update(KeyTelemetryLevel, "verbose"); !errors.Is(err, ErrInvalidValue) || !errors.Is(err, jsonschema.ErrInvalid) {
		t.Errorf("invalid enum error = %v", err)
	}
	if err := s.Update("no.such.key", 1); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("unknown key error = %v", err)
	}

	s.Reset(KeyTelemetryLevel)
	s.Reset(KeyTelemetryLevel)

	want := []ChangeEvent{
		{Keys: []string{KeyTelemetryLevel}, Source: "update"},
		{Keys: []string{KeyTelemetryLevel}, Source: "reset"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	in, err := s.Inspect(KeyTelemetryLevel)
	if err != nil || in.HasUser || in.Default != TelemetryAll {
		t.Errorf("Inspect = %+v, %v", in, err)
	}
}

const settingsTOML = `
"workbench.startupEditor" = "readme"

[telemetry]
telemetryLevel = "verbose"

[terminal.integrated.shellIntegration]
enabled = false

[remote.portsAttributes."3000"]
label = "web"
onAutoForward = "silent"

[remote.portsAttributes."9000-9010"]
protocol = "https"

[remote.portsAttributes."node .*"]
onAutoForward = "openBrowser"
elevateIfNeeded = true
`

func TestDecodeAndApply(t *testing.T) {
	s := newService(t)
	values, err := s.Decode([]byte(settingsTOML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantKeys := map[string]bool{
		KeyStartupEditor:    true,
		KeyTelemetryLevel:   true,
		KeyShellIntegration: true,
		KeyPortsAttributes:  true,
	}
	for k := range values {
		if !wantKeys[k] {
			t.Errorf("unexpected decoded key %q", k)
		}
	}

	var events []ChangeEvent
	s.OnDidChange(func(e ChangeEvent) { events = append(events, e) })

	err = s.Apply(values, "test")
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Apply error = %v, want ErrInvalidValue for telemetry level", err)
	}
	if got := s.GetString(KeyStartupEditor); got != StartupReadme {
		t.Errorf("startupEditor = %q, want readme", got)
	}
	if got := s.GetString(KeyTelemetryLevel); got != TelemetryAll {
		t.Errorf("rejected telemetry level applied: %q", got)
	}
	if s.GetBool(KeyShellIntegration) {
		t.Error("shell integration still enabled")
	}

	wantKeysChanged := []string{KeyPortsAttributes, KeyShellIntegration, KeyStartupEditor}
	if len(events) != 1 {
		t.Fatalf("got %d change events, want 1", len(events))
	}
	if diff := cmp.Diff(wantKeysChanged, events[0].Keys); diff != "" {
		t.Errorf("changed keys mismatch (-want +got):\n%s", diff)
	}
	if !events[0].Affects("remote") || events[0].Affects("telemetry") {
		t.Errorf("Affects wrong for %v", events[0].Keys)
	}
}

func TestPortAttributes(t *testing.T) {
	s := newService(t)
	values, err := s.Decode([]byte(settingsTOML))
	if err != nil {
		t.Fatal(err)
	}
	s.Apply(values, "test")

	tests := []struct {
		name        string
		port        int
		commandLine string
		want        PortAttributes
		wantOK      bool
	}{
		{
			name:   "exact",
			port:   3000,
			want:   PortAttributes{OnAutoForward: AutoForwardSilent, Label: "web"},
			wantOK: true,
		},
		{
			name:   "range",
			port:   9005,
			want:   PortAttributes{OnAutoForward: AutoForwardNotify, Protocol: "https"},
			wantOK: true,
		},
		{
			name:        "command line pattern",
			port:        4000,
			commandLine: "node server.js",
			want:        PortAttributes{OnAutoForward: AutoForwardOpenBrowser, ElevateIfNeeded: true},
			wantOK:      true,
		},
		{
			name:        "exact wins over pattern per field",
			port:        3000,
			commandLine: "node server.js",
			want:        PortAttributes{OnAutoForward: AutoForwardSilent, Label: "web", ElevateIfNeeded: true},
			wantOK:      true,
		},
		{name: "no match", port: 1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.PortAttributes(tt.port, "localhost", tt.commandLine)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PortAttributes mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := s.Update(KeyOtherPortsAttributes, map[string]any{"onAutoForward": "ignore"}); err != nil {
		t.Fatalf("Update other ports: %v", err)
	}
	got, ok := s.PortAttributes(1234, "localhost", "")
	if !ok || got.OnAutoForward != AutoForwardIgnore {
		t.Errorf("other ports fallback = %+v, %v", got, ok)
	}
}

func TestDefaultPortsAttributes(t *testing.T) {
	s := newService(t)
	got, ok := s.PortAttributes(443, "localhost", "")
	if !ok || got.Protocol != "https" {
		t.Errorf("PortAttributes(443) = %+v, %v; want https", got, ok)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")

	src := newService(t)
	if err := src.Update(KeyStartupEditor, StartupTerminal); err != nil {
		t.Fatal(err)
	}
	ports := map[string]any{"8080": map[string]any{"label": "api"}}
	if err := src.Update(KeyPortsAttributes, ports); err != nil {
		t.Fatal(err)
	}
	if err := src.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	dst := newService(t)
	if err := dst.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diff := cmp.Diff(src.UserValues(), dst.UserValues()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := dst.LoadFile(path); err != nil {
		t.Fatalf("LoadFile missing: %v", err)
	}
	if len(dst.UserValues()) != 0 {
		t.Errorf("missing file left user values: %v", dst.UserValues())
	}

	if err := os.WriteFile(path, []byte("not = [toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	var perr *ParseError
	if err := dst.LoadFile(path); !errors.As(err, &perr) {
		t.Errorf("LoadFile malformed error = %v, want *ParseError", err)
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	s := newService(t)

	w, err := NewWatcher(s, path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	changed := make(chan struct{}, 1)
	s.OnDidChange(func(e ChangeEvent) {
		if e.Affects(KeyStartupEditor) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})

	if err := os.WriteFile(path, []byte(`"workbench.startupEditor" = "none"`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("settings not reloaded")
	}
	if got := s.GetString(KeyStartupEditor); got != StartupNone {
		t.Errorf("startupEditor = %q, want none", got)
	}
}
