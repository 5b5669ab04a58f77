package telemetry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc/rpctest"
	"github.com/dshills/extbridge/internal/storage"
)

type memAppender struct {
	mu     sync.Mutex
	events []Event
}

func (a *memAppender) Append(e Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *memAppender) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.events {
		out = append(out, e.Name)
	}
	return out
}

func newConfig(t *testing.T) *configuration.Service {
	t.Helper()
	return configuration.NewService(configuration.NewRegistryWithDefaults(), logx.Discard())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{configuration.TelemetryAll, LevelUsage},
		{configuration.TelemetryError, LevelError},
		{configuration.TelemetryCrash, LevelCrash},
		{configuration.TelemetryOff, LevelOff},
		{"bogus", LevelOff},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if tt.in != "bogus" && ParseLevel(tt.in).String() != tt.in {
			t.Errorf("String() does not round-trip %q", tt.in)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		setting string
		enabled bool
		want    []string
	}{
		{configuration.TelemetryAll, true, []string{"usage", "error"}},
		{configuration.TelemetryError, true, []string{"error"}},
		{configuration.TelemetryCrash, true, nil},
		{configuration.TelemetryOff, true, nil},
		{configuration.TelemetryAll, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			cfg := newConfig(t)
			if err := cfg.Update(configuration.KeyTelemetryLevel, tt.setting); err != nil {
				t.Fatal(err)
			}
			app := &memAppender{}
			s := NewService(cfg, Options{Enabled: tt.enabled, Appenders: []Appender{app}}, logx.Discard())
			defer s.Dispose()

			if err := s.PublicLog("usage", nil); err != nil {
				t.Fatal(err)
			}
			if err := s.PublicLogError("error", nil); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, app.names()); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommonProperties(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	app := &memAppender{}
	s := NewService(nil, Options{
		Product:   "extbridge",
		Version:   "1.2.3",
		Enabled:   true,
		Appenders: []Appender{app},
		Now:       func() time.Time { return now },
	}, logx.Discard())
	defer s.Dispose()

	if err := s.PublicLog("opened", map[string]any{"kind": "file"}); err != nil {
		t.Fatal(err)
	}
	e := app.events[0]
	if !e.Time.Equal(now) {
		t.Errorf("time = %v", e.Time)
	}
	if e.Data["kind"] != "file" || e.Data[PropProduct] != "extbridge" || e.Data[PropVersion] != "1.2.3" {
		t.Errorf("data = %v", e.Data)
	}
	if e.Data[PropSessionID] != s.SessionID() || s.SessionID() == "" {
		t.Errorf("session id = %v, want %s", e.Data[PropSessionID], s.SessionID())
	}

	other := NewService(nil, Options{}, logx.Discard())
	if other.SessionID() == s.SessionID() {
		t.Error("two services share a session id")
	}
}

func TestStoreAppenderPrunes(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	app := NewStoreAppender(store, 3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := app.Append(Event{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	events, err := app.Events()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"c", "d", "e"}, names); diff != "" {
		t.Errorf("stored events mismatch (-want +got):\n%s", diff)
	}
}

func TestBindAndLevelChanges(t *testing.T) {
	cfg := newConfig(t)
	s := NewService(cfg, Options{Enabled: true}, logx.Discard())
	defer s.Dispose()
	peer := rpctest.NewRecorder()
	m := New(peer, s, logx.Discard())
	defer m.Dispose()

	if err := m.Bind(context.Background()); err != nil {
		t.Fatal(err)
	}
	inv, ok := peer.Last("$initializeTelemetryLevel")
	if !ok {
		t.Fatal("no $initializeTelemetryLevel")
	}
	var init initializeTelemetryLevel
	if err := inv.Decode(&init); err != nil {
		t.Fatal(err)
	}
	want := initializeTelemetryLevel{Level: LevelUsage, SupportsTelemetry: true, ProductConfig: ProductConfig{Usage: true, Error: true}}
	if diff := cmp.Diff(want, init); diff != "" {
		t.Errorf("init mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.Update(configuration.KeyTelemetryLevel, configuration.TelemetryError); err != nil {
		t.Fatal(err)
	}
	inv, ok = peer.Last("$onDidChangeTelemetryLevel")
	if !ok {
		t.Fatal("level change not forwarded")
	}
	var change didChangeTelemetryLevel
	if err := inv.Decode(&change); err != nil {
		t.Fatal(err)
	}
	if change.Level != LevelError {
		t.Errorf("level = %v, want error", change.Level)
	}

	// Unrelated settings are not forwarded.
	if err := cfg.Update(configuration.KeyStartupEditor, configuration.StartupNone); err != nil {
		t.Fatal(err)
	}
	if n := peer.Count("$onDidChangeTelemetryLevel"); n != 1 {
		t.Errorf("forwarded %d changes, want 1", n)
	}

	// A second bind resends the level without subscribing twice.
	if err := m.Bind(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Update(configuration.KeyTelemetryLevel, configuration.TelemetryOff); err != nil {
		t.Fatal(err)
	}
	if n := peer.Count("$onDidChangeTelemetryLevel"); n != 2 {
		t.Errorf("forwarded %d changes, want 2", n)
	}
}

func TestPublicLogFromHost(t *testing.T) {
	cfg := newConfig(t)
	app := &memAppender{}
	s := NewService(cfg, Options{Enabled: true, Appenders: []Appender{app}}, logx.Discard())
	defer s.Dispose()
	m := New(rpctest.NewRecorder(), s, logx.Discard())

	data := map[string]any{"n": 1.0}
	if _, err := m.Dispatch(context.Background(), &PublicLog{EventName: "one", Data: data}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(context.Background(), &PublicLog2{EventName: "two"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := data[PropPluginHost]; ok {
		t.Error("caller's data was modified")
	}
	if diff := cmp.Diff([]string{"one", "two"}, app.names()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	for _, e := range app.events {
		if e.Data[PropPluginHost] != true {
			t.Errorf("%s not tagged: %v", e.Name, e.Data)
		}
	}

	if err := cfg.Update(configuration.KeyTelemetryLevel, configuration.TelemetryError); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(context.Background(), &PublicLog{EventName: "three"}); err != nil {
		t.Fatal(err)
	}
	if len(app.names()) != 2 {
		t.Error("usage event recorded at error level")
	}
}
