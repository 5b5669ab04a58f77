package workbench

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/exthost"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread/telemetry"
	"github.com/dshills/extbridge/internal/rpc"
)

func newWorkbench(t *testing.T, opts Options) *Workbench {
	t.Helper()
	if opts.StatePath == "" {
		opts.StatePath = filepath.Join(t.TempDir(), "state.db")
	}
	w, err := New(opts, logx.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

const greeter = `
local level = -1

ext.on("$onDidChangeTelemetryLevel", function(p) level = p.level end)

function activate()
  ext.registerCommand("hello.greet", function(name) return "hello " .. name end)
  ext.registerCommand("hello.level", function() return level end)
end
`

// connect starts an in-process extension host running one extension
// and connects it to the workbench.
func connect(t *testing.T, w *Workbench, script string) (*Session, *exthost.Host) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := filepath.Join(t.TempDir(), "hello")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extension.json"), []byte(`{"name": "hello"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extension.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	mainSide, hostSide := net.Pipe()

	host := exthost.New(logx.Discard(), exthost.Options{CallTimeout: 5 * time.Second})
	hostRouter := rpc.NewRouter(logx.Discard())
	if err := hostRouter.Register(host); err != nil {
		t.Fatal(err)
	}
	hostConn := rpc.NewConn(ctx, hostSide, hostRouter, logx.Discard())
	host.Bind(hostConn)
	t.Cleanup(func() {
		_ = host.Close()
		_ = hostConn.Close()
	})

	s, err := w.Connect(ctx, mainSide)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := host.Load(ctx, dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, host
}

func TestExtensionCommandRoundTrip(t *testing.T) {
	w := newWorkbench(t, Options{})
	connect(t, w, greeter)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !w.Actions.Commands.HasCommand("hello.greet") {
		t.Fatal("hello.greet not registered")
	}
	got, err := w.Actions.Commands.ExecuteCommand(ctx, "hello.greet", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello bob" {
		t.Errorf("result = %v, want hello bob", got)
	}
}

func TestTelemetryLevelReachesExtension(t *testing.T) {
	w := newWorkbench(t, Options{TelemetryEnabled: true})
	connect(t, w, greeter)

	if err := w.Settings.Update(configuration.KeyTelemetryLevel, configuration.TelemetryError); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want := float64(telemetry.LevelError)
	for {
		got, err := w.Actions.Commands.ExecuteCommand(ctx, "hello.level")
		if err != nil {
			t.Fatal(err)
		}
		if got == want {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("level = %v, want %v", got, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionCloseUnregistersCommands(t *testing.T) {
	w := newWorkbench(t, Options{})
	s, _ := connect(t, w, greeter)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Actions.Commands.HasCommand("hello.greet") {
		t.Error("hello.greet survived session close")
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed")
	}
}

func TestWalkthroughActionsRegistered(t *testing.T) {
	w := newWorkbench(t, Options{})
	for _, id := range []string{"welcome.markStepComplete", "welcome.resetProgress", "welcome.showContent"} {
		if !w.Actions.Commands.HasCommand(id) {
			t.Errorf("%s not registered", id)
		}
	}
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	data := "[terminal.integrated]\nshell = \"/bin/zsh\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	w := newWorkbench(t, Options{SettingsPath: path})
	if got := w.Settings.GetString(configuration.KeyTerminalShell); got != "/bin/zsh" {
		t.Errorf("shell = %q, want /bin/zsh", got)
	}
}

func TestNewRequiresStatePath(t *testing.T) {
	_, err := New(Options{}, logx.Discard())
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Component != "storage" {
		t.Fatalf("err = %v, want storage InitError", err)
	}
}
