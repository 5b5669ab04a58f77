package appconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, `
home = "`+home+`"
extensions_dir = "/opt/extensions"
log_level = "warn"

[host]
command = ["extbridge", "exthost"]
call_timeout = "10s"

[telemetry]
store_limit = 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Home:          home,
		SettingsPath:  filepath.Join(home, "settings.toml"),
		ExtensionsDir: "/opt/extensions",
		StatePath:     filepath.Join(home, "state.db"),
		LogLevel:      "warn",
		Host: HostConfig{
			Command:       []string{"extbridge", "exthost"},
			CallTimeout:   10 * time.Second,
			SettleTimeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{Product: "extbridge", StoreLimit: 50},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "info" || cfg.Host.CallTimeout != 30*time.Second || cfg.Telemetry.StoreLimit != 1000 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.StatePath != filepath.Join(cfg.Home, "state.db") {
		t.Errorf("StatePath = %q, want under %q", cfg.StatePath, cfg.Home)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "log_level = \"warn\"\n")
	t.Setenv("EXTBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("EXTBRIDGE_HOST_CALL_TIMEOUT", "2s")
	t.Setenv("EXTBRIDGE_STATE_PATH", "$EXTBRIDGE_TEST_DIR/state.db")
	t.Setenv("EXTBRIDGE_TEST_DIR", "/var/lib/extbridge")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Host.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", cfg.Host.CallTimeout)
	}
	if cfg.StatePath != "/var/lib/extbridge/state.db" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		invalid bool
	}{
		{name: "syntax", data: "log_level = "},
		{name: "level", data: `log_level = "loud"`, invalid: true},
		{name: "timeout", data: "[host]\ncall_timeout = \"-1s\"\n", invalid: true},
		{name: "store limit", data: "[telemetry]\nstore_limit = -3\n", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.data))
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalid) = %v, want %v (%v)", got, tt.invalid, err)
			}
		})
	}
}
