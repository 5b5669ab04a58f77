package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) { return c.buf.Write(p) }

func (c *logCapture) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func newCaptureLogger(c *logCapture) pslog.Logger {
	return pslog.NewWithOptions(c, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
}

func TestWithHandleAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithHandle(newCaptureLogger(capture), "scm", 4)
	log.Warn("unknown handle")

	entries := capture.entries(t)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0]["namespace"] != "scm" {
		t.Errorf("namespace = %v", entries[0]["namespace"])
	}
	if entries[0]["handle"] != float64(4) {
		t.Errorf("handle = %v", entries[0]["handle"])
	}
}

func TestWithExtensionSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	WithExtension(newCaptureLogger(capture), "").Info("hello")

	entries := capture.entries(t)
	if _, ok := entries[0]["extension"]; ok {
		t.Errorf("did not expect extension field: %+v", entries[0])
	}
}

func TestNewRespectsLevel(t *testing.T) {
	capture := &logCapture{}
	log := New(Config{Level: LevelWarn, Output: capture})
	log.Info("dropped")
	log.Warn("kept")

	entries := capture.entries(t)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d: %s", len(entries), capture.buf.String())
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "error"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel(verbose) = true")
	}
}
