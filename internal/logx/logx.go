// Package logx builds the process logger and annotates it with main-thread
// identifiers such as the proxy component, handle and extension id.
package logx

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"pkt.systems/pslog"
)

// Level names accepted by New.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config configures the process logger.
type Config struct {
	// Level is the minimum level name (debug, info, warn, error).
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Structured forces JSON output even on a terminal.
	Structured bool
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch s {
	case LevelDebug, LevelInfo, LevelWarn, "warning", LevelError:
		return true
	default:
		return false
	}
}

// New creates a logger. Output that is a terminal gets console formatting
// unless Structured is set.
func New(cfg Config) pslog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := pslog.Options{Mode: pslog.ModeStructured}
	if f, ok := out.(*os.File); ok && !cfg.Structured && isatty.IsTerminal(f.Fd()) {
		opts.Mode = pslog.ModeConsole
	} else {
		opts.NoColor = true
	}

	switch cfg.Level {
	case LevelDebug:
		opts.MinLevel = pslog.DebugLevel
	case LevelWarn, "warning":
		opts.MinLevel = pslog.WarnLevel
	case LevelError:
		opts.MinLevel = pslog.ErrorLevel
	default:
		opts.MinLevel = pslog.InfoLevel
	}

	return pslog.NewWithOptions(out, opts)
}

// Discard returns a logger that drops everything.
func Discard() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.ErrorLevel,
	})
}

// Ctx returns the logger bound to ctx.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// With stores log on ctx.
func With(ctx context.Context, log pslog.Logger) context.Context {
	return pslog.ContextWithLogger(ctx, log)
}

// OrDefault returns log, or the logger bound to a background context when log is nil.
func OrDefault(log pslog.Logger) pslog.Logger {
	if log == nil {
		return pslog.Ctx(context.Background())
	}
	return log
}

// WithComponent annotates log with the owning component.
func WithComponent(log pslog.Logger, component string) pslog.Logger {
	return OrDefault(log).With("component", component)
}

// WithHandle annotates log with a handle in the given namespace.
func WithHandle(log pslog.Logger, namespace string, h int) pslog.Logger {
	return OrDefault(log).With("namespace", namespace, "handle", h)
}

// WithExtension annotates log with an extension id when present.
func WithExtension(log pslog.Logger, extensionID string) pslog.Logger {
	log = OrDefault(log)
	if extensionID != "" {
		log = log.With("extension", extensionID)
	}
	return log
}
