// Package workbench builds the main-thread services and binds them to an
// extension host connection.
package workbench

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/commands"
	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread/clipboard"
	"github.com/dshills/extbridge/internal/mainthread/comments"
	"github.com/dshills/extbridge/internal/mainthread/diagnostics"
	"github.com/dshills/extbridge/internal/mainthread/lmtools"
	"github.com/dshills/extbridge/internal/mainthread/scm"
	"github.com/dshills/extbridge/internal/mainthread/speech"
	"github.com/dshills/extbridge/internal/mainthread/telemetry"
	"github.com/dshills/extbridge/internal/storage"
	"github.com/dshills/extbridge/internal/terminal"
	"github.com/dshills/extbridge/internal/textmodel"
	"github.com/dshills/extbridge/internal/walkthrough"
)

// Options configures a Workbench.
type Options struct {
	// SettingsPath is the user settings file. Empty means built-in
	// defaults only.
	SettingsPath string
	// WatchSettings reloads SettingsPath when it changes. Run drives it.
	WatchSettings bool

	// StatePath is the bbolt database for persistent state.
	StatePath string

	Product string
	Version string

	// TelemetryEnabled is false for builds that never send telemetry.
	TelemetryEnabled bool
	// TelemetryStoreLimit bounds persisted events; zero disables the store.
	TelemetryStoreLimit int
	// TelemetryLog also writes events to the log.
	TelemetryLog bool

	// Clipboard defaults to an in-memory clipboard.
	Clipboard clipboard.Service
}

// Workbench owns the local services. Each extension host connection gets
// its own Session of main-thread proxies over them.
type Workbench struct {
	log  pslog.Logger
	opts Options

	Settings     *configuration.Service
	Store        *storage.Store
	Actions      *commands.Registry
	Models       *textmodel.Service
	Walkthroughs *walkthrough.Service

	SCM       *scm.Service
	QuickDiff *scm.QuickDiffService
	Comments  *comments.Service
	Markers   *diagnostics.MarkerService
	Speech    *speech.Service
	Telemetry *telemetry.Service
	Terminals *terminal.Service
	Tools     *lmtools.ToolsService
	Clipboard clipboard.Service

	watcher *configuration.Watcher
	closers []func() error
}

// InitError reports the component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string { return "workbench: init " + e.Component + ": " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// New builds every local service in dependency order. On failure the
// services already started are closed.
func New(opts Options, log pslog.Logger) (*Workbench, error) {
	w := &Workbench{
		log:  logx.WithComponent(logx.OrDefault(log), "workbench"),
		opts: opts,
	}
	if err := w.init(); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Workbench) init() error {
	// 1. Settings
	w.Settings = configuration.NewService(configuration.NewRegistryWithDefaults(), w.log)
	if path := w.opts.SettingsPath; path != "" {
		var parseErr *configuration.ParseError
		switch err := w.Settings.LoadFile(path); {
		case errors.As(err, &parseErr):
			w.log.Warn("settings file ignored", "path", path, "error", err)
		case err != nil:
			w.log.Warn("some settings were rejected", "path", path, "error", err)
		}
		if w.opts.WatchSettings {
			watcher, err := configuration.NewWatcher(w.Settings, path, 0)
			if err != nil {
				return &InitError{Component: "settings watcher", Err: err}
			}
			w.watcher = watcher
		}
	}

	// 2. State
	if w.opts.StatePath == "" {
		return &InitError{Component: "storage", Err: errors.New("no state path")}
	}
	store, err := storage.Open(w.opts.StatePath)
	if err != nil {
		return &InitError{Component: "storage", Err: err}
	}
	w.Store = store
	w.closers = append(w.closers, store.Close)

	// 3. Commands and models
	w.Actions = commands.NewRegistry()
	w.Models = textmodel.NewService()

	// 4. Walkthroughs
	w.Walkthroughs = walkthrough.NewService(
		walkthrough.NewContentRegistry(),
		walkthrough.NewProgress(store),
		w.Actions.Commands,
		w.Settings,
		w.log,
	)
	actions, err := walkthrough.RegisterActions(w.Actions, w.Walkthroughs)
	if err != nil {
		return &InitError{Component: "walkthrough actions", Err: err}
	}
	w.closers = append(w.closers, func() error {
		actions.Dispose()
		w.Walkthroughs.Dispose()
		return nil
	})

	// 5. Domain services
	w.SCM = scm.NewService()
	w.QuickDiff = scm.NewQuickDiffService()
	w.Comments = comments.NewService()
	w.Markers = diagnostics.NewMarkerService()
	w.Speech = speech.NewService()
	w.Tools = lmtools.NewToolsService()
	w.Clipboard = w.opts.Clipboard
	if w.Clipboard == nil {
		w.Clipboard = clipboard.NewMemory()
	}

	// 6. Telemetry
	var appenders []telemetry.Appender
	if w.opts.TelemetryLog {
		appenders = append(appenders, telemetry.NewLogAppender(w.log))
	}
	if w.opts.TelemetryStoreLimit > 0 {
		appenders = append(appenders, telemetry.NewStoreAppender(store, uint64(w.opts.TelemetryStoreLimit)))
	}
	w.Telemetry = telemetry.NewService(w.Settings, telemetry.Options{
		Product:   w.opts.Product,
		Version:   w.opts.Version,
		Enabled:   w.opts.TelemetryEnabled,
		Appenders: appenders,
	}, w.log)
	w.closers = append(w.closers, func() error { w.Telemetry.Dispose(); return nil })

	// 7. Terminals
	w.Terminals = terminal.NewService(w.Settings, w.log)
	w.closers = append(w.closers, func() error { w.Terminals.Dispose(); return nil })

	w.log.Debug("workbench ready", "state", w.opts.StatePath, "settings", w.opts.SettingsPath)
	return nil
}

// Run reloads settings on change until ctx is done.
func (w *Workbench) Run(ctx context.Context) error {
	if w.watcher == nil {
		<-ctx.Done()
		return nil
	}
	return w.watcher.Run(ctx)
}

// Close releases the local services in reverse start order.
func (w *Workbench) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("workbench: close: %w", err)
	}
	return nil
}
