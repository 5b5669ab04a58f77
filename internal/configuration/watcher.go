package configuration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a settings file into a Service when it changes.
type Watcher struct {
	svc      *Service
	path     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher watches path's directory, so the file may be replaced by
// rename or created later.
func NewWatcher(svc *Service, path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configuration: watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("configuration: watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{svc: svc, path: abs, debounce: debounce, fsw: fsw}, nil
}

// Run reloads on change until ctx is done. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.svc.log.Warn("settings watcher error", "path", w.path, "error", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	err := w.svc.LoadFile(w.path)
	var perr *ParseError
	switch {
	case err == nil:
		w.svc.log.Info("settings reloaded", "path", w.path)
	case errors.As(err, &perr):
		// Keep the previous values while the file is mid-edit.
		w.svc.log.Warn("settings file does not parse", "path", w.path, "error", err)
	default:
		w.svc.log.Warn("settings reloaded with errors", "path", w.path, "error", err)
	}
}
