package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seisnet/cd11streams/errors"
)

// Watcher reloads a config file when it changes and hands every valid
// result to a callback. Invalid files are logged and ignored so the last
// good configuration stays in effect.
type Watcher struct {
	path     string
	delay    time.Duration
	onChange func(*Config)
	logger   *slog.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher watches path. delay <= 0 selects 100ms.
func NewWatcher(path string, delay time.Duration, onChange func(*Config), logger *slog.Logger) *Watcher {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		delay:    delay,
		onChange: onChange,
		logger:   logger.With("component", "config-watcher", "path", path),
	}
}

// Run watches the file's directory until ctx is done. Editors often replace
// files rather than write them, so the directory is watched and events are
// filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapFatal(err, "Watcher", "Run", "create watcher")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return errors.WrapFatal(err, "Watcher", "Run", "watch "+filepath.Dir(w.path))
	}
	name := filepath.Base(w.path)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload rejected", "error", err)
		return
	}
	w.logger.Info("config reloaded")
	w.onChange(cfg)
}
