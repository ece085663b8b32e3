// Package watch triggers a registry reload when manifest files in the tools
// directory change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"modbot/internal/tool"
)

const defaultDebounce = 500 * time.Millisecond

// Reloader is satisfied by *tool.Reloader.
type Reloader interface {
	Reload(ctx context.Context) (*tool.ReloadReport, error)
}

// Watcher coalesces bursts of file events into a single Reload call once the
// directory has been quiet for the debounce interval.
type Watcher struct {
	dir      string
	reloader Reloader
	debounce time.Duration
	onReload func(*tool.ReloadReport)
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopped chan struct{}
}

func New(dir string, reloader Reloader, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{dir: dir, reloader: reloader, debounce: debounce, logger: logger}
}

// OnReload registers a callback run after every successful reload.
func (w *Watcher) OnReload(fn func(*tool.ReloadReport)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Start begins watching. It returns once the directory is being watched;
// events are handled in the background until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fsw = fsw
	w.stopped = make(chan struct{})

	go w.run(ctx, fsw, w.stopped)
	w.logger.Info("watching tools directory", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fsw, stopped := w.fsw, w.stopped
	w.fsw = nil
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-stopped
	return err
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, stopped chan struct{}) {
	defer close(stopped)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("tools directory changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	report, err := w.reloader.Reload(ctx)
	if err != nil {
		w.logger.Error("reload failed, keeping previous tools", "err", err)
		return
	}
	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(report)
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return tool.IsManifest(filepath.Base(event.Name))
}
