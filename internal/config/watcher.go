package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the editor write+rename bursts into one reload.
const watchDebounce = 500 * time.Millisecond

// Watcher reloads the config file on change and notifies a callback.
// Secrets still come from env vars, so a reload cannot drop them.
type Watcher struct {
	path     string
	cfg      *Config
	onReload func(*Config)

	fw     *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the given config path. onReload is called
// after the live config has been swapped, with the freshly loaded copy.
func NewWatcher(path string, cfg *Config, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: atomic saves (tmp+rename) replace
	// the inode and a file watch would go stale after the first save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, cfg: cfg, onReload: onReload, fw: fw}, nil
}

// Start begins watching. Runs until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(wctx)
}

// Stop terminates the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fw.Close()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-reload:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	if fresh.Hash() == w.cfg.Hash() {
		return
	}
	if err := fresh.Validate(); err != nil {
		slog.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.cfg.ReplaceFrom(fresh)
	slog.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(fresh)
	}
}
