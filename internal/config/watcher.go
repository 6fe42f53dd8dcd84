package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moolen/tripwire/internal/logging"
)

// ReloadCallback is called with every successfully loaded config.
// If the callback returns an error on reload, it is logged and the watcher
// keeps watching.
type ReloadCallback func(cfg *Config) error

// WatcherConfig holds configuration for the Watcher.
type WatcherConfig struct {
	// FilePath is the config file to watch
	FilePath string

	// Debounce coalesces change events within this period into one reload.
	// Default: 500ms
	Debounce time.Duration
}

// Watcher reloads the config file when it changes. Editors usually emit
// several events per save, so reloads are debounced.
//
// Invalid configs are logged and the previous config stays in effect.
type Watcher struct {
	config   WatcherConfig
	callback ReloadCallback
	logger   *logging.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}
	mu      sync.Mutex

	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(config WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}

	return &Watcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Name implements lifecycle.Component.
func (w *Watcher) Name() string {
	return "Config Watcher"
}

// Start loads the config, hands it to the callback and begins watching.
// It returns once the file watch is established.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := Load(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}
	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}
	w.logger.Info("Loaded initial config from %s", w.config.FilePath)

	// the watch loop outlives the start context
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
	return nil
}

// signalReady closes the ready channel exactly once
func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch file %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("Watching %s for changes (debounce: %v)", w.config.FilePath, w.config.Debounce)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// atomic saves replace the inode, so the watch must be re-added
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleFileChange(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.reload(ctx)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := Load(w.config.FilePath)
	if err != nil {
		w.logger.Error("Failed to reload config, keeping previous config: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Error("Config reload callback failed: %v", err)
		return
	}
	w.logger.Info("Config reloaded from %s", w.config.FilePath)
}

// Stop ends the watch loop, waiting up to the context deadline.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for config watcher to stop: %w", ctx.Err())
	}
}
