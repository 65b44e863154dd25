package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is implemented by components that can apply configuration
// changes at runtime (allow-lists, rate ceilings).
type Reloadable interface {
	// OnConfigReload is called with the validated new configuration.
	// Errors are logged; other subscribers are still notified.
	OnConfigReload(newCfg *Config) error
}

// Reloader watches the config file and coordinates hot reloads via SIGHUP
// and optional fsnotify file watching with debounce. Changes to fields that
// are not hot-applicable are logged and ignored until restart.
type Reloader struct {
	configPath  string
	current     atomic.Pointer[Config]
	subscribers []Reloadable
	logger      *slog.Logger
	debounce    time.Duration
	watchFile   bool

	mu      sync.RWMutex
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	stopped chan struct{}
	sigs    chan os.Signal
}

// NewReloader creates a Reloader for the given config file path and stores
// initialCfg as the current configuration.
func NewReloader(configPath string, initialCfg *Config, logger *slog.Logger) *Reloader {
	r := &Reloader{
		configPath: configPath,
		logger:     logger,
		debounce:   initialCfg.Reload.Debounce.Duration,
		watchFile:  initialCfg.Reload.WatchFile,
		stopped:    make(chan struct{}),
	}
	r.current.Store(initialCfg)
	return r
}

// Register adds a component to receive reload notifications. Call before Start.
func (r *Reloader) Register(sub Reloadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// Current returns the active configuration. Safe for concurrent use.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Start begins watching for SIGHUP and, when enabled, file changes.
// It returns after spawning the watch loop.
func (r *Reloader) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.sigs = make(chan os.Signal, 1)
	signal.Notify(r.sigs, syscall.SIGHUP)

	if r.watchFile {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		r.watcher = watcher

		if err := watcher.Add(r.configPath); err != nil {
			watcher.Close()
			return fmt.Errorf("watching config file %q: %w", r.configPath, err)
		}
		r.logger.Info("config file watcher started", "path", r.configPath, "debounce", r.debounce)
	}

	go r.run(ctx)
	return nil
}

// Stop shuts down the reloader and waits for the watch loop to exit.
func (r *Reloader) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.stopped
}

// Reload re-reads the config file, validates it, and applies reloadable
// changes. An invalid file keeps the current config and returns an error.
func (r *Reloader) Reload() error {
	newCfg, err := Load(r.configPath)
	if err != nil {
		r.logger.Error("config reload failed, keeping current config", "error", err, "path", r.configPath)
		return fmt.Errorf("config reload: %w", err)
	}

	oldCfg := r.current.Load()
	changes := Diff(oldCfg, newCfg)
	if len(changes) == 0 {
		r.logger.Info("config reload: no changes detected")
		return nil
	}

	restartNeeded := false
	for _, c := range changes {
		if c.Reloadable {
			r.logger.Info("config change applied",
				"field", c.Field,
				"old", fmt.Sprintf("%v", c.OldValue),
				"new", fmt.Sprintf("%v", c.NewValue),
			)
		} else {
			restartNeeded = true
			r.logger.Warn("config change requires restart (ignored)", "field", c.Field)
		}
	}
	if restartNeeded {
		r.logger.Warn("some config changes require a restart to take effect")
	}

	r.current.Store(newCfg)

	r.mu.RLock()
	subs := make([]Reloadable, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.OnConfigReload(newCfg); err != nil {
			r.logger.Error("subscriber reload failed", "error", err, "subscriber", fmt.Sprintf("%T", sub))
		}
	}

	r.logger.Info("config reloaded", "changes", len(changes), "path", r.configPath)
	return nil
}

func (r *Reloader) run(ctx context.Context) {
	defer close(r.stopped)
	defer signal.Stop(r.sigs)
	if r.watcher != nil {
		defer r.watcher.Close()
	}

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case sig := <-r.sigs:
			r.logger.Info("received signal, reloading config", "signal", sig)
			if err := r.Reload(); err != nil {
				r.logger.Error("SIGHUP reload failed", "error", err)
			}

		case event, ok := <-r.watcherEvents():
			if !ok {
				return
			}
			// Editors replace files via rename/create; treat all three as a change.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(r.debounce)
				debounceCh = debounceTimer.C
			}

		case err, ok := <-r.watcherErrors():
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			debounceTimer = nil
			if r.watcher != nil {
				// Re-add in case the file was replaced; it may be briefly absent.
				_ = r.watcher.Add(r.configPath)
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("file watch reload failed", "error", err)
			}
		}
	}
}

func (r *Reloader) watcherEvents() <-chan fsnotify.Event {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Events
}

func (r *Reloader) watcherErrors() <-chan error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Errors
}
