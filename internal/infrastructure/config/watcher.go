package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watcher hot-reloads the config file viper loaded (the project-local
// config.yaml when one exists, otherwise ~/.zenus/config.yaml), letting the router's
// force_model, cache bounds, and guardrail knobs change without a restart.
// Grounded on the teacher's ConfigWatcher (reload-on-change + RWMutex-
// guarded snapshot), using fsnotify instead of polling since viper already
// exposes fsnotify integration directly.
type Watcher struct {
	mu        sync.RWMutex
	current   Config
	logger    *zap.Logger
	v         *viper.Viper
	listeners []func(Config)
}

// NewWatcher wraps an already-loaded viper instance and config snapshot,
// and begins watching its config file for changes.
func NewWatcher(v *viper.Viper, initial Config, logger *zap.Logger) *Watcher {
	w := &Watcher{current: initial, logger: logger, v: v}
	v.OnConfigChange(func(e fsnotify.Event) {
		w.reload()
	})
	v.WatchConfig()
	return w
}

// Config returns the latest configuration snapshot (thread-safe).
func (w *Watcher) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to run with each successfully reloaded snapshot.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Watcher) reload() {
	var cfg Config
	if err := w.v.Unmarshal(&cfg); err != nil {
		w.logger.Warn("config hot-reload failed, keeping previous values", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = cfg
	listeners := append([]func(Config){}, w.listeners...)
	w.mu.Unlock()
	w.logger.Info("configuration reloaded")
	for _, fn := range listeners {
		fn(cfg)
	}
}
