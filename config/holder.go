// Package config provides configuration loading and hot reload.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounce coalesces the burst of events editors emit for one save.
const debounce = 150 * time.Millisecond

// field describes one config value tracked across reloads.
type field struct {
	name       string
	reloadable bool
	value      func(*Config) string
}

var fields = []field{
	{"logging.level", true, func(c *Config) string { return c.Logging.Level }},
	{"snapshots.interval", true, func(c *Config) string { return c.Snapshots.Interval.String() }},
	{"server.host", false, func(c *Config) string { return c.Server.Host }},
	{"server.port", false, func(c *Config) string { return fmt.Sprint(c.Server.Port) }},
	{"upstream.url", false, func(c *Config) string { return c.Upstream.URL }},
	{"database.dsn", false, func(c *Config) string { return c.Database.DSN }},
	{"cache.redis_addr", false, func(c *Config) string { return c.Cache.RedisAddr }},
}

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	config atomic.Pointer[Config]
	path   string
	logger zerolog.Logger

	reloadMu sync.Mutex
	digest   [sha256.Size]byte

	mu       sync.Mutex
	onChange []func(*Config)
	onResult func(error)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	h := &Holder{
		path:   absPath,
		logger: logger.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}
	h.config.Store(cfg)
	h.digest, _ = fileDigest(absPath)

	return h, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	return h.config.Load()
}

// Reload re-reads the file. On failure the previous configuration stays active.
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	return h.reloadLocked()
}

func (h *Holder) reloadLocked() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		h.report(err)
		return fmt.Errorf("reload config: %w", err)
	}
	h.digest, _ = fileDigest(h.path)

	prev := h.config.Swap(next)
	h.logChanges(prev, next)

	h.mu.Lock()
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	h.report(nil)

	h.logger.Info().Msg("configuration reloaded")
	return nil
}

// reloadIfChanged reloads only when the file content differs from the
// last successful load.
func (h *Holder) reloadIfChanged() {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	sum, err := fileDigest(h.path)
	if err == nil && sum == h.digest {
		return
	}
	if err := h.reloadLocked(); err != nil {
		h.logger.Debug().Err(err).Msg("watched reload failed")
	}
}

// OnChange registers a callback run after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReloadResult registers a callback receiving the outcome of every reload.
func (h *Holder) OnReloadResult(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResult = fn
}

func (h *Holder) report(err error) {
	h.mu.Lock()
	fn := h.onResult
	h.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// WatchFile reloads the configuration when the file changes on disk.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so atomic renames by editors are seen.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop(watcher)

	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

// WatchSignals reloads the configuration on SIGHUP.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP")
				_ = h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			h.reloadIfChanged()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(prev, next *Config) {
	for _, name := range Diff(prev, next) {
		f := lookup(name)
		if f.reloadable {
			h.logger.Info().
				Str("field", name).
				Str("old", f.value(prev)).
				Str("new", f.value(next)).
				Msg("config value changed")
			continue
		}
		h.logger.Warn().Str("field", name).Msg("change requires a restart to take effect")
	}

	if len(prev.Auth.Keys) != len(next.Auth.Keys) {
		h.logger.Info().
			Int("old", len(prev.Auth.Keys)).
			Int("new", len(next.Auth.Keys)).
			Msg("api key count changed, restart to apply")
	}
}

// Diff returns the names of tracked fields whose values differ.
func Diff(prev, next *Config) []string {
	var changed []string
	for _, f := range fields {
		if f.value(prev) != f.value(next) {
			changed = append(changed, f.name)
		}
	}
	return changed
}

func lookup(name string) field {
	for _, f := range fields {
		if f.name == name {
			return f
		}
	}
	return field{}
}

func fileDigest(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(reloadable bool) []string {
	var names []string
	for _, f := range fields {
		if f.reloadable == reloadable {
			names = append(names, f.name)
		}
	}
	return names
}
