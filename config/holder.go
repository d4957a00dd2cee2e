package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
// A reload is triggered by a change to the config file or to any bundle
// artifact it references.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	watched  map[string]bool // absolute file paths
	dirs     map[string]bool
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		config:  cfg,
		path:    absPath,
		logger:  logger,
		watched: make(map[string]bool),
		dirs:    make(map[string]bool),
		stopCh:  make(chan struct{}),
	}
	h.trackLocked(cfg)
	return h, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute config file path.
func (h *Holder) Path() string {
	return h.path
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	h.trackLocked(newCfg)
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.addWatches()
	h.logChanges(oldCfg, newCfg)

	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Watched reports whether a change to path triggers a reload.
func (h *Holder) Watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.watched[abs]
}

// trackLocked records the config file and the bundle files of cfg. Directories
// are watched rather than files so editors that save atomically are seen.
func (h *Holder) trackLocked(cfg *Config) {
	h.watched = map[string]bool{h.path: true}
	for _, f := range cfg.Files() {
		if abs, err := filepath.Abs(f); err == nil {
			h.watched[abs] = true
		}
	}
}

// WatchFile starts watching the config and bundle files for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()

	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.mu.Lock()
	h.dirs[filepath.Dir(h.path)] = true
	h.mu.Unlock()
	h.addWatches()

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Int("files", len(h.watchedFiles())).Msg("watching config for changes")
	return nil
}

func (h *Holder) watchedFiles() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.watched))
	for p := range h.watched {
		out = append(out, p)
	}
	return out
}

// addWatches adds directories of newly referenced files.
func (h *Holder) addWatches() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher == nil {
		return
	}
	for p := range h.watched {
		dir := filepath.Dir(p)
		if h.dirs[dir] {
			continue
		}
		if err := h.watcher.Add(dir); err != nil {
			h.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch bundle directory")
			continue
		}
		h.dirs[dir] = true
	}
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals. It is safe to call twice.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !h.Watched(event.Name) {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("watched file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Active != new.Active {
		h.logger.Info().
			Str("old", old.Active).
			Str("new", new.Active).
			Msg("active bundle changed")
	}

	if len(old.Bundles) != len(new.Bundles) {
		h.logger.Info().
			Int("old", len(old.Bundles)).
			Int("new", len(new.Bundles)).
			Msg("bundle count changed")
	}
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"active",
		"bundles",
		"formats",
		"engine.analysis.timeout",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"metrics.enabled",
		"results.dsn",
	}
}
