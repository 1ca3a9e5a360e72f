package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc receives a configuration that loaded and validated cleanly.
type ReloadFunc func(cfg *Config)

// ConfigWatcher watches configuration files for changes
type ConfigWatcher struct {
	logger   *zap.Logger
	path     string
	debounce time.Duration
	onReload ReloadFunc

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	reloads int
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(logger *zap.Logger, configPath string, debounce time.Duration, onReload ReloadFunc) (*ConfigWatcher, error) {
	if configPath == "" {
		return nil, errors.New("config watcher requires a file path")
	}
	if onReload == nil {
		return nil, errors.New("config watcher requires a reload callback")
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &ConfigWatcher{
		logger:   logger,
		path:     filepath.Clean(configPath),
		debounce: debounce,
		onReload: onReload,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start starts watching the configuration file
//
// The directory is watched rather than the file so editors that replace the
// file on save are still seen.
func (cw *ConfigWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return errors.New("watcher already running")
	}

	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.handleEvents()

	cw.logger.Info("Configuration watcher started", zap.String("path", cw.path))
	return nil
}

// Stop stops the configuration watcher
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	if cw.timer != nil {
		cw.timer.Stop()
	}
	close(cw.done)
	cw.mu.Unlock()

	cw.watcher.Close()
	cw.wg.Wait()

	cw.logger.Info("Configuration watcher stopped")
}

// Reloads returns how many reloads were applied.
func (cw *ConfigWatcher) Reloads() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.reloads
}

// handleEvents handles file system events
func (cw *ConfigWatcher) handleEvents() {
	defer cw.wg.Done()

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}

			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				cw.logger.Debug("Config file changed",
					zap.String("path", event.Name),
					zap.String("op", event.Op.String()),
				)
				cw.scheduleReload()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				cw.logger.Warn("Config file removed, keeping current configuration",
					zap.String("path", event.Name),
				)
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("File watcher error", zap.Error(err))

		case <-cw.done:
			return
		}
	}
}

// scheduleReload schedules a configuration reload with debouncing
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return
	}
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	cw.mu.Lock()
	running := cw.running
	cw.mu.Unlock()
	if !running {
		return
	}

	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Error("Rejected configuration reload, keeping current configuration",
			zap.String("path", cw.path),
			zap.Error(err),
		)
		return
	}

	cw.logger.Info("Reloading configuration", zap.String("path", cw.path))
	cw.onReload(cfg)

	cw.mu.Lock()
	cw.reloads++
	cw.mu.Unlock()
}

// RuleSink accepts a replacement rule set.
type RuleSink interface {
	ReplaceAlertRules(rules []monitoring.AlertRule) error
}

// RuleReloader applies reloaded alert rules to sink.
func RuleReloader(logger *zap.Logger, sink RuleSink) ReloadFunc {
	return func(cfg *Config) {
		rules, err := cfg.AlertRules()
		if err != nil {
			logger.Error("Invalid alert rules in reloaded configuration", zap.Error(err))
			return
		}
		if err := sink.ReplaceAlertRules(rules); err != nil {
			logger.Error("Failed to apply reloaded alert rules", zap.Error(err))
			return
		}
		logger.Info("Alert rules reloaded", zap.Int("rules", len(rules)))
	}
}
