package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Provider hands out the current compiled validation snapshot.
type Provider interface {
	Current() Snapshot
}

// StaticProvider wraps a single immutable snapshot. Used when no config file
// is watched and in tests.
type StaticProvider struct {
	snapshot Snapshot
}

// NewStaticProvider builds a provider that always returns snap.
func NewStaticProvider(snap Snapshot) *StaticProvider {
	return &StaticProvider{snapshot: snap}
}

// Current returns the wrapped snapshot.
func (p *StaticProvider) Current() Snapshot {
	return p.snapshot
}

// FileProvider watches a configuration file and recompiles the validation
// snapshot when the file changes. A reload that fails to parse or compile
// keeps the previous snapshot in place.
type FileProvider struct {
	path       string
	logger     *slog.Logger
	mu         sync.RWMutex
	snapshot   Snapshot
	generation int64
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
}

// NewFileProvider compiles the initial snapshot from the file and starts
// watching its directory for changes.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileProvider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
	}

	if err := p.load(); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the most recently compiled snapshot.
func (p *FileProvider) Current() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Close stops the watcher and cleans up resources.
func (p *FileProvider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := p.load(); err != nil {
						p.logger.Error("validation config reload failed, keeping previous snapshot",
							"path", p.path, "error", err)
						return
					}
					p.logger.Info("validation config reloaded", "path", p.path)
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) load() error {
	cfg, err := Load(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	generation := p.generation + 1
	p.mu.Unlock()

	snap, err := cfg.Validation.Compile(generation)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.generation = generation
	p.snapshot = snap
	p.mu.Unlock()

	return nil
}
