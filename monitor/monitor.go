// Package monitor watches the card data directory and reloads the catalog
// when the data preparation tools rewrite it. Changes are picked up through
// fsnotify where available, with mtime polling of the card index as a
// fallback.
package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"tcg_catalog/catalog"
	"tcg_catalog/events"
)

// Invalidator drops cached catalog data. catalog.Store implements it.
type Invalidator interface {
	Invalidate()
}

// watchedDirs are the data subdirectories watched next to the root.
var watchedDirs = []string{"sets", "cards"}

// Monitor watches the data directory and emits CatalogReloaded events.
type Monitor struct {
	dataPath     string
	catalog      Invalidator
	bus          events.Publisher
	log          zerolog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	forcePoll    bool

	mu        sync.Mutex
	pending   map[string]struct{}
	lastEvent time.Time
	lastMod   time.Time
	reloads   int
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	watcher   *fsnotify.Watcher
}

// Option is a functional option for configuring the monitor.
type Option func(*Monitor)

// WithDebounce sets how long the directory must be quiet before a reload.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		m.debounce = d
	}
}

// WithPollInterval sets the polling interval used when fsnotify is unavailable.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.pollInterval = d
	}
}

// WithPolling disables fsnotify and always polls.
func WithPolling() Option {
	return func(m *Monitor) {
		m.forcePoll = true
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// New creates a monitor for dataPath.
func New(dataPath string, cat Invalidator, bus events.Publisher, opts ...Option) *Monitor {
	m := &Monitor{
		dataPath:     dataPath,
		catalog:      cat,
		bus:          bus,
		log:          zerolog.Nop(),
		debounce:     2 * time.Second,
		pollInterval: 30 * time.Second,
		pending:      make(map[string]struct{}),
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "monitor").Logger()

	return m
}

// Start begins watching in the background. It returns once the watches are
// in place.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	if !m.forcePoll {
		watcher, err := m.newWatcher()
		if err != nil {
			m.log.Warn().Err(err).Msg("File watching unavailable, falling back to polling")
		} else {
			m.watcher = watcher
		}
	}

	if m.watcher != nil {
		m.wg.Add(1)
		go m.watch(ctx)
	} else {
		m.lastMod = m.indexModTime()
		m.wg.Add(1)
		go m.poll(ctx)
	}

	m.log.Info().
		Str("path", m.dataPath).
		Bool("fsnotify", m.watcher != nil).
		Dur("debounce", m.debounce).
		Msg("Data monitor started")
}

// Stop stops the monitor and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	m.log.Info().Msg("Data monitor stopped")
}

// ReloadCount returns how many reloads have been triggered.
func (m *Monitor) ReloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

func (m *Monitor) newWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(m.dataPath); err != nil {
		watcher.Close()
		return nil, err
	}
	for _, dir := range watchedDirs {
		path := filepath.Join(m.dataPath, dir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := watcher.Add(path); err != nil {
				m.log.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		}
	}
	return watcher, nil
}

func (m *Monitor) watch(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(tickInterval(m.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Error().Err(err).Msg("File watcher error")
		case <-ticker.C:
			m.flush(time.Now())
		}
	}
}

// handleEvent records a change to a JSON data file. New subdirectories
// are added to the watch list.
func (m *Monitor) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 && m.isWatchedDir(event.Name) {
		if err := m.watcher.Add(event.Name); err != nil {
			m.log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch directory")
		}
		return
	}

	if !strings.HasSuffix(event.Name, ".json") {
		return
	}

	m.log.Trace().Str("file", event.Name).Str("op", event.Op.String()).Msg("Data file changed")
	m.mu.Lock()
	m.pending[event.Name] = struct{}{}
	m.lastEvent = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) isWatchedDir(path string) bool {
	if filepath.Dir(path) != filepath.Clean(m.dataPath) {
		return false
	}
	name := filepath.Base(path)
	for _, dir := range watchedDirs {
		if name == dir {
			info, err := os.Stat(path)
			return err == nil && info.IsDir()
		}
	}
	return false
}

// flush reloads once the pending changes have been quiet for the debounce
// window.
func (m *Monitor) flush(now time.Time) {
	m.mu.Lock()
	if len(m.pending) == 0 || now.Sub(m.lastEvent) < m.debounce {
		m.mu.Unlock()
		return
	}
	files := len(m.pending)
	m.pending = make(map[string]struct{})
	m.mu.Unlock()

	m.reload(files)
}

func (m *Monitor) poll(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			mod := m.indexModTime()
			m.mu.Lock()
			changed := !mod.Equal(m.lastMod)
			m.lastMod = mod
			m.mu.Unlock()
			if changed {
				m.reload(1)
			}
		}
	}
}

func (m *Monitor) indexModTime() time.Time {
	info, err := os.Stat(filepath.Join(m.dataPath, catalog.IndexFileName))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (m *Monitor) reload(files int) {
	m.mu.Lock()
	m.reloads++
	m.mu.Unlock()

	if m.catalog != nil {
		m.catalog.Invalidate()
	}
	m.log.Info().Int("files", files).Msg("Catalog data changed, index reloaded")
	if m.bus != nil {
		m.bus.Publish(events.NewCatalogReloadedEvent(m.dataPath, files))
	}
}

func tickInterval(debounce time.Duration) time.Duration {
	tick := debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > 500*time.Millisecond {
		tick = 500 * time.Millisecond
	}
	return tick
}
