package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tcg_catalog/catalog"
	"tcg_catalog/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *countingInvalidator, *atomic.Int32, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cards"), 0755))

	inv := &countingInvalidator{}
	var published atomic.Int32
	bus := events.NewBus(false)
	bus.Subscribe(events.CatalogReloaded, func(e events.Event) {
		published.Add(1)
	})

	m := New(dir, inv, bus, opts...)
	return m, inv, &published, dir
}

func TestNew_Defaults(t *testing.T) {
	m := New("data", nil, nil)
	assert.Equal(t, 2*time.Second, m.debounce)
	assert.Equal(t, 30*time.Second, m.pollInterval)
	assert.False(t, m.forcePoll)
}

func TestNew_Options(t *testing.T) {
	m := New("data", nil, nil,
		WithDebounce(100*time.Millisecond),
		WithPollInterval(5*time.Second),
		WithPolling(),
	)
	assert.Equal(t, 100*time.Millisecond, m.debounce)
	assert.Equal(t, 5*time.Second, m.pollInterval)
	assert.True(t, m.forcePoll)
}

func TestWatch_ReloadsOnceForBurst(t *testing.T) {
	m, inv, published, dir := newTestMonitor(t, WithDebounce(100*time.Millisecond))
	m.Start(context.Background())
	defer m.Stop()

	for _, name := range []string{"a.json", "b.json", "c.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cards", name), []byte(`{}`), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.IndexFileName), []byte(`[]`), 0644))

	assert.Eventually(t, func() bool { return m.ReloadCount() == 1 }, 3*time.Second, 20*time.Millisecond)

	// Nothing else changed, so no further reloads.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, m.ReloadCount())
	assert.Equal(t, int32(1), inv.calls.Load())
	assert.Equal(t, int32(1), published.Load())
}

func TestWatch_IgnoresNonJSON(t *testing.T) {
	m, _, _, dir := newTestMonitor(t, WithDebounce(50*time.Millisecond))
	m.Start(context.Background())
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, m.ReloadCount())
}

func TestWatch_NewSubdirectory(t *testing.T) {
	m, _, _, dir := newTestMonitor(t, WithDebounce(50*time.Millisecond))
	m.Start(context.Background())
	defer m.Stop()

	setsDir := filepath.Join(dir, "sets")
	require.NoError(t, os.MkdirAll(setsDir, 0755))
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(setsDir, "base1.json"), []byte(`{}`), 0644))

	assert.Eventually(t, func() bool { return m.ReloadCount() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestPoll_DetectsIndexChange(t *testing.T) {
	m, inv, published, dir := newTestMonitor(t, WithPolling(), WithPollInterval(20*time.Millisecond))
	indexPath := filepath.Join(dir, catalog.IndexFileName)
	require.NoError(t, os.WriteFile(indexPath, []byte(`[]`), 0644))

	m.Start(context.Background())
	defer m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, m.ReloadCount())

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(indexPath, future, future))

	assert.Eventually(t, func() bool { return m.ReloadCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), inv.calls.Load())
	assert.Equal(t, int32(1), published.Load())
}

func TestFlush_WaitsForQuietPeriod(t *testing.T) {
	m, inv, _, _ := newTestMonitor(t, WithDebounce(time.Second))

	m.handleEvent(fsnotify.Event{Name: "/data/cards/a.json", Op: fsnotify.Write})
	m.handleEvent(fsnotify.Event{Name: "/data/cards/b.json", Op: fsnotify.Create})
	m.handleEvent(fsnotify.Event{Name: "/data/cards/a.json", Op: fsnotify.Chmod})
	m.handleEvent(fsnotify.Event{Name: "/data/cards/c.tmp", Op: fsnotify.Write})

	m.flush(time.Now())
	assert.Zero(t, m.ReloadCount())

	m.flush(time.Now().Add(2 * time.Second))
	assert.Equal(t, 1, m.ReloadCount())
	assert.Equal(t, int32(1), inv.calls.Load())

	m.flush(time.Now().Add(4 * time.Second))
	assert.Equal(t, 1, m.ReloadCount())
}

func TestStartStopIdempotent(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestStopAfterContextCancel(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, tickInterval(time.Millisecond))
	assert.Equal(t, 25*time.Millisecond, tickInterval(100*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, tickInterval(time.Minute))
}
