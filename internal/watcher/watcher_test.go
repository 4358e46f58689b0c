package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

func newTestWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestRecordCoalescesBursts(t *testing.T) {
	w := newTestWatcher(t, Config{})

	base := time.Now()
	for i := 0; i < 5; i++ {
		w.record("/docs/a.md", base.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, 1, w.PendingCount(), "rapid events on one path must coalesce")
}

func TestPromoteRespectsDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	w := newTestWatcher(t, Config{Debounce: 100 * time.Millisecond})

	now := time.Now()
	w.record(path, now)

	// Still inside the quiet period.
	assert.Empty(t, w.promote(now.Add(50*time.Millisecond)))
	assert.Equal(t, 1, w.PendingCount())

	events := w.promote(now.Add(150 * time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, types.ChangeModified, events[0].Kind)
	assert.Zero(t, w.PendingCount())
}

func TestPromoteDerivesDeletedKind(t *testing.T) {
	w := newTestWatcher(t, Config{Debounce: 10 * time.Millisecond})

	missing := filepath.Join(t.TempDir(), "gone.md")
	now := time.Now()
	w.record(missing, now)

	events := w.promote(now.Add(20 * time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, types.ChangeDeleted, events[0].Kind)
}

func TestNewWriteResetsDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	w := newTestWatcher(t, Config{Debounce: 100 * time.Millisecond})

	now := time.Now()
	w.record(path, now)
	w.record(path, now.Add(80*time.Millisecond))

	// 150ms after the first write but only 70ms after the second.
	assert.Empty(t, w.promote(now.Add(150*time.Millisecond)))

	events := w.promote(now.Add(200 * time.Millisecond))
	assert.Len(t, events, 1)
}

func TestAcceptsFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "a.md")
	bin := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(md, []byte("text"), 0o644))
	require.NoError(t, os.WriteFile(bin, []byte{0, 1, 2}, 0o644))

	w := newTestWatcher(t, Config{})

	assert.True(t, w.accepts(md))
	assert.False(t, w.accepts(bin))
	assert.False(t, w.accepts(dir), "directories are never accepted")
}

func TestAcceptsSizeCap(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.md")
	require.NoError(t, os.WriteFile(big, make([]byte, 2048), 0o644))

	w := newTestWatcher(t, Config{MaxFileSize: 1024})
	assert.False(t, w.accepts(big))
}

func TestAcceptsMissingFile(t *testing.T) {
	w := newTestWatcher(t, Config{})
	// A just-deleted path cannot be stat'd but its event must flow through.
	assert.True(t, w.accepts(filepath.Join(t.TempDir(), "deleted.md")))
}

func TestWatcherEndToEnd(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Config{
		Debounce: 50 * time.Millisecond,
		Tick:     10 * time.Millisecond,
	})
	require.NoError(t, w.Start([]string{dir}))

	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, types.ChangeModified, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for promoted event")
	}

	// The burst must have collapsed to a single event.
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartRequiresPaths(t *testing.T) {
	w := newTestWatcher(t, Config{})
	assert.Error(t, w.Start(nil))
}
