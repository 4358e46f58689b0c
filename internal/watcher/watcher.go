package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultTick        = 100 * time.Millisecond
	DefaultMaxFileSize = 10 << 20 // 10 MiB
	DefaultBufferSize  = 64
)

// DefaultExtensions is the file extension allow-list used when none is
// configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// Config controls debouncing and raw-event filtering.
type Config struct {
	// Debounce is the quiet period a path must stay unchanged before its
	// coalesced event is promoted.
	Debounce time.Duration

	// Tick is how often the pending map is scanned for promotable entries.
	Tick time.Duration

	// Extensions is the allow-list of file extensions (with leading dot).
	Extensions []string

	// MaxFileSize rejects raw events for files larger than this many bytes.
	MaxFileSize int64

	// BufferSize is the capacity of the promoted-event channel.
	BufferSize int
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
}

// Watcher observes directories and emits debounced, coalesced file change
// events. Editors and OS file APIs often fire several raw events for one
// logical save; the watcher collapses a burst per path into a single
// promoted event once the path has been quiet for the debounce interval.
//
// The watcher never blocks on downstream work: promoted events are handed
// off through a buffered channel and the consumer runs on its own task.
type Watcher struct {
	cfg Config
	log *slog.Logger

	fsw    *fsnotify.Watcher
	events chan types.FileChangeEvent

	mu      sync.Mutex
	pending map[string]time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// New creates a Watcher. Call Start to begin observing paths.
func New(cfg Config, log *slog.Logger) (*Watcher, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		log:     log,
		fsw:     fsw,
		events:  make(chan types.FileChangeEvent, cfg.BufferSize),
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}, nil
}

// Events returns the channel of promoted change events. The channel is
// closed after Stop.
func (w *Watcher) Events() <-chan types.FileChangeEvent {
	return w.events
}

// Start begins watching the given directories on a background task.
func (w *Watcher) Start(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to watch")
	}
	for _, p := range paths {
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	w.started = true
	w.wg.Add(1)
	go w.run()

	w.log.Info("file watcher started", "paths", paths, "debounce", w.cfg.Debounce)
	return nil
}

// Stop ends observation, drains the background task, and closes the
// events channel.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		if w.started {
			w.wg.Wait()
		}
		close(w.events)
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case raw, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(raw)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		case now := <-ticker.C:
			for _, ev := range w.promote(now) {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}
		}
	}
}

// handleRaw filters a raw fsnotify event and records it into the pending
// map. Filtering happens here, before the pending map, so disallowed
// files never cost a promotion or an embedding.
func (w *Watcher) handleRaw(raw fsnotify.Event) {
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	if raw.Op&relevant == 0 {
		return
	}
	if !w.accepts(raw.Name) {
		return
	}
	w.record(raw.Name, time.Now())
}

// accepts applies the extension allow-list and the size cap. A stat
// failure is accepted: the path may have just been deleted and the
// deletion still needs to propagate.
func (w *Watcher) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := false
	for _, e := range w.cfg.Extensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	if info.IsDir() {
		return false
	}
	return info.Size() <= w.cfg.MaxFileSize
}

// record notes a raw change with last-write-wins semantics: a newer
// timestamp for the same path overwrites the older one, so a rapid edit
// burst collapses to a single pending entry.
func (w *Watcher) record(path string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = at
}

// promote scans the pending map and returns a coalesced event for every
// path that has been quiet for at least the debounce interval. The event
// kind is derived by re-checking the filesystem at promotion time: an
// existing path is Modified (covering both create and modify), a missing
// one is Deleted.
func (w *Watcher) promote(now time.Time) []types.FileChangeEvent {
	w.mu.Lock()
	ready := make(map[string]time.Time)
	for path, at := range w.pending {
		if now.Sub(at) >= w.cfg.Debounce {
			ready[path] = at
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	promoted := make([]types.FileChangeEvent, 0, len(ready))
	for path, at := range ready {
		kind := types.ChangeModified
		if _, err := os.Stat(path); err != nil {
			kind = types.ChangeDeleted
		}
		promoted = append(promoted, types.FileChangeEvent{
			Path:       path,
			Kind:       kind,
			ObservedAt: at,
		})
	}
	return promoted
}

// PendingCount reports how many paths are waiting out the debounce
// interval. Intended for status reporting.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
