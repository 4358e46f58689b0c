package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/feamando/yarn-retrieval/internal/embedder"
	"github.com/feamando/yarn-retrieval/internal/processor"
	"github.com/feamando/yarn-retrieval/internal/retriever"
	"github.com/feamando/yarn-retrieval/internal/storage"
	"github.com/feamando/yarn-retrieval/internal/watcher"
	"github.com/feamando/yarn-retrieval/pkg/types"
)

// Options configures an Engine.
type Options struct {
	// DBPath is the SQLite database file. Required.
	DBPath string

	// Embedder supplies query and document embeddings. Required.
	Embedder embedder.Embedder

	// WatcherConfig tunes the file watcher started by StartWatching.
	WatcherConfig watcher.Config

	// EmbedTimeout bounds each embedding-model call in the pipeline.
	EmbedTimeout time.Duration

	// CacheSize is the retrieval response cache capacity.
	CacheSize int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine wires the retrieval core to its background embedding pipeline
// behind one lifecycle. It owns the storage handle and the retrieval
// cache; the watcher and processor are started on demand.
type Engine struct {
	opts      Options
	log       *slog.Logger
	store     storage.Storage
	retriever *retriever.Retriever
	proc      *processor.Processor

	w          *watcher.Watcher
	procCancel context.CancelFunc
}

// New opens the database, applies migrations, and builds the retrieval
// pipeline. The caller owns Close.
func New(opts Options) (*Engine, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = retriever.DefaultCacheSize
	}

	store, err := storage.NewSQLiteStorage(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	ret, err := retriever.New(store, opts.Embedder, opts.CacheSize, opts.Logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		log:       opts.Logger,
		store:     store,
		retriever: ret,
	}
	resolver := &pathResolver{store: store, log: opts.Logger, invalidate: ret.InvalidateCache}
	e.proc = processor.New(store, opts.Embedder, resolver, processor.Config{
		EmbedTimeout:  opts.EmbedTimeout,
		OnIndexChange: ret.InvalidateCache,
	}, opts.Logger)
	return e, nil
}

// RetrieveContext runs one hybrid retrieval request.
func (e *Engine) RetrieveContext(ctx context.Context, query string, cfg retriever.Config) (*types.ContextAssembly, error) {
	return e.retriever.RetrieveContext(ctx, query, cfg)
}

// SyncDocument mirrors a document into the read-model, invalidating any
// cached responses that could now be stale.
func (e *Engine) SyncDocument(ctx context.Context, doc *types.Document) error {
	if err := e.store.SyncDocument(ctx, doc); err != nil {
		return err
	}
	e.retriever.InvalidateCache()
	return nil
}

// RemoveDocument drops a document from the read-model along with its
// stored vectors, then invalidates the retrieval cache.
func (e *Engine) RemoveDocument(ctx context.Context, id int64) error {
	if err := e.store.DeleteVectors(ctx, id); err != nil {
		return err
	}
	if err := e.store.RemoveDocument(ctx, id); err != nil {
		return err
	}
	e.retriever.InvalidateCache()
	return nil
}

// SyncDirectory walks a directory and mirrors every file the watcher
// would accept, returning the number of documents synced. Used for
// initial corpus loading and crash recovery.
func (e *Engine) SyncDirectory(ctx context.Context, dir string) (int, error) {
	cfg := e.opts.WatcherConfig
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = watcher.DefaultExtensions
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		allowed := false
		for _, want := range exts {
			if ext == want {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil
		}
		if _, err := e.syncFromFile(ctx, path); err != nil {
			e.log.Warn("skipped file during sync", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if count > 0 {
		e.retriever.InvalidateCache()
	}
	return count, err
}

// StartWatching begins observing directories and feeding coalesced change
// events into the embedding pipeline.
func (e *Engine) StartWatching(ctx context.Context, paths []string) error {
	if e.w != nil {
		return fmt.Errorf("watcher already running")
	}
	w, err := watcher.New(e.opts.WatcherConfig, e.log)
	if err != nil {
		return err
	}
	if err := w.Start(paths); err != nil {
		_ = w.Stop()
		return err
	}
	e.w = w

	procCtx, cancel := context.WithCancel(ctx)
	e.procCancel = cancel
	e.proc.Start(procCtx, w.Events())
	return nil
}

// StopWatching stops the watcher and drains the pipeline.
func (e *Engine) StopWatching() error {
	if e.w == nil {
		return nil
	}
	err := e.w.Stop()
	e.proc.Stop()
	if e.procCancel != nil {
		e.procCancel()
		e.procCancel = nil
	}
	e.w = nil
	return err
}

// ProcessPending drains embedding jobs left over from a previous run.
func (e *Engine) ProcessPending(ctx context.Context, limit int) error {
	return e.proc.ProcessPending(ctx, limit)
}

// CleanupJobs deletes terminal jobs older than the given age and returns
// how many were removed.
func (e *Engine) CleanupJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	return e.store.CleanupJobs(ctx, olderThan)
}

// Storage exposes the underlying store for command-line inspection.
func (e *Engine) Storage() storage.Storage {
	return e.store
}

// Close stops background work and releases the database handle.
func (e *Engine) Close() error {
	stopErr := e.StopWatching()
	closeErr := e.store.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}

// syncFromFile mirrors one file into the read-model, deriving the title
// from the file name.
func (e *Engine) syncFromFile(ctx context.Context, path string) (*types.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := e.store.GetDocumentByPath(ctx, path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc = &types.Document{
			Title:    titleFromPath(path),
			Content:  string(content),
			FilePath: path,
		}
	case err != nil:
		return nil, err
	default:
		doc.Content = string(content)
	}

	if err := e.store.SyncDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pathResolver maps watched file paths to document ids, mirroring a new
// document into the read-model when the path is unknown. This keeps the
// pipeline working for files created outside the document collaborator.
type pathResolver struct {
	store      storage.Storage
	log        *slog.Logger
	invalidate func()
}

func (r *pathResolver) ResolveDocument(ctx context.Context, path string) (int64, error) {
	doc, err := r.store.GetDocumentByPath(ctx, path)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	content, readErr := os.ReadFile(path)
	if readErr != nil {
		return 0, fmt.Errorf("unknown path %s: %w", path, readErr)
	}
	doc = &types.Document{
		Title:    titleFromPath(path),
		Content:  string(content),
		FilePath: path,
	}
	if err := r.store.SyncDocument(ctx, doc); err != nil {
		return 0, err
	}
	if r.invalidate != nil {
		r.invalidate()
	}
	r.log.Info("mirrored new document from file", "path", path, "document_id", doc.ID)
	return doc.ID, nil
}
