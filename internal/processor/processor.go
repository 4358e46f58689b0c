package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feamando/yarn-retrieval/internal/embedder"
	"github.com/feamando/yarn-retrieval/internal/storage"
	"github.com/feamando/yarn-retrieval/pkg/types"
)

// DefaultEmbedTimeout bounds a single embedding-model call. On timeout the
// job fails with a timeout error instead of hanging the loop.
const DefaultEmbedTimeout = 60 * time.Second

// DocumentResolver maps a file path to a document identity. Resolution is
// the document collaborator's concern; the processor only requires that
// the mapping be stable for a given path.
type DocumentResolver interface {
	ResolveDocument(ctx context.Context, path string) (int64, error)
}

// Config tunes the processor.
type Config struct {
	// EmbedTimeout bounds each embedding-model call.
	EmbedTimeout time.Duration

	// CatchUpWorkers is the concurrency used by ProcessPending.
	CatchUpWorkers int

	// OnIndexChange is called after every write that can change retrieval
	// results (vector stored or removed). The owner hooks cache
	// invalidation here. Optional.
	OnIndexChange func()
}

func (c *Config) applyDefaults() {
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	if c.CatchUpWorkers <= 0 {
		c.CatchUpWorkers = 4
	}
}

// Processor consumes coalesced file change events and keeps the vector
// store current: it hashes content, skips already-embedded versions via
// the job queue's idempotency key, invokes the embedding model, and
// upserts the result. A single file's failure never stops the loop; the
// error lands on the job record and processing continues.
type Processor struct {
	store    storage.Storage
	embedder embedder.Embedder
	resolver DocumentResolver
	cfg      Config
	log      *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Processor. Call Start to begin consuming events.
func New(store storage.Storage, emb embedder.Embedder, resolver DocumentResolver, cfg Config, log *slog.Logger) *Processor {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:    store,
		embedder: emb,
		resolver: resolver,
		cfg:      cfg,
		log:      log,
	}
}

// Start launches the processing loop on a background task. Each Start
// opens a fresh session, so a processor can be stopped and started again.
func (p *Processor) Start(ctx context.Context, events <-chan types.FileChangeEvent) {
	p.mu.Lock()
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, events, stop)
	}()
}

// Stop signals cooperative shutdown and waits for the loop to observe it.
// An in-flight embedding call is bounded by the embed timeout, so Stop
// returns within that bound. Stopping an idle processor is a no-op.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// run consumes events until the channel closes, the context is canceled,
// or Stop is called. The shutdown signal is observed at the top of the
// loop, never mid-event.
func (p *Processor) run(ctx context.Context, events <-chan types.FileChangeEvent, stop <-chan struct{}) {
	p.log.Info("embedding processor started")
	for {
		select {
		case <-stop:
			p.log.Info("embedding processor stopped")
			return
		case <-ctx.Done():
			p.log.Info("embedding processor stopped", "reason", ctx.Err())
			return
		case ev, ok := <-events:
			if !ok {
				p.log.Info("embedding processor stopped", "reason", "event channel closed")
				return
			}
			p.handleEvent(ctx, ev)
		}
	}
}

// handleEvent isolates one event: failures are logged and recorded, never
// propagated into the loop.
func (p *Processor) handleEvent(ctx context.Context, ev types.FileChangeEvent) {
	var err error
	switch ev.Kind {
	case types.ChangeDeleted:
		err = p.processDelete(ctx, ev.Path)
	default:
		err = p.ProcessChange(ctx, ev.Path)
	}
	if err != nil {
		p.log.Warn("skipped change event", "path", ev.Path, "kind", ev.Kind, "error", err)
	}
}

// ProcessChange embeds the current content of a created or modified file.
// Unreadable files are skipped: the file may have been deleted mid-flight
// and its deletion event will follow.
func (p *Processor) ProcessChange(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unreadable file: %w", err)
	}

	documentID, err := p.resolver.ResolveDocument(ctx, path)
	if err != nil {
		return fmt.Errorf("unresolved document: %w", err)
	}

	contentHash := embedder.ComputeHash(string(content))

	exists, err := p.store.JobExistsForContent(ctx, documentID, contentHash)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if exists {
		p.log.Debug("content already embedded, skipping", "path", path, "document_id", documentID)
		return nil
	}

	jobID, err := p.store.EnqueueJob(ctx, documentID, path, contentHash)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	return p.runJob(ctx, jobID, documentID, string(content))
}

// runJob drives one job through its lifecycle: Processing, then Completed
// with the vector stored, or Failed with the error captured. A failed job
// is not retried automatically; retry is an explicit operator action via
// re-enqueue.
func (p *Processor) runJob(ctx context.Context, jobID, documentID int64, content string) error {
	if err := p.store.TransitionJob(ctx, jobID, types.JobProcessing, ""); err != nil {
		return fmt.Errorf("transition job %d: %w", jobID, err)
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	vector, embedErr := p.embedder.Embed(embedCtx, content)
	cancel()

	if embedErr != nil {
		if err := p.store.TransitionJob(ctx, jobID, types.JobFailed, embedErr.Error()); err != nil {
			return fmt.Errorf("record failure on job %d: %w", jobID, err)
		}
		p.log.Warn("embedding failed", "job_id", jobID, "document_id", documentID, "error", embedErr)
		return nil
	}

	if _, err := p.store.UpsertVector(ctx, documentID, p.embedder.ModelName(), vector); err != nil {
		if terr := p.store.TransitionJob(ctx, jobID, types.JobFailed, err.Error()); terr != nil {
			return fmt.Errorf("record failure on job %d: %w", jobID, terr)
		}
		p.log.Warn("vector upsert failed", "job_id", jobID, "document_id", documentID, "error", err)
		return nil
	}

	if err := p.store.TransitionJob(ctx, jobID, types.JobCompleted, ""); err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}

	p.notifyIndexChange()
	p.log.Info("embedded document", "job_id", jobID, "document_id", documentID, "dimension", len(vector))
	return nil
}

// notifyIndexChange tells the owner that retrieval results may have
// changed, so any cached responses can be invalidated.
func (p *Processor) notifyIndexChange() {
	if p.cfg.OnIndexChange != nil {
		p.cfg.OnIndexChange()
	}
}

// processDelete removes the stored vectors for a deleted file's document.
func (p *Processor) processDelete(ctx context.Context, path string) error {
	documentID, err := p.resolver.ResolveDocument(ctx, path)
	if err != nil {
		return fmt.Errorf("unresolved document: %w", err)
	}
	if err := p.store.DeleteVectors(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	p.notifyIndexChange()
	p.log.Info("removed vectors for deleted file", "path", path, "document_id", documentID)
	return nil
}

// ProcessPending drains jobs left in Pending after a crash or restart,
// using a bounded worker pool. Each job re-reads its file; a job
// whose file no longer matches its recorded hash is marked Failed so the
// next change event recomputes it.
func (p *Processor) ProcessPending(ctx context.Context, limit int) error {
	jobs, err := p.store.PendingJobs(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.CatchUpWorkers)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			content, err := os.ReadFile(job.FilePath)
			if err != nil {
				return p.store.TransitionJob(gctx, job.ID, types.JobFailed, fmt.Sprintf("unreadable file: %v", err))
			}
			if embedder.ComputeHash(string(content)) != job.ContentHash {
				return p.store.TransitionJob(gctx, job.ID, types.JobFailed, "content changed since job was created")
			}
			return p.runJob(gctx, job.ID, job.DocumentID, string(content))
		})
	}

	return g.Wait()
}
