package processor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feamando/yarn-retrieval/internal/embedder"
	"github.com/feamando/yarn-retrieval/internal/storage"
	"github.com/feamando/yarn-retrieval/pkg/types"
)

// countingEmbedder wraps a fixed response and counts calls; fail makes
// every call error.
type countingEmbedder struct {
	calls int
	fail  error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	return []float32{1, 0, 0}, nil
}

func (e *countingEmbedder) ModelName() string { return "counting-model" }
func (e *countingEmbedder) Dimension() int    { return 3 }
func (e *countingEmbedder) Close() error      { return nil }

// storeResolver resolves paths through the document mirror, creating a
// document on first sight. Mirrors what the engine wires in production.
type storeResolver struct {
	store storage.Storage
}

func (r *storeResolver) ResolveDocument(ctx context.Context, path string) (int64, error) {
	doc, err := r.store.GetDocumentByPath(ctx, path)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	doc = &types.Document{Title: filepath.Base(path), FilePath: path}
	if err := r.store.SyncDocument(ctx, doc); err != nil {
		return 0, err
	}
	return doc.ID, nil
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessChangeEmbedsAndCompletes(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "document body")
	require.NoError(t, p.ProcessChange(ctx, path))

	doc, err := store.GetDocumentByPath(ctx, path)
	require.NoError(t, err)

	entry, err := store.GetVector(ctx, doc.ID, "counting-model")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, entry.Embedding)

	pending, err := store.PendingJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, emb.calls)
}

func TestProcessChangeSkipsUnchangedContent(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "same content")
	require.NoError(t, p.ProcessChange(ctx, path))
	require.NoError(t, p.ProcessChange(ctx, path))

	assert.Equal(t, 1, emb.calls, "identical content must not be re-embedded")
}

func TestProcessChangeReEmbedsNewContent(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.md", "first version")
	require.NoError(t, p.ProcessChange(ctx, path))

	writeFile(t, dir, "a.md", "second version")
	require.NoError(t, p.ProcessChange(ctx, path))

	assert.Equal(t, 2, emb.calls)
}

func TestProcessChangeRecordsEmbedFailure(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{fail: errors.New("provider unavailable")}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "body")
	require.NoError(t, p.ProcessChange(ctx, path), "embed failure lands on the job, not the caller")

	doc, err := store.GetDocumentByPath(ctx, path)
	require.NoError(t, err)

	_, err = store.GetVector(ctx, doc.ID, "counting-model")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	hash := embedder.ComputeHash("body")
	exists, err := store.JobExistsForContent(ctx, doc.ID, hash)
	require.NoError(t, err)
	assert.False(t, exists, "failed job must not block a retry")
}

func TestFailedJobIsRetriedOnNextChange(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{fail: errors.New("transient")}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "body")
	require.NoError(t, p.ProcessChange(ctx, path))

	emb.fail = nil
	require.NoError(t, p.ProcessChange(ctx, path))

	doc, err := store.GetDocumentByPath(ctx, path)
	require.NoError(t, err)
	_, err = store.GetVector(ctx, doc.ID, "counting-model")
	assert.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}

func TestProcessChangeUnreadableFile(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &countingEmbedder{}, &storeResolver{store: store}, Config{}, testLogger())

	err := p.ProcessChange(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestDeleteRemovesVectors(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &countingEmbedder{}, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "body")
	require.NoError(t, p.ProcessChange(ctx, path))

	doc, err := store.GetDocumentByPath(ctx, path)
	require.NoError(t, err)

	require.NoError(t, p.processDelete(ctx, path))
	_, err = store.GetVector(ctx, doc.ID, "counting-model")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunConsumesEventsUntilStop(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "body")

	events := make(chan types.FileChangeEvent, 1)
	events <- types.FileChangeEvent{Path: path, Kind: types.ChangeModified, ObservedAt: time.Now()}

	p.Start(ctx, events)

	require.Eventually(t, func() bool {
		doc, err := store.GetDocumentByPath(ctx, path)
		if err != nil {
			return false
		}
		_, err = store.GetVector(ctx, doc.ID, "counting-model")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	p.Stop()
}

func TestProcessorRestartsAfterStop(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()
	dir := t.TempDir()

	embedded := func(path string) func() bool {
		return func() bool {
			doc, err := store.GetDocumentByPath(ctx, path)
			if err != nil {
				return false
			}
			_, err = store.GetVector(ctx, doc.ID, "counting-model")
			return err == nil
		}
	}

	first := writeFile(t, dir, "a.md", "first session file")
	events := make(chan types.FileChangeEvent, 1)
	events <- types.FileChangeEvent{Path: first, Kind: types.ChangeModified, ObservedAt: time.Now()}
	p.Start(ctx, events)
	require.Eventually(t, embedded(first), 5*time.Second, 10*time.Millisecond)
	p.Stop()

	// A stopped processor must come back up and consume a new session's
	// events, not exit on the first loop iteration.
	second := writeFile(t, dir, "b.md", "second session file")
	events2 := make(chan types.FileChangeEvent, 1)
	events2 <- types.FileChangeEvent{Path: second, Kind: types.ChangeModified, ObservedAt: time.Now()}
	p.Start(ctx, events2)
	require.Eventually(t, embedded(second), 5*time.Second, 10*time.Millisecond)
	p.Stop()

	assert.Equal(t, 2, emb.calls)
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &countingEmbedder{}, &storeResolver{store: store}, Config{}, testLogger())
	p.Stop()
	p.Stop()
}

func TestOnIndexChangeFiresOnWrites(t *testing.T) {
	store := newTestStore(t)
	changes := 0
	p := New(store, &countingEmbedder{}, &storeResolver{store: store},
		Config{OnIndexChange: func() { changes++ }}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "body")
	require.NoError(t, p.ProcessChange(ctx, path))
	assert.Equal(t, 1, changes, "a stored vector changes retrieval results")

	require.NoError(t, p.processDelete(ctx, path))
	assert.Equal(t, 2, changes, "a removed vector changes retrieval results")
}

func TestOnIndexChangeNotFiredOnEmbedFailure(t *testing.T) {
	store := newTestStore(t)
	changes := 0
	p := New(store, &countingEmbedder{fail: errors.New("down")}, &storeResolver{store: store},
		Config{OnIndexChange: func() { changes++ }}, testLogger())

	path := writeFile(t, t.TempDir(), "a.md", "body")
	require.NoError(t, p.ProcessChange(context.Background(), path))
	assert.Zero(t, changes)
}

func TestProcessPendingDrainsQueue(t *testing.T) {
	store := newTestStore(t)
	emb := &countingEmbedder{}
	p := New(store, emb, &storeResolver{store: store}, Config{CatchUpWorkers: 2}, testLogger())
	ctx := context.Background()

	dir := t.TempDir()
	var docIDs []int64
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		path := writeFile(t, dir, name, "content of "+name)
		doc := &types.Document{Title: name, FilePath: path}
		require.NoError(t, store.SyncDocument(ctx, doc))
		docIDs = append(docIDs, doc.ID)

		hash := embedder.ComputeHash("content of " + name)
		_, err := store.EnqueueJob(ctx, doc.ID, path, hash)
		require.NoError(t, err)
	}

	require.NoError(t, p.ProcessPending(ctx, 0))

	for _, id := range docIDs {
		_, err := store.GetVector(ctx, id, "counting-model")
		assert.NoError(t, err)
	}
	pending, err := store.PendingJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPendingFailsStaleJob(t *testing.T) {
	store := newTestStore(t)
	p := New(store, &countingEmbedder{}, &storeResolver{store: store}, Config{}, testLogger())
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "a.md", "current content")
	doc := &types.Document{Title: "a.md", FilePath: path}
	require.NoError(t, store.SyncDocument(ctx, doc))

	// Job recorded against content that no longer matches the file.
	jobID, err := store.EnqueueJob(ctx, doc.ID, path, embedder.ComputeHash("old content"))
	require.NoError(t, err)

	require.NoError(t, p.ProcessPending(ctx, 0))

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "content changed")
}
