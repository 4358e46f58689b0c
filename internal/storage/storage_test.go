package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncDocumentAssignsID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	doc := &types.Document{Title: "Notes", Content: "some notes", FilePath: "/tmp/notes.md"}
	require.NoError(t, s.SyncDocument(ctx, doc))
	assert.NotZero(t, doc.ID)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)
	assert.Equal(t, "some notes", got.Content)
	assert.Equal(t, "/tmp/notes.md", got.FilePath)
}

func TestSyncDocumentUpdatesExisting(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	doc := &types.Document{Title: "Draft", Content: "v1"}
	require.NoError(t, s.SyncDocument(ctx, doc))

	doc.Content = "v2"
	require.NoError(t, s.SyncDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)

	// Update must not create a second row.
	results, err := s.SearchLexical(ctx, "v2", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestGetDocumentByPath(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	doc := &types.Document{Title: "A", Content: "alpha", FilePath: "/docs/a.md"}
	require.NoError(t, s.SyncDocument(ctx, doc))

	got, err := s.GetDocumentByPath(ctx, "/docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = s.GetDocumentByPath(ctx, "/docs/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveDocumentCascadesToVectors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	doc := &types.Document{Title: "A", Content: "alpha"}
	require.NoError(t, s.SyncDocument(ctx, doc))

	_, err := s.UpsertVector(ctx, doc.ID, "model-x", []float32{0.1, 0.2, 0.3})
	require.NoError(t, err)

	require.NoError(t, s.RemoveDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetVector(ctx, doc.ID, "model-x")
	assert.ErrorIs(t, err, ErrNotFound)
}
