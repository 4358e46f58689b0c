package storage

import (
	"context"
	"time"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// Storage defines the persistence surface of the retrieval core: the
// document read-model with its full-text index, the vector store, and the
// embedding job queue. Implementations must be safe for concurrent use by
// the retrieval path and the background embedding pipeline.
type Storage interface {
	// Document mirror. SyncDocument and RemoveDocument are the hooks the
	// document collaborator calls on create/update/delete; retrieval only
	// reads and assumes freshness.
	SyncDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id int64) (*types.Document, error)
	GetDocumentByPath(ctx context.Context, filePath string) (*types.Document, error)
	RemoveDocument(ctx context.Context, id int64) error

	// Lexical index. Results are ordered by ascending BM25 rank (best
	// first). An empty or whitespace-only query yields an empty slice.
	SearchLexical(ctx context.Context, query string, maxResults int) ([]types.LexicalCandidate, error)
	SearchLexicalWithSnippets(ctx context.Context, query string, maxResults int) ([]types.LexicalCandidate, error)

	// Vector store. At most one entry exists per (document, model) pair.
	UpsertVector(ctx context.Context, documentID int64, modelName string, embedding []float32) (int64, error)
	GetVector(ctx context.Context, documentID int64, modelName string) (*types.VectorEntry, error)
	GetAllVectors(ctx context.Context, modelName string) ([]types.VectorEntry, error)
	DeleteVectors(ctx context.Context, documentID int64) error
	FindSimilar(ctx context.Context, queryEmbedding []float32, modelName string, limit int, threshold float64) ([]SimilarityMatch, error)

	// Embedding job queue, keyed by (document, content hash).
	EnqueueJob(ctx context.Context, documentID int64, filePath, contentHash string) (int64, error)
	TransitionJob(ctx context.Context, jobID int64, status types.JobStatus, errorMessage string) error
	GetJob(ctx context.Context, jobID int64) (*types.EmbeddingJob, error)
	PendingJobs(ctx context.Context, limit int) ([]types.EmbeddingJob, error)
	JobExistsForContent(ctx context.Context, documentID int64, contentHash string) (bool, error)
	CleanupJobs(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}

// SimilarityMatch pairs a stored vector entry with its cosine similarity
// against a query embedding.
type SimilarityMatch struct {
	Entry      types.VectorEntry
	Similarity float64
}
