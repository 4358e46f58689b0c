package types

import "time"

// Document is the external document record consumed by retrieval.
// The retrieval core mirrors (id, title, content) for indexing but never
// owns or mutates the source of truth.
type Document struct {
	ID       int64
	Title    string
	Content  string
	FilePath string
}

// LexicalCandidate is a full-text search hit produced fresh per query.
// Rank follows the BM25 convention used throughout this module: lower is
// better, always >= 0.
type LexicalCandidate struct {
	DocumentID int64
	Title      string
	Content    string
	Rank       float64
	Snippet    string // highlighted excerpt, empty when not requested
}

// VectorEntry is one stored embedding for a (document, model) pair.
type VectorEntry struct {
	ID         int64
	DocumentID int64
	Embedding  []float32
	ModelName  string
	Dimension  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobStatus is the lifecycle state of an embedding job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// EmbeddingJob is the durable record that makes embedding computation
// idempotent: at most one job exists per (document, content hash).
type EmbeddingJob struct {
	ID           int64
	DocumentID   int64
	FilePath     string
	ContentHash  string
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// ChangeKind classifies a coalesced file change.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChangeEvent is a debounced, coalesced filesystem change. It is
// transient and consumed exactly once by the embedding processor.
type FileChangeEvent struct {
	Path       string
	Kind       ChangeKind
	ObservedAt time.Time
}

// HybridResult is one ranked retrieval result. CombinedScore follows the
// lexical convention: lower means more relevant. VectorSimilarity is nil
// when the candidate was scored lexically only.
type HybridResult struct {
	DocumentID       int64
	Title            string
	Content          string
	LexicalRank      float64
	VectorSimilarity *float64
	CombinedScore    float64
	Snippet          string
}

// ContextAssembly is the result of one retrieval call: a length-bounded
// context string plus the ranked results that produced it.
type ContextAssembly struct {
	ContextText     string
	SourceDocuments []HybridResult
	TotalLength     int
	Truncated       bool
}
