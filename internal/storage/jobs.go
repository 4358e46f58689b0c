package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// EnqueueJob creates or refreshes the job record for a (document, content
// hash) pair. Re-enqueuing identical content updates the path and resets
// the status to pending instead of creating a duplicate row; this is the
// explicit retry path for a previously failed job.
func (s *SQLiteStorage) EnqueueJob(ctx context.Context, documentID int64, filePath, contentHash string) (int64, error) {
	query := `
		INSERT INTO embedding_jobs (document_id, file_path, content_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, content_hash) DO UPDATE SET
			file_path = excluded.file_path,
			status = excluded.status,
			error_message = NULL,
			completed_at = NULL,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, query, documentID, filePath, contentHash, types.JobPending, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job for document %d: %w", documentID, err)
	}
	return id, nil
}

// TransitionJob moves a job to a new status. Moving to a terminal status
// (completed or failed) stamps completed_at; any other transition leaves
// it unset.
func (s *SQLiteStorage) TransitionJob(ctx context.Context, jobID int64, status types.JobStatus, errorMessage string) error {
	now := time.Now()
	var completedAt interface{}
	if status.IsTerminal() {
		completedAt = now
	}

	var errMsg interface{}
	if errorMessage != "" {
		errMsg = errorMessage
	}

	query := `
		UPDATE embedding_jobs
		SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to transition job %d to %s: %w", jobID, status, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) GetJob(ctx context.Context, jobID int64) (*types.EmbeddingJob, error) {
	query := `
		SELECT id, document_id, file_path, content_hash, status, error_message,
		       created_at, updated_at, completed_at
		FROM embedding_jobs
		WHERE id = ?
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PendingJobs returns pending jobs ordered oldest first, so long-waiting
// work is processed fairly. A non-positive limit returns all pending jobs.
func (s *SQLiteStorage) PendingJobs(ctx context.Context, limit int) ([]types.EmbeddingJob, error) {
	query := `
		SELECT id, document_id, file_path, content_hash, status, error_message,
		       created_at, updated_at, completed_at
		FROM embedding_jobs
		WHERE status = ?
		ORDER BY created_at ASC
	`
	args := []interface{}{types.JobPending}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]types.EmbeddingJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// JobExistsForContent is the idempotency guard consulted before any
// embedding work: it reports whether a non-failed job already covers this
// exact content. Failed jobs do not count, so re-touching the file retries
// them.
func (s *SQLiteStorage) JobExistsForContent(ctx context.Context, documentID int64, contentHash string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM embedding_jobs
			WHERE document_id = ? AND content_hash = ? AND status != ?
		)
	`
	var exists bool
	err := s.db.QueryRowContext(ctx, query, documentID, contentHash, types.JobFailed).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CleanupJobs deletes terminal (completed or failed) jobs older than the
// given age and returns the number removed. This is the only operation
// that deletes job rows.
func (s *SQLiteStorage) CleanupJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `
		DELETE FROM embedding_jobs
		WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`
	result, err := s.db.ExecContext(ctx, query, types.JobCompleted, types.JobFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*types.EmbeddingJob, error) {
	var job types.EmbeddingJob
	var errMsg sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.DocumentID, &job.FilePath, &job.ContentHash,
		&job.Status, &errMsg, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
