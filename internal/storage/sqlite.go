package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrCorruptEmbedding is returned when a stored embedding BLOB has an
	// invalid length and cannot be decoded
	ErrCorruptEmbedding = errors.New("corrupt embedding blob")
	// ErrDimensionMismatch is returned when two vectors of different
	// lengths are compared
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also serializes access
	// from the retrieval path and the background embedding pipeline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Document operations

// SyncDocument inserts or replaces the read-model row for a document.
// The FTS index follows via triggers.
func (s *SQLiteStorage) SyncDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == 0 {
		query := `
			INSERT INTO documents (title, content, file_path, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`
		now := time.Now()
		result, err := s.db.ExecContext(ctx, query, doc.Title, doc.Content, doc.FilePath, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	}

	query := `
		INSERT INTO documents (id, title, content, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			file_path = excluded.file_path,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Title, doc.Content, doc.FilePath, now, now); err != nil {
		return fmt.Errorf("failed to sync document %d: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*types.Document, error) {
	query := `SELECT id, title, content, COALESCE(file_path, '') FROM documents WHERE id = ?`
	var doc types.Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.FilePath)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStorage) GetDocumentByPath(ctx context.Context, filePath string) (*types.Document, error) {
	query := `SELECT id, title, content, COALESCE(file_path, '') FROM documents WHERE file_path = ?`
	var doc types.Document
	err := s.db.QueryRowContext(ctx, query, filePath).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.FilePath)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// RemoveDocument deletes the read-model row and, via cascade, any stored
// vectors for the document.
func (s *SQLiteStorage) RemoveDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// Vector store operations

// UpsertVector inserts or replaces the single embedding for a
// (document, model) pair and returns the entry id.
func (s *SQLiteStorage) UpsertVector(ctx context.Context, documentID int64, modelName string, embedding []float32) (int64, error) {
	blob := encodeEmbedding(embedding)
	query := `
		INSERT INTO vectors (document_id, model_name, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, model_name) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, query, documentID, modelName, blob, len(embedding), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert vector for document %d: %w", documentID, err)
	}
	return id, nil
}

func (s *SQLiteStorage) GetVector(ctx context.Context, documentID int64, modelName string) (*types.VectorEntry, error) {
	query := `
		SELECT id, document_id, model_name, embedding, dimension, created_at, updated_at
		FROM vectors
		WHERE document_id = ? AND model_name = ?
	`
	var entry types.VectorEntry
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, documentID, modelName).Scan(
		&entry.ID, &entry.DocumentID, &entry.ModelName, &blob,
		&entry.Dimension, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.Embedding, err = decodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("vector %d: %w", entry.ID, err)
	}
	return &entry, nil
}

func (s *SQLiteStorage) GetAllVectors(ctx context.Context, modelName string) ([]types.VectorEntry, error) {
	query := `
		SELECT id, document_id, model_name, embedding, dimension, created_at, updated_at
		FROM vectors
		WHERE model_name = ?
		ORDER BY document_id
	`
	rows, err := s.db.QueryContext(ctx, query, modelName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]types.VectorEntry, 0)
	for rows.Next() {
		var entry types.VectorEntry
		var blob []byte
		err := rows.Scan(
			&entry.ID, &entry.DocumentID, &entry.ModelName, &blob,
			&entry.Dimension, &entry.CreatedAt, &entry.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteVectors removes all stored embeddings for a document, across models.
func (s *SQLiteStorage) DeleteVectors(ctx context.Context, documentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE document_id = ?`, documentID)
	return err
}

// FindSimilar scans all entries for the given model, keeps those with
// cosine similarity >= threshold, and returns the top entries sorted by
// descending similarity. Entries whose dimension differs from the query
// embedding are skipped.
func (s *SQLiteStorage) FindSimilar(ctx context.Context, queryEmbedding []float32, modelName string, limit int, threshold float64) ([]SimilarityMatch, error) {
	entries, err := s.GetAllVectors(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(entries, queryEmbedding, limit, threshold), nil
}
