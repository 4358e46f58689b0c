// Package storage provides SQLite-based persistence for the retrieval core.
//
// It owns three concerns:
//   - a read-model mirror of the external document store, indexed for
//     full-text search via FTS5 (bm25 ranking, highlighted snippets)
//   - the vector store: one packed little-endian float32 embedding per
//     (document, model) pair, with linear-scan cosine similarity search
//   - the embedding job queue, keyed by (document, content hash) so that
//     reprocessing identical content is idempotent
//
// Two build configurations are supported, selected by build tag:
//
// Pure Go (default):
//
//	CGO_ENABLED=0 go build ./...
//
// uses modernc.org/sqlite and requires no C compiler.
//
// CGO (sqlite_cgo tag):
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5" ./...
//
// uses github.com/mattn/go-sqlite3, which is faster for FTS5-heavy
// workloads.
//
// The connection is opened in WAL mode with a single writer; retrieval
// queries and background embedding upserts may run concurrently and
// serialize at the pool.
package storage
