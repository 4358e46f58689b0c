// Package processor is the background embedding pipeline: it consumes
// debounced file change events, tracks work in an idempotent job queue,
// and keeps the vector store in step with document content.
package processor
