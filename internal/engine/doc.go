// Package engine composes storage, embedding, watching, and retrieval
// into one lifecycle for the command-line entrypoints.
package engine
