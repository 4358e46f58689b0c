package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder is the single capability the retrieval core needs from an
// embedding model: turn text into a vector. Implementations are injected
// at construction; nothing in this module reaches for a global.
type Embedder interface {
	// Embed computes an embedding vector for the given text. It may be
	// slow and must honor context cancellation.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName identifies the model; vector entries are keyed by it.
	ModelName() string

	// Dimension returns the embedding dimension produced by this model.
	Dimension() int

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fall back to default
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached embedding. Returning a copy prevents
// caller mutations from corrupting cached values.
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores an embedding with automatic LRU eviction.
func (c *Cache) Set(hash string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 hash of text, hex-encoded. The same
// function keys the embedding cache and the job queue's content hashes.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
