// Package embedder defines the embedding-model capability consumed by the
// retrieval core and its background pipeline, plus two implementations:
// an OpenAI HTTP provider with retry and LRU caching, and a deterministic
// placeholder used for tests and offline development.
package embedder
