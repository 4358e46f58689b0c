package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv.
const (
	EnvProvider     = "YARN_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. YARN_EMBEDDING_PROVIDER (openai, placeholder)
//  2. OPENAI_API_KEY presence
//
// The placeholder provider is never selected implicitly: it produces
// hash-derived pseudo-embeddings and must be requested by name.
func NewFromEnv() (Embedder, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	apiKey := os.Getenv(EnvOpenAIAPIKey)

	cache := NewCache(10000)

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, cache)
	case ProviderPlaceholder:
		return NewPlaceholderProvider(cache), nil
	case "":
		if apiKey != "" {
			return NewOpenAIProvider(apiKey, cache)
		}
		return nil, fmt.Errorf("%w: set %s or %s", ErrNoProviderEnabled, EnvOpenAIAPIKey, EnvProvider)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderPlaceholder:
		return NewPlaceholderProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
