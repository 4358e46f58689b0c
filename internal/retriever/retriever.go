package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/feamando/yarn-retrieval/internal/embedder"
	"github.com/feamando/yarn-retrieval/internal/storage"
	"github.com/feamando/yarn-retrieval/pkg/types"
)

// DefaultCacheSize is the number of assembled responses kept in the
// retrieval cache.
const DefaultCacheSize = 256

// Retriever runs the hybrid ranking pipeline: a lexical BM25 pre-filter
// narrows the corpus, stored vectors re-rank the survivors by cosine
// similarity against the query embedding, and the fused ranking is
// assembled into a length-bounded context block.
type Retriever struct {
	store    storage.Storage
	embedder embedder.Embedder
	log      *slog.Logger
	cache    *lru.Cache[string, *types.ContextAssembly]
}

// New creates a Retriever with a response cache of the given size.
// A non-positive size disables caching.
func New(store storage.Storage, emb embedder.Embedder, cacheSize int, log *slog.Logger) (*Retriever, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Retriever{
		store:    store,
		embedder: emb,
		log:      log,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, *types.ContextAssembly](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create retrieval cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// RetrieveContext answers one retrieval request. An empty or
// whitespace-only query returns an empty assembly without touching the
// index. Embedding-model failures abort the request; a missing or
// mismatched stored vector only degrades that candidate to lexical-only
// scoring.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, cfg Config) (*types.ContextAssembly, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return emptyAssembly(), nil
	}

	key := cacheKey(query, cfg)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			r.log.Debug("retrieval cache hit", "query_len", len(query))
			return copyAssembly(cached), nil
		}
	}

	candidates, err := r.store.SearchLexicalWithSnippets(ctx, query, cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	if len(candidates) == 0 {
		return emptyAssembly(), nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	results := r.score(ctx, candidates, queryEmbedding, cfg)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore < results[j].CombinedScore
	})
	if len(results) > cfg.MaxResults {
		results = results[:cfg.MaxResults]
	}

	assembly := assembleContext(results, cfg.MaxContextLength)

	if r.cache != nil {
		r.cache.Add(key, copyAssembly(assembly))
	}
	return assembly, nil
}

// score fuses the lexical rank of each candidate with the cosine
// similarity of its stored vector, when one exists for the active model.
func (r *Retriever) score(ctx context.Context, candidates []types.LexicalCandidate, queryEmbedding []float32, cfg Config) []types.HybridResult {
	modelName := r.embedder.ModelName()
	results := make([]types.HybridResult, 0, len(candidates))

	for _, cand := range candidates {
		res := types.HybridResult{
			DocumentID:    cand.DocumentID,
			Title:         cand.Title,
			Content:       cand.Content,
			LexicalRank:   cand.Rank,
			CombinedScore: cand.Rank,
			Snippet:       cand.Snippet,
		}

		entry, err := r.store.GetVector(ctx, cand.DocumentID, modelName)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Not embedded yet: lexical rank stands.
		case err != nil:
			r.log.Warn("vector lookup failed, scoring lexically", "document_id", cand.DocumentID, "error", err)
		default:
			similarity, simErr := storage.CosineSimilarity(queryEmbedding, entry.Embedding)
			if simErr != nil {
				r.log.Warn("stored vector unusable, scoring lexically", "document_id", cand.DocumentID, "error", simErr)
				break
			}
			if similarity >= cfg.SimilarityThreshold {
				res.VectorSimilarity = &similarity
				res.CombinedScore = fuse(cand.Rank, similarity, cfg)
			}
		}

		results = append(results, res)
	}
	return results
}

// fuse blends a lexical rank and a cosine similarity into one combined
// score. Both components are mapped to penalties in [0, 1) where lower is
// better, then mixed by the configured weights.
func fuse(rank, similarity float64, cfg Config) float64 {
	normalizedRank := 1 / (1 + rank)
	return cfg.LexicalWeight*(1-normalizedRank) + cfg.VectorWeight*(1-similarity)
}

// InvalidateCache drops all cached responses. Called whenever a document
// sync or removal could make cached rankings stale.
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// cacheKey derives a stable key from the query and every config field
// that affects the response.
func cacheKey(query string, cfg Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%g|%g|%g|%d",
		query, cfg.MaxCandidates, cfg.MaxResults,
		cfg.SimilarityThreshold, cfg.LexicalWeight, cfg.VectorWeight,
		cfg.MaxContextLength)
	return hex.EncodeToString(h.Sum(nil))
}

func emptyAssembly() *types.ContextAssembly {
	return &types.ContextAssembly{
		ContextText:     "",
		SourceDocuments: []types.HybridResult{},
	}
}

// copyAssembly deep-copies an assembly so cache entries are never aliased
// by callers.
func copyAssembly(a *types.ContextAssembly) *types.ContextAssembly {
	out := &types.ContextAssembly{
		ContextText: a.ContextText,
		TotalLength: a.TotalLength,
		Truncated:   a.Truncated,
	}
	out.SourceDocuments = make([]types.HybridResult, len(a.SourceDocuments))
	for i, doc := range a.SourceDocuments {
		out.SourceDocuments[i] = doc
		if doc.VectorSimilarity != nil {
			sim := *doc.VectorSimilarity
			out.SourceDocuments[i].VectorSimilarity = &sim
		}
	}
	return out
}
