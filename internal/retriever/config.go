package retriever

import "fmt"

// Defaults for Config fields.
const (
	DefaultMaxCandidates       = 50
	DefaultMaxResults          = 10
	DefaultSimilarityThreshold = 0.3
	DefaultLexicalWeight       = 0.3
	DefaultVectorWeight        = 0.7
	DefaultMaxContextLength    = 8000

	// MaxContextLengthLimit is the hard ceiling on the assembled context
	// budget.
	MaxContextLengthLimit = 50000

	// weightSumTolerance absorbs float rounding when checking that the two
	// fusion weights sum to one.
	weightSumTolerance = 1e-3
)

// Config controls one retrieval request. The zero value is not valid; use
// DefaultConfig and override fields as needed.
type Config struct {
	// MaxCandidates caps the lexical pre-filter result set.
	MaxCandidates int

	// MaxResults caps the final ranked result set.
	MaxResults int

	// SimilarityThreshold is the minimum cosine similarity for a vector
	// match to influence ranking.
	SimilarityThreshold float64

	// LexicalWeight and VectorWeight blend the two signals and must sum
	// to one.
	LexicalWeight float64
	VectorWeight  float64

	// MaxContextLength is the character budget for the assembled context.
	MaxContextLength int
}

// DefaultConfig returns the standard retrieval tuning.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:       DefaultMaxCandidates,
		MaxResults:          DefaultMaxResults,
		SimilarityThreshold: DefaultSimilarityThreshold,
		LexicalWeight:       DefaultLexicalWeight,
		VectorWeight:        DefaultVectorWeight,
		MaxContextLength:    DefaultMaxContextLength,
	}
}

// Validate rejects configurations that would produce nonsensical rankings
// or unbounded context. Each error names the offending field.
func (c Config) Validate() error {
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.MaxResults)
	}
	if c.MaxResults > c.MaxCandidates {
		return fmt.Errorf("max_results (%d) cannot exceed max_candidates (%d)", c.MaxResults, c.MaxCandidates)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", c.SimilarityThreshold)
	}
	if c.LexicalWeight < 0 || c.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be in [0, 1], got %g", c.LexicalWeight)
	}
	if c.VectorWeight < 0 || c.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be in [0, 1], got %g", c.VectorWeight)
	}
	if sum := c.LexicalWeight + c.VectorWeight; sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return fmt.Errorf("lexical_weight and vector_weight must sum to 1, got %g", sum)
	}
	if c.MaxContextLength <= 0 || c.MaxContextLength > MaxContextLengthLimit {
		return fmt.Errorf("max_context_length must be in (0, %d], got %d", MaxContextLengthLimit, c.MaxContextLength)
	}
	return nil
}
