package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero max candidates", func(c *Config) { c.MaxCandidates = 0 }, "max_candidates"},
		{"zero max results", func(c *Config) { c.MaxResults = 0 }, "max_results"},
		{"results exceed candidates", func(c *Config) { c.MaxResults = c.MaxCandidates + 1 }, "max_results"},
		{"negative threshold", func(c *Config) { c.SimilarityThreshold = -0.1 }, "similarity_threshold"},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.1 }, "similarity_threshold"},
		{"negative lexical weight", func(c *Config) { c.LexicalWeight = -0.2 }, "lexical_weight"},
		{"lexical weight above one", func(c *Config) { c.LexicalWeight = 1.2 }, "lexical_weight"},
		{"weights do not sum to one", func(c *Config) { c.LexicalWeight = 0.5; c.VectorWeight = 0.6 }, "sum to 1"},
		{"zero context length", func(c *Config) { c.MaxContextLength = 0 }, "max_context_length"},
		{"context length above limit", func(c *Config) { c.MaxContextLength = MaxContextLengthLimit + 1 }, "max_context_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigWeightTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LexicalWeight = 0.3005
	cfg.VectorWeight = 0.7
	assert.NoError(t, cfg.Validate(), "rounding inside the tolerance is accepted")
}
