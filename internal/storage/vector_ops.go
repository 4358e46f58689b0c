package storage

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// componentWidth is the serialized size of one embedding component.
const componentWidth = 4

// encodeEmbedding converts a float32 slice to a little-endian byte blob.
func encodeEmbedding(vector []float32) []byte {
	blob := make([]byte, len(vector)*componentWidth)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*componentWidth:], math.Float32bits(v))
	}
	return blob
}

// decodeEmbedding converts a byte blob back to a float32 slice. A blob
// whose length is not a multiple of the component width is corrupt data,
// never silently truncated.
func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%componentWidth != 0 {
		return nil, ErrCorruptEmbedding
	}
	vector := make([]float32, len(blob)/componentWidth)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*componentWidth:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Vectors of different lengths cannot be compared and yield
// ErrDimensionMismatch. If either vector has zero magnitude the result is
// 0; this never divides by zero.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// rankBySimilarity scores entries against the query embedding, filters by
// threshold, sorts descending, and truncates to limit.
func rankBySimilarity(entries []types.VectorEntry, query []float32, limit int, threshold float64) []SimilarityMatch {
	matches := make([]SimilarityMatch, 0, len(entries))
	for _, entry := range entries {
		sim, err := CosineSimilarity(query, entry.Embedding)
		if err != nil {
			continue // dimension mismatch, skip
		}
		if sim < threshold {
			continue
		}
		matches = append(matches, SimilarityMatch{Entry: entry, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// EncodeEmbedding is an exported helper for testing
func EncodeEmbedding(vector []float32) []byte {
	return encodeEmbedding(vector)
}

// DecodeEmbedding is an exported helper for testing
func DecodeEmbedding(blob []byte) ([]float32, error) {
	return decodeEmbedding(blob)
}
