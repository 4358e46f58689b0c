package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// Snippet formatting: a fixed token window around matched terms with
// explicit markers on both sides of each match.
const (
	snippetOpenMark  = "<b>"
	snippetCloseMark = "</b>"
	snippetEllipsis  = "..."
	snippetTokens    = 32
)

// SearchLexical performs BM25 full-text search over the document mirror.
// Results are ordered best match first (ascending rank).
func (s *SQLiteStorage) SearchLexical(ctx context.Context, query string, maxResults int) ([]types.LexicalCandidate, error) {
	return s.searchLexical(ctx, query, maxResults, false)
}

// SearchLexicalWithSnippets is SearchLexical plus a highlighted excerpt
// around the matched terms in each candidate.
func (s *SQLiteStorage) SearchLexicalWithSnippets(ctx context.Context, query string, maxResults int) ([]types.LexicalCandidate, error) {
	return s.searchLexical(ctx, query, maxResults, true)
}

func (s *SQLiteStorage) searchLexical(ctx context.Context, query string, maxResults int, withSnippets bool) ([]types.LexicalCandidate, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		// Empty or whitespace-only query is a valid no-result request.
		return []types.LexicalCandidate{}, nil
	}
	if maxResults <= 0 {
		return []types.LexicalCandidate{}, nil
	}

	columns := `d.id, d.title, d.content, bm25(documents_fts) AS score`
	if withSnippets {
		columns += fmt.Sprintf(", snippet(documents_fts, 1, '%s', '%s', '%s', %d)",
			snippetOpenMark, snippetCloseMark, snippetEllipsis, snippetTokens)
	}

	sqlQuery := `
		SELECT ` + columns + `
		FROM documents_fts
		JOIN documents d ON documents_fts.rowid = d.id
		WHERE documents_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, sanitized, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.LexicalCandidate, 0, maxResults)
	for rows.Next() {
		var c types.LexicalCandidate
		var score float64
		var snippet sql.NullString
		if withSnippets {
			err = rows.Scan(&c.DocumentID, &c.Title, &c.Content, &score, &snippet)
		} else {
			err = rows.Scan(&c.DocumentID, &c.Title, &c.Content, &score)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Rank = bm25ToRank(score)
		if snippet.Valid {
			c.Snippet = snippet.String
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// bm25ToRank maps FTS5 bm25() output onto the rank convention used by the
// rest of the module: non-negative, lower is better. FTS5 assigns better
// matches numerically smaller (more negative) values, so the mapping must
// invert magnitude while preserving order.
func bm25ToRank(score float64) float64 {
	if score >= 0 {
		// bm25() is negative for every matched row; a non-negative value
		// means no usable relevance signal.
		return math.Inf(1)
	}
	return -1 / score
}

// sanitizeFTSQuery turns arbitrary user text into a safe FTS5 match
// expression. Every whitespace-separated token becomes a quoted string, so
// characters and keywords meaningful to the FTS5 query syntax (AND, OR,
// NOT, NEAR, *, parentheses, quotes) are matched literally instead of
// being interpreted.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		escaped := strings.ReplaceAll(field, `"`, `""`)
		terms = append(terms, `"`+escaped+`"`)
	}
	return strings.Join(terms, " ")
}
