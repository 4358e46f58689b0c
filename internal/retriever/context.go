package retriever

import (
	"fmt"
	"strings"

	"github.com/feamando/yarn-retrieval/pkg/types"
)

// Context assembly framing. Blocks are appended whole: a result that does
// not fit inside the remaining budget is dropped and the assembly marked
// truncated.
const (
	contextPreamble  = "Retrieved Context:\n\n"
	contextPostamble = "\nEnd of Context"

	// excerptLength is the fallback excerpt size when a result carries no
	// highlighted snippet.
	excerptLength = 500
)

// assembleContext renders ranked results into the final context string,
// spending at most maxLength characters including the framing. Results
// are consumed in rank order; SourceDocuments lists only those that made
// it into the text.
func assembleContext(results []types.HybridResult, maxLength int) *types.ContextAssembly {
	var sb strings.Builder
	sb.WriteString(contextPreamble)

	budget := maxLength - len(contextPostamble)
	included := make([]types.HybridResult, 0, len(results))
	truncated := false

	for i, res := range results {
		block := formatBlock(i+1, res)
		if sb.Len()+len(block) > budget {
			truncated = true
			break
		}
		sb.WriteString(block)
		included = append(included, res)
	}

	if len(included) < len(results) {
		truncated = true
	}

	if len(included) == 0 {
		return &types.ContextAssembly{
			ContextText:     "",
			SourceDocuments: []types.HybridResult{},
			Truncated:       truncated,
		}
	}

	sb.WriteString(contextPostamble)
	text := sb.String()
	return &types.ContextAssembly{
		ContextText:     text,
		SourceDocuments: included,
		TotalLength:     len(text),
		Truncated:       truncated,
	}
}

// formatBlock renders one result as a numbered block. The highlighted
// snippet is preferred; without one the content is excerpted.
func formatBlock(n int, res types.HybridResult) string {
	body := res.Snippet
	if body == "" {
		body = excerpt(res.Content, excerptLength)
	}
	return fmt.Sprintf("[%d] %s\n%s\n\n", n, res.Title, body)
}

// excerpt truncates content to at most limit characters, cutting on a
// rune boundary.
func excerpt(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !isRuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
