package qa

import (
	"fmt"
	"strings"

	"github.com/avrahamavi/docuquery/internal/store"
)

const contextDelimiter = "========================================"

// AssembleContext formats ranked chunks into a single prompt context,
// preserving retrieval order. When the assembled text would exceed the
// character budget, the lowest-ranked chunks are dropped first. At least the
// top chunk is always included.
func AssembleContext(matches []store.SearchResult, charBudget int) string {
	if len(matches) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("Section: %s\n\nContent: %s", m.Chunk.Heading, m.Chunk.Content))
	}

	if charBudget > 0 {
		total := 0
		kept := 0
		for _, b := range blocks {
			total += len(b) + len(contextDelimiter) + 4
			if kept > 0 && total > charBudget {
				break
			}
			kept++
		}
		blocks = blocks[:kept]
	}

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(contextDelimiter)
	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(blocks, "\n\n"+contextDelimiter+"\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(contextDelimiter)
	sb.WriteString("\n\n")
	return sb.String()
}
