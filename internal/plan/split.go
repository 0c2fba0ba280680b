// Package plan turns a discovered catalog into review work units: it splits
// oversized files into line-bounded chunks, packs small files into batches
// under token and count limits, and builds the shared repository overview.
package plan

import (
	"fmt"
	"strings"

	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

// SplitError indicates the splitter produced chunks that do not cover the
// file exactly once. It should never occur; it is a defensive fatal.
type SplitError struct {
	Path   string
	Reason string
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split failed for %s: %s", e.Path, e.Reason)
}

// Split divides content into ordered chunks, each within maxTokensPerChunk.
// Splits happen only at line boundaries and every line is covered exactly
// once, so joining the chunk texts with newlines reconstructs the file. A
// single line whose own estimate exceeds the budget still becomes its own
// chunk; content is never truncated.
func Split(rec models.FileRecord, content string, maxTokensPerChunk int) ([]models.Chunk, error) {
	lines := strings.Split(content, "\n")

	var chunks []models.Chunk
	var current []string
	currentStart := 1
	currentTokens := 0

	flush := func(endLine int) {
		chunks = append(chunks, models.Chunk{
			Path:      rec.Path,
			Index:     len(chunks),
			StartLine: currentStart,
			EndLine:   endLine,
			Text:      strings.Join(current, "\n"),
		})
		current = nil
		currentStart = endLine + 1
		currentTokens = 0
	}

	for i, line := range lines {
		lineTokens := tokens.Estimate(line)
		if len(current) > 0 && currentTokens+lineTokens > maxTokensPerChunk {
			flush(i) // lines are 1-based; i is the previous line's number
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	if len(current) > 0 {
		flush(len(lines))
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}

	if err := verifyChunks(rec.Path, chunks, len(lines)); err != nil {
		return nil, err
	}
	return chunks, nil
}

// verifyChunks checks the contiguity and coverage invariants.
func verifyChunks(path string, chunks []models.Chunk, totalLines int) error {
	if len(chunks) == 0 {
		return &SplitError{Path: path, Reason: "no chunks produced"}
	}
	if chunks[0].StartLine != 1 {
		return &SplitError{Path: path, Reason: "first chunk does not start at line 1"}
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartLine != chunks[i-1].EndLine+1 {
			return &SplitError{Path: path, Reason: fmt.Sprintf(
				"gap between chunk %d and %d", i-1, i)}
		}
	}
	if last := chunks[len(chunks)-1].EndLine; last != totalLines {
		return &SplitError{Path: path, Reason: fmt.Sprintf(
			"last chunk ends at line %d, file has %d", last, totalLines)}
	}
	return nil
}
