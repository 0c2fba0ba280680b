package plan

import (
	"fmt"
	"path"

	"github.com/seanblong/localreview/pkg/models"
)

// PackingViolationError indicates a formed batch broke a packing bound. It
// signals a logic bug, never bad input, and aborts the run.
type PackingViolationError struct {
	BatchID int
	Reason  string
}

func (e *PackingViolationError) Error() string {
	return fmt.Sprintf("packing constraint violated in batch %d: %s", e.BatchID, e.Reason)
}

// Constraints bound the packer. TokenBudget is the configured fraction of
// the model context length, already resolved to an absolute token count.
type Constraints struct {
	MaxFilesPerBatch int
	TokenBudget      int
}

// Pack groups files into batches with a greedy, directory-grouped fill.
// Files are grouped by parent directory first to keep related files in one
// request, then added in input order until either bound would be exceeded.
// This is deliberately a heuristic, not an optimal bin packer: it is stable,
// deterministic, and constraint-respecting, nothing more. Callers must
// route files at or above TokenBudget elsewhere before packing.
func Pack(files []models.FileRecord, c Constraints) ([]models.Batch, error) {
	for _, f := range files {
		if f.EstimatedTokens >= c.TokenBudget {
			return nil, &PackingViolationError{Reason: fmt.Sprintf(
				"%s (%d tokens) meets or exceeds the per-batch budget %d and must be a single-file unit",
				f.Path, f.EstimatedTokens, c.TokenBudget)}
		}
	}

	// Group by parent directory, preserving first-appearance order.
	var dirOrder []string
	groups := make(map[string][]models.FileRecord)
	for _, f := range files {
		dir := path.Dir(f.Path)
		if _, seen := groups[dir]; !seen {
			dirOrder = append(dirOrder, dir)
		}
		groups[dir] = append(groups[dir], f)
	}

	var batches []models.Batch
	current := models.Batch{ID: 0}

	flush := func() {
		if len(current.Files) == 0 {
			return
		}
		batches = append(batches, current)
		current = models.Batch{ID: len(batches)}
	}

	for _, dir := range dirOrder {
		for _, f := range groups[dir] {
			if len(current.Files) >= c.MaxFilesPerBatch ||
				current.CombinedTokens+f.EstimatedTokens > c.TokenBudget {
				flush()
			}
			current.Files = append(current.Files, f)
			current.CombinedTokens += f.EstimatedTokens
		}
	}
	flush()

	for _, b := range batches {
		if len(b.Files) > c.MaxFilesPerBatch {
			return nil, &PackingViolationError{BatchID: b.ID, Reason: fmt.Sprintf(
				"%d files exceeds max %d", len(b.Files), c.MaxFilesPerBatch)}
		}
		if b.CombinedTokens > c.TokenBudget {
			return nil, &PackingViolationError{BatchID: b.ID, Reason: fmt.Sprintf(
				"%d tokens exceeds budget %d", b.CombinedTokens, c.TokenBudget)}
		}
	}
	return batches, nil
}
