package plan

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/localreview/pkg/models"
)

// Limits carries the resolved budgets used when routing files to units.
type Limits struct {
	// BatchThreshold is the token size at or above which a file is too
	// large to share a batch with others.
	BatchThreshold int
	// MaxFilesPerBatch caps the file count of each batch.
	MaxFilesPerBatch int
	// BatchTokenBudget is the combined-token cap per batch (a fraction of
	// the model context length).
	BatchTokenBudget int
	// ChunkTokenBudget is the per-chunk cap; files estimated above it are
	// split into chunks.
	ChunkTokenBudget int
}

// BuildUnits routes every catalog record to exactly one work unit: files
// above the chunk budget are split, files too large to batch become
// single-file units, and the rest are packed into batches. Units are
// returned ordered by the discovery index of their first file.
func BuildUnits(records []models.FileRecord, read func(string) (string, error), lim Limits) ([]models.WorkUnit, error) {
	type indexed struct {
		idx  int
		unit models.WorkUnit
	}

	var units []indexed
	var batchable []models.FileRecord
	batchIdx := make(map[string]int) // path -> discovery index

	for i, rec := range records {
		switch {
		case rec.EstimatedTokens > lim.ChunkTokenBudget:
			content, err := read(rec.Path)
			if err != nil {
				return nil, fmt.Errorf("reading %s for split: %w", rec.Path, err)
			}
			chunks, err := Split(rec, content, lim.ChunkTokenBudget)
			if err != nil {
				return nil, err
			}
			rec := rec
			units = append(units, indexed{idx: i, unit: models.WorkUnit{
				Kind:   models.UnitChunkedFile,
				File:   &rec,
				Chunks: chunks,
			}})
			log.Debug().Str("path", rec.Path).Int("chunks", len(chunks)).
				Msg("file routed to chunked review")

		case rec.EstimatedTokens >= lim.BatchThreshold || rec.EstimatedTokens >= lim.BatchTokenBudget:
			rec := rec
			units = append(units, indexed{idx: i, unit: models.WorkUnit{
				Kind: models.UnitSingleFile,
				File: &rec,
			}})

		default:
			batchable = append(batchable, rec)
			batchIdx[rec.Path] = i
		}
	}

	batches, err := Pack(batchable, Constraints{
		MaxFilesPerBatch: lim.MaxFilesPerBatch,
		TokenBudget:      lim.BatchTokenBudget,
	})
	if err != nil {
		return nil, err
	}
	for i := range batches {
		b := batches[i]
		units = append(units, indexed{idx: batchIdx[b.Files[0].Path], unit: models.WorkUnit{
			Kind:  models.UnitBatch,
			Batch: &b,
		}})
	}

	sort.SliceStable(units, func(i, j int) bool { return units[i].idx < units[j].idx })

	out := make([]models.WorkUnit, 0, len(units))
	for _, u := range units {
		out = append(out, u.unit)
	}

	if err := verifyCoverage(records, out); err != nil {
		return nil, err
	}
	return out, nil
}

// verifyCoverage confirms every record landed in exactly one unit.
func verifyCoverage(records []models.FileRecord, units []models.WorkUnit) error {
	seen := make(map[string]int, len(records))
	for _, u := range units {
		for _, p := range u.Paths() {
			seen[p]++
		}
	}
	for _, rec := range records {
		switch seen[rec.Path] {
		case 1:
		case 0:
			return &PackingViolationError{Reason: fmt.Sprintf("%s missing from all units", rec.Path)}
		default:
			return &PackingViolationError{Reason: fmt.Sprintf("%s appears in %d units", rec.Path, seen[rec.Path])}
		}
	}
	return nil
}
