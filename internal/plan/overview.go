package plan

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

// BuildOverview selects an excerpt (first maxLinesPerFile lines) from each
// catalog file in order, stopping before the excerpt that would push the
// total past maxTotalTokens. Files past that point are simply omitted. A
// zero maxTotalTokens disables the overview entirely.
func BuildOverview(records []models.FileRecord, read func(string) (string, error), maxTotalTokens, maxLinesPerFile int) (*models.RepoOverview, error) {
	overview := &models.RepoOverview{Excerpts: make(map[string]string)}
	if maxTotalTokens <= 0 {
		return overview, nil
	}

	for _, rec := range records {
		content, err := read(rec.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", rec.Path).Msg("skipping unreadable file in overview")
			continue
		}

		lines := strings.Split(content, "\n")
		if len(lines) > maxLinesPerFile {
			lines = lines[:maxLinesPerFile]
		}
		excerpt := strings.Join(lines, "\n")

		cost := tokens.Estimate(excerpt)
		if overview.TotalTokens+cost > maxTotalTokens {
			break
		}

		overview.Paths = append(overview.Paths, rec.Path)
		overview.Excerpts[rec.Path] = excerpt
		overview.TotalTokens += cost
	}

	log.Debug().Int("files", len(overview.Paths)).Int("tokens", overview.TotalTokens).
		Msg("repository overview built")
	return overview, nil
}
