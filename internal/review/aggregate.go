package review

import (
	"github.com/seanblong/localreview/pkg/models"
)

// Aggregate folds per-path findings into the final report. Every discovered
// file appears in the result, in discovery order, with an empty review list
// when nothing was found; unattributable batch findings come last under the
// sentinel path.
func Aggregate(records []models.FileRecord, results map[string][]models.Finding) *models.Report {
	report := &models.Report{
		TotalFiles: len(records),
		Results:    make([]models.FileResult, 0, len(records)),
	}

	for _, rec := range records {
		findings := results[rec.Path]
		if findings == nil {
			findings = []models.Finding{}
		}
		if len(findings) > 0 {
			report.FilesWithIssues++
		}
		report.Results = append(report.Results, models.FileResult{
			File:    rec.Path,
			Reviews: findings,
		})
	}

	if unassigned := results[models.UnassignedPath]; len(unassigned) > 0 {
		report.FilesWithIssues++
		report.Results = append(report.Results, models.FileResult{
			File:    models.UnassignedPath,
			Reviews: unassigned,
		})
	}

	return report
}
