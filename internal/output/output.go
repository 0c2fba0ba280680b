// Package output writes the final review report.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/seanblong/localreview/pkg/models"
)

// WriteJSON writes the report to path as indented JSON.
func WriteJSON(path string, report *models.Report) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Summary renders a short human-readable wrap-up for the terminal.
func Summary(report *models.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reviewed %d files, %d with findings\n", report.TotalFiles, report.FilesWithIssues)
	for _, r := range report.Results {
		if len(r.Reviews) == 0 {
			continue
		}
		high := 0
		for _, f := range r.Reviews {
			if f.RiskScore > high {
				high = f.RiskScore
			}
		}
		fmt.Fprintf(&sb, "  %s: %d findings (max risk %d)\n", r.File, len(r.Reviews), high)
	}
	return sb.String()
}
