package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seanblong/localreview/pkg/models"
)

// ResponseInvalidError indicates the model's reply failed schema
// validation. It is per-unit and non-fatal: the pipeline records a
// synthetic finding and continues.
type ResponseInvalidError struct {
	Reason string
}

func (e *ResponseInvalidError) Error() string {
	return "invalid review response: " + e.Reason
}

// rawFinding is the JSON structure the model returns for one finding. File
// is only meaningful for batch responses.
type rawFinding struct {
	File      string `json:"file"`
	Line      *int   `json:"line"`
	Severity  string `json:"severity"`
	RiskScore int    `json:"risk_score"`
	Message   string `json:"message"`
}

// reviewDocument is the top-level JSON structure the model returns.
type reviewDocument struct {
	Reviews []rawFinding `json:"reviews"`
	Summary string       `json:"summary"`
}

// parseFindings decodes and validates a model reply. Markdown code fences
// are tolerated; everything else is strict: a missing reviews field, an
// unknown severity, or a risk score outside 1-10 rejects the whole reply.
func parseFindings(content string) ([]rawFinding, error) {
	content = stripFences(content)

	var doc reviewDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, &ResponseInvalidError{Reason: "malformed JSON: " + err.Error()}
	}
	if doc.Reviews == nil {
		return nil, &ResponseInvalidError{Reason: "missing reviews field"}
	}

	for i, r := range doc.Reviews {
		if !models.ValidSeverity(models.Severity(r.Severity)) {
			return nil, &ResponseInvalidError{Reason: fmt.Sprintf(
				"finding %d has unknown severity %q", i, r.Severity)}
		}
		if r.RiskScore < 1 || r.RiskScore > 10 {
			return nil, &ResponseInvalidError{Reason: fmt.Sprintf(
				"finding %d has risk_score %d outside 1-10", i, r.RiskScore)}
		}
		if strings.TrimSpace(r.Message) == "" {
			return nil, &ResponseInvalidError{Reason: fmt.Sprintf(
				"finding %d has an empty message", i)}
		}
	}
	return doc.Reviews, nil
}

// stripFences removes a surrounding markdown code fence, which local models
// frequently add despite instructions.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
