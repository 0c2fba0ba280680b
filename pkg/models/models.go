package models

// Severity classifies a review finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidSeverity reports whether s is one of the accepted severity values.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// UnassignedPath is the sentinel path used for batch findings that could not
// be attributed to a specific file.
const UnassignedPath = "(unassigned)"

// FileRecord describes one discovered file. Created by the catalog during
// discovery and immutable afterwards.
type FileRecord struct {
	Path            string `json:"path"`
	ByteSize        int    `json:"byte_size"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Language        string `json:"language"`
}

// Chunk is a line-bounded slice of an oversized file. Line numbers are
// 1-based and inclusive; chunks of a file are contiguous and cover every
// line exactly once.
type Chunk struct {
	Path        string `json:"path"`
	Index       int    `json:"index"`
	TotalChunks int    `json:"total_chunks"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Text        string `json:"text"`
}

// Batch groups small files reviewed together in one request.
type Batch struct {
	ID             int          `json:"id"`
	Files          []FileRecord `json:"files"`
	CombinedTokens int          `json:"combined_tokens"`
}

// UnitKind identifies the shape of a work unit.
type UnitKind string

const (
	UnitSingleFile  UnitKind = "single"
	UnitChunkedFile UnitKind = "chunked"
	UnitBatch       UnitKind = "batch"
)

// WorkUnit is the scheduling granule submitted to the review client: one
// file, the ordered chunks of one oversized file, or one batch of small
// files. File is set for single and chunked units, Batch for batch units.
type WorkUnit struct {
	Kind   UnitKind
	File   *FileRecord
	Chunks []Chunk
	Batch  *Batch
}

// Paths returns the original file paths covered by the unit, in order.
func (u WorkUnit) Paths() []string {
	switch u.Kind {
	case UnitSingleFile:
		return []string{u.File.Path}
	case UnitChunkedFile:
		if len(u.Chunks) == 0 {
			return nil
		}
		return []string{u.Chunks[0].Path}
	case UnitBatch:
		paths := make([]string, 0, len(u.Batch.Files))
		for _, f := range u.Batch.Files {
			paths = append(paths, f.Path)
		}
		return paths
	}
	return nil
}

// RepoOverview holds size-capped excerpts shared read-only by every review
// request. Paths preserves catalog order for deterministic prompts.
type RepoOverview struct {
	Paths       []string
	Excerpts    map[string]string
	TotalTokens int
}

// Empty reports whether the overview carries no excerpts.
func (o *RepoOverview) Empty() bool {
	return o == nil || len(o.Paths) == 0
}

// Finding is a single validated review finding. Line is nil for file-level
// findings. RiskScore is 1-10 for model findings and 0 for synthetic
// failure entries.
type Finding struct {
	Line      *int     `json:"line"`
	Severity  Severity `json:"severity"`
	RiskScore int      `json:"risk_score"`
	Message   string   `json:"message"`
}

// FileResult is the per-file section of the final report.
type FileResult struct {
	File    string    `json:"file"`
	Reviews []Finding `json:"reviews"`
}

// Report is the top-level output structure.
type Report struct {
	TotalFiles      int          `json:"total_files"`
	FilesWithIssues int          `json:"files_with_issues"`
	Results         []FileResult `json:"results"`
}
