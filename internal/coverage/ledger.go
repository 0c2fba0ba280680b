// Package coverage tracks which file segments a review run actually
// covered. Each completed unit appends a JSONL record to a per-repo ledger;
// reports compare registered segments against covered ones so missed code is
// visible across runs on the same commit.
package coverage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ledgerFilename     = "ledger.jsonl"
	reportJSONFilename = "report.json"
	reportMDFilename   = "report.md"
	badgeFilename      = "badge.json"
)

// Target identifies one reviewable segment: a whole file or one chunk.
type Target struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	ChunkID   string `json:"chunk_id"`
}

// Key returns the identity used to match targets across runs.
func (t Target) Key() string {
	return fmt.Sprintf("%s:%d:%d:%s:%s", t.Path, t.StartLine, t.EndLine, t.SHA256, t.ChunkID)
}

// Record is one ledger entry: the segments a unit covered plus enough
// request metadata to audit the run.
type Record struct {
	Commit       string         `json:"commit"`
	Files        []Target       `json:"files"`
	Model        string         `json:"model"`
	APIURL       string         `json:"api_url"`
	MaxContext   int            `json:"max_context"`
	PromptHash   string         `json:"prompt_hash"`
	Tokens       map[string]int `json:"tokens"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	TS           string         `json:"ts"`
}

// Stats summarizes coverage for one file or directory.
type Stats struct {
	TotalSegments   int     `json:"total_segments"`
	CoveredSegments int     `json:"covered_segments"`
	CoverageRatio   float64 `json:"coverage_ratio"`
}

// Report is the computed coverage summary.
type Report struct {
	Commit          string           `json:"commit"`
	Timestamp       string           `json:"timestamp"`
	TotalSegments   int              `json:"total_segments"`
	CoveredSegments int              `json:"covered_segments"`
	MissedSegments  int              `json:"missed_segments"`
	CoverageRatio   float64          `json:"coverage_ratio"`
	Files           map[string]Stats `json:"files"`
	Directories     map[string]Stats `json:"directories"`
	Missed          []Target         `json:"missed"`
}

// Ledger accumulates targets and covered segments for one commit. Records
// from earlier runs on the same commit are loaded on open, so repeated
// partial runs converge on full coverage.
type Ledger struct {
	dir     string
	commit  string
	targets map[string]Target
	covered map[string]bool
}

// Open prepares the coverage directory under codeDir and loads any existing
// ledger records for the given commit.
func Open(codeDir, commit string) (*Ledger, error) {
	dir := filepath.Join(codeDir, "coverage")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating coverage dir: %w", err)
	}

	l := &Ledger{
		dir:     dir,
		commit:  commit,
		targets: make(map[string]Target),
		covered: make(map[string]bool),
	}
	if err := l.loadExisting(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) loadExisting() error {
	f, err := os.Open(filepath.Join(l.dir, ledgerFilename))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Warn().Err(err).Msg("skipping malformed ledger line")
			continue
		}
		if rec.Commit != l.commit {
			continue
		}
		if rec.Status == "ok" {
			for _, t := range rec.Files {
				l.covered[t.Key()] = true
			}
		}
	}
	return scanner.Err()
}

// Register adds segments that the current run is expected to cover.
func (l *Ledger) Register(targets ...Target) {
	for _, t := range targets {
		l.targets[t.Key()] = t
	}
}

// Append writes one record to the ledger and marks its segments covered
// when the unit succeeded.
func (l *Ledger) Append(rec Record) error {
	rec.Commit = l.commit
	rec.TS = time.Now().UTC().Format(time.RFC3339)

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(l.dir, ledgerFilename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}

	if rec.Status == "ok" {
		for _, t := range rec.Files {
			l.covered[t.Key()] = true
		}
	}
	return nil
}

// BuildReport computes the coverage report and writes report.json,
// report.md, and badge.json into the coverage directory.
func (l *Ledger) BuildReport() (*Report, error) {
	report := &Report{
		Commit:      l.commit,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Files:       make(map[string]Stats),
		Directories: make(map[string]Stats),
	}

	report.TotalSegments = len(l.targets)

	var missedKeys []string
	for key := range l.targets {
		if l.covered[key] {
			report.CoveredSegments++
		} else {
			missedKeys = append(missedKeys, key)
		}
	}
	sort.Strings(missedKeys)
	report.MissedSegments = len(missedKeys)
	for _, key := range missedKeys {
		report.Missed = append(report.Missed, l.targets[key])
	}

	if report.TotalSegments > 0 {
		report.CoverageRatio = float64(report.CoveredSegments) / float64(report.TotalSegments)
	} else {
		report.CoverageRatio = 1.0
	}

	perFile := make(map[string]*Stats)
	for key, t := range l.targets {
		s, ok := perFile[t.Path]
		if !ok {
			s = &Stats{}
			perFile[t.Path] = s
		}
		s.TotalSegments++
		if l.covered[key] {
			s.CoveredSegments++
		}
	}
	for p, s := range perFile {
		s.CoverageRatio = ratio(s.CoveredSegments, s.TotalSegments)
		report.Files[p] = *s

		dir := path.Dir(p)
		d := report.Directories[dir]
		d.TotalSegments += s.TotalSegments
		d.CoveredSegments += s.CoveredSegments
		report.Directories[dir] = d
	}
	for dir, d := range report.Directories {
		d.CoverageRatio = ratio(d.CoveredSegments, d.TotalSegments)
		report.Directories[dir] = d
	}

	if err := l.writeJSON(reportJSONFilename, report); err != nil {
		return nil, err
	}
	if err := l.writeMarkdown(report); err != nil {
		return nil, err
	}
	badge := map[string]string{
		"label":   "coverage",
		"message": "pass",
		"status":  "pass",
	}
	if report.MissedSegments > 0 {
		badge["message"] = "miss"
		badge["status"] = "fail"
	}
	if err := l.writeJSON(badgeFilename, badge); err != nil {
		return nil, err
	}
	return report, nil
}

func ratio(covered, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(covered) / float64(total)
}

func (l *Ledger) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.dir, name), b, 0o644)
}

func (l *Ledger) writeMarkdown(report *Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Coverage Report (commit: %s)\n\n", report.Commit)
	fmt.Fprintf(&sb, "- Timestamp: %s\n", report.Timestamp)
	fmt.Fprintf(&sb, "- Segments covered: %d / %d\n", report.CoveredSegments, report.TotalSegments)
	fmt.Fprintf(&sb, "- Coverage ratio: %.2f%%\n\n", report.CoverageRatio*100)

	sb.WriteString("## Directory coverage\n\n")
	sb.WriteString("| Directory | Segments | Covered | Coverage |\n")
	sb.WriteString("| --- | ---: | ---: | ---: |\n")
	for _, dir := range sortedKeys(report.Directories) {
		s := report.Directories[dir]
		fmt.Fprintf(&sb, "| %s | %d | %d | %.2f%% |\n", dir, s.TotalSegments, s.CoveredSegments, s.CoverageRatio*100)
	}

	sb.WriteString("\n## File coverage\n\n")
	sb.WriteString("| File | Segments | Covered | Coverage |\n")
	sb.WriteString("| --- | ---: | ---: | ---: |\n")
	for _, p := range sortedKeys(report.Files) {
		s := report.Files[p]
		fmt.Fprintf(&sb, "| %s | %d | %d | %.2f%% |\n", p, s.TotalSegments, s.CoveredSegments, s.CoverageRatio*100)
	}

	sb.WriteString("\n## Missed segments\n\n")
	if len(report.Missed) == 0 {
		sb.WriteString("All registered segments were reviewed.\n")
	} else {
		for _, t := range report.Missed {
			fmt.Fprintf(&sb, "- %s (lines %d-%d, chunk %s)\n", t.Path, t.StartLine, t.EndLine, t.ChunkID)
		}
	}

	return os.WriteFile(filepath.Join(l.dir, reportMDFilename), []byte(sb.String()), 0o644)
}

func sortedKeys(m map[string]Stats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
