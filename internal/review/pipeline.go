package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/localreview/internal/ai"
	"github.com/seanblong/localreview/internal/catalog"
	"github.com/seanblong/localreview/internal/coverage"
	"github.com/seanblong/localreview/internal/plan"
	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

// Stage names the steps of the review workflow, in fixed order.
type Stage string

const (
	StageDiscover  Stage = "DISCOVER"
	StageOverview  Stage = "OVERVIEW"
	StageBatch     Stage = "BATCH"
	StageReview    Stage = "REVIEW"
	StageAggregate Stage = "AGGREGATE"
	StageDone      Stage = "DONE"
)

// State is the workflow-scoped record threaded through the stages. Each
// stage mutates its own section and hands the state forward; nothing else
// holds a reference.
type State struct {
	Files     []models.FileRecord
	Overview  *models.RepoOverview
	Units     []models.WorkUnit
	Results   map[string][]models.Finding
	Completed int
	Total     int
	Report    *models.Report
}

// Progress is invoked after each completed work unit with monotonically
// increasing counters.
type Progress func(current, total int)

// Options configures a pipeline run.
type Options struct {
	Focus        []string
	Language     string // "en" or "ja"
	SystemPrompt string

	ContextLength    int
	BatchThreshold   int
	MaxFilesPerBatch int
	// BatchFraction is the share of the context length a batch may fill.
	// It stays well below 1.0 because token estimates are heuristic.
	BatchFraction float64

	OverviewMaxTokens int
	OverviewMaxLines  int

	MaxCompletionTokens int
	Temperature         float64
	Timeout             time.Duration
	Workers             int

	Progress Progress

	// Model and APIURL are recorded in the coverage ledger only.
	Model  string
	APIURL string
}

// Pipeline runs one review workflow. Construct a fresh pipeline per run; it
// carries no cross-run state.
type Pipeline struct {
	catalog *catalog.Catalog
	client  ai.Client
	ledger  *coverage.Ledger // nil disables coverage tracking
	opts    Options
	builder *promptBuilder

	// targets mirrors Units; populated only when the ledger is active.
	targets  [][]coverage.Target
	ledgerMu sync.Mutex
}

// New builds a pipeline. ledger may be nil.
func New(cat *catalog.Catalog, client ai.Client, ledger *coverage.Ledger, opts Options) *Pipeline {
	if opts.Language != "ja" {
		opts.Language = "en"
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxCompletionTokens <= 0 {
		opts.MaxCompletionTokens = 2000
	}
	return &Pipeline{catalog: cat, client: client, ledger: ledger, opts: opts}
}

// Run advances DISCOVER → OVERVIEW → BATCH → REVIEW → AGGREGATE → DONE. No
// stage is skipped and there is no rollback: per-unit failures are absorbed
// inside REVIEW, only fatal errors abort the run.
func (p *Pipeline) Run(ctx context.Context) (*models.Report, error) {
	state := &State{Results: make(map[string][]models.Finding)}

	stages := []struct {
		name Stage
		fn   func(context.Context, *State) error
	}{
		{StageDiscover, p.discover},
		{StageOverview, p.overview},
		{StageBatch, p.batch},
		{StageReview, p.review},
		{StageAggregate, p.aggregate},
	}

	for _, s := range stages {
		log.Info().Str("stage", string(s.name)).Msg("entering stage")
		if err := s.fn(ctx, state); err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.name, err)
		}
	}

	log.Info().Str("stage", string(StageDone)).
		Int("total_files", state.Report.TotalFiles).
		Int("files_with_issues", state.Report.FilesWithIssues).
		Msg("pipeline complete")
	return state.Report, nil
}

func (p *Pipeline) discover(ctx context.Context, state *State) error {
	files, err := p.catalog.Discover()
	if err != nil {
		return err
	}
	state.Files = files
	return nil
}

func (p *Pipeline) overview(ctx context.Context, state *State) error {
	ov, err := plan.BuildOverview(state.Files, p.catalog.Read, p.opts.OverviewMaxTokens, p.opts.OverviewMaxLines)
	if err != nil {
		return err
	}
	state.Overview = ov
	p.builder = &promptBuilder{
		focus:    p.opts.Focus,
		language: p.opts.Language,
		system:   p.opts.SystemPrompt,
		overview: ov,
	}
	return nil
}

func (p *Pipeline) batch(ctx context.Context, state *State) error {
	units, err := plan.BuildUnits(state.Files, p.catalog.Read, plan.Limits{
		BatchThreshold:   p.opts.BatchThreshold,
		MaxFilesPerBatch: p.opts.MaxFilesPerBatch,
		BatchTokenBudget: int(p.opts.BatchFraction * float64(p.opts.ContextLength)),
		ChunkTokenBudget: p.opts.ContextLength / 2,
	})
	if err != nil {
		return err
	}
	state.Units = units
	state.Total = len(units)

	if p.ledger != nil {
		p.targets = make([][]coverage.Target, len(units))
		for i, u := range units {
			p.targets[i] = p.unitTargets(u)
			p.ledger.Register(p.targets[i]...)
		}
	}
	return nil
}

// review processes units through a small worker pool. The default single
// worker preserves strict discovery order; with more workers the results
// map is still keyed by path and merged under one lock, so the final report
// is deterministic either way.
func (p *Pipeline) review(ctx context.Context, state *State) error {
	type job struct {
		idx  int
		unit models.WorkUnit
	}

	jobs := make(chan job)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome := p.processUnit(ctx, j.unit)

				mu.Lock()
				for path, findings := range outcome.findings {
					state.Results[path] = append(state.Results[path], findings...)
				}
				state.Completed++
				current, total := state.Completed, state.Total
				mu.Unlock()

				p.recordUnit(j.idx, outcome)
				if p.opts.Progress != nil {
					p.opts.Progress(current, total)
				}
			}
		}()
	}

	for i, u := range state.Units {
		jobs <- job{idx: i, unit: u}
	}
	close(jobs)
	wg.Wait()
	return nil
}

func (p *Pipeline) aggregate(ctx context.Context, state *State) error {
	state.Report = Aggregate(state.Files, state.Results)

	if p.ledger != nil {
		report, err := p.ledger.BuildReport()
		if err != nil {
			log.Warn().Err(err).Msg("failed to write coverage report")
		} else {
			log.Info().Float64("ratio", report.CoverageRatio).
				Int("missed", report.MissedSegments).
				Msg("coverage report written")
		}
	}
	return nil
}

// unitOutcome carries a processed unit's findings and ledger metadata.
type unitOutcome struct {
	findings         map[string][]models.Finding
	status           string // "ok" or "error"
	errMessage       string
	promptHash       string
	promptTokens     int
	completionTokens int
}

// processUnit performs the client calls for one unit and maps findings back
// to original file paths. All per-unit failures are absorbed here as
// synthetic findings; the returned outcome never blocks later units.
func (p *Pipeline) processUnit(ctx context.Context, unit models.WorkUnit) unitOutcome {
	switch unit.Kind {
	case models.UnitSingleFile:
		return p.processSingleFile(ctx, unit)
	case models.UnitChunkedFile:
		return p.processChunkedFile(ctx, unit)
	case models.UnitBatch:
		return p.processBatch(ctx, unit)
	}
	return unitOutcome{status: "error", errMessage: "unknown unit kind", findings: map[string][]models.Finding{}}
}

func (p *Pipeline) processSingleFile(ctx context.Context, unit models.WorkUnit) unitOutcome {
	rec := unit.File
	out := unitOutcome{findings: map[string][]models.Finding{}, status: "ok"}

	content, err := p.catalog.Read(rec.Path)
	if err != nil {
		out.status = "error"
		out.errMessage = err.Error()
		out.findings[rec.Path] = []models.Finding{syntheticFinding("failed to read file: " + err.Error())}
		return out
	}

	prompt := p.builder.filePrompt(*rec, content)
	raw, resp, err := p.call(ctx, prompt, &out)
	if err != nil {
		out.status = "error"
		out.errMessage = failureMessage(err, p.opts.Timeout)
		out.findings[rec.Path] = []models.Finding{syntheticFinding(out.errMessage)}
		return out
	}
	out.completionTokens = resp.TokensUsed
	out.findings[rec.Path] = convertFindings(raw, 0)
	return out
}

func (p *Pipeline) processChunkedFile(ctx context.Context, unit models.WorkUnit) unitOutcome {
	path := unit.Chunks[0].Path
	out := unitOutcome{findings: map[string][]models.Finding{path: {}}, status: "ok"}

	var hashes []string
	for _, ch := range unit.Chunks {
		prompt := p.builder.chunkPrompt(unit.File.Language, ch)
		raw, resp, err := p.call(ctx, prompt, &out)
		hashes = append(hashes, out.promptHash)
		if err != nil {
			msg := fmt.Sprintf("lines %d-%d: %s", ch.StartLine, ch.EndLine, failureMessage(err, p.opts.Timeout))
			out.status = "error"
			out.errMessage = msg
			out.findings[path] = append(out.findings[path], syntheticFinding(msg))
			continue
		}
		out.completionTokens += resp.TokensUsed
		// Translate chunk-relative line numbers to absolute ones.
		out.findings[path] = append(out.findings[path], convertFindings(raw, ch.StartLine-1)...)
	}
	out.promptHash = hashText(strings.Join(hashes, ","))
	return out
}

func (p *Pipeline) processBatch(ctx context.Context, unit models.WorkUnit) unitOutcome {
	batch := unit.Batch
	out := unitOutcome{findings: map[string][]models.Finding{}, status: "ok"}

	inBatch := make(map[string]bool, len(batch.Files))
	contents := make(map[string]string, len(batch.Files))
	for _, f := range batch.Files {
		inBatch[f.Path] = true
		content, err := p.catalog.Read(f.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", f.Path).Msg("failed to read batched file")
		}
		contents[f.Path] = content
		out.findings[f.Path] = []models.Finding{}
	}

	prompt := p.builder.batchPrompt(batch, contents)
	raw, resp, err := p.call(ctx, prompt, &out)
	if err != nil {
		out.status = "error"
		out.errMessage = failureMessage(err, p.opts.Timeout)
		for _, f := range batch.Files {
			out.findings[f.Path] = []models.Finding{syntheticFinding(out.errMessage)}
		}
		return out
	}
	out.completionTokens = resp.TokensUsed

	for _, r := range raw {
		target := r.File
		if !inBatch[target] {
			// Findings the responder failed to attribute go to the
			// sentinel path and are flagged for manual review.
			if target != "" {
				log.Warn().Str("file", target).Int("batch", batch.ID).
					Msg("batch finding names a file outside the batch")
			}
			target = models.UnassignedPath
		}
		out.findings[target] = append(out.findings[target], convertFindings([]rawFinding{r}, 0)...)
	}
	return out
}

// call invokes the review client with the per-unit timeout and validates
// the reply. The prompt hash and token estimate are recorded on the outcome
// for the coverage ledger.
func (p *Pipeline) call(ctx context.Context, userPrompt string, out *unitOutcome) ([]rawFinding, ai.Response, error) {
	out.promptHash = hashText(userPrompt)
	out.promptTokens += tokens.Estimate(userPrompt)

	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	resp, err := p.client.Review(callCtx, ai.Request{
		SystemPrompt: p.builder.systemPrompt(),
		UserPrompt:   userPrompt,
		MaxTokens:    p.opts.MaxCompletionTokens,
		Temperature:  p.opts.Temperature,
	})
	if err != nil {
		return nil, ai.Response{}, err
	}

	raw, err := parseFindings(resp.Content)
	if err != nil {
		return nil, resp, err
	}
	return raw, resp, nil
}

// failureMessage maps an error to the per-unit failure classes: timeout,
// invalid response, or transport.
func failureMessage(err error, timeout time.Duration) string {
	var invalid *ResponseInvalidError
	var transport *ai.TransportError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("review timed out after %s", timeout)
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &transport):
		return transport.Error()
	default:
		return "review failed: " + err.Error()
	}
}

// syntheticFinding is the placeholder recorded for a failed unit. The zero
// risk score marks it as synthetic rather than a model finding.
func syntheticFinding(message string) models.Finding {
	return models.Finding{
		Severity:  models.SeverityError,
		RiskScore: 0,
		Message:   message,
	}
}

func convertFindings(raw []rawFinding, lineOffset int) []models.Finding {
	out := make([]models.Finding, 0, len(raw))
	for _, r := range raw {
		f := models.Finding{
			Severity:  models.Severity(r.Severity),
			RiskScore: r.RiskScore,
			Message:   r.Message,
		}
		if r.Line != nil {
			line := *r.Line + lineOffset
			f.Line = &line
		}
		out = append(out, f)
	}
	return out
}

// unitTargets builds the coverage segments for one unit.
func (p *Pipeline) unitTargets(unit models.WorkUnit) []coverage.Target {
	var targets []coverage.Target
	switch unit.Kind {
	case models.UnitSingleFile:
		if t, ok := p.fileTarget(unit.File.Path); ok {
			targets = append(targets, t)
		}
	case models.UnitChunkedFile:
		if len(unit.Chunks) == 0 {
			break
		}
		content, err := p.catalog.Read(unit.Chunks[0].Path)
		if err != nil {
			break
		}
		sha := hashText(content)
		for _, ch := range unit.Chunks {
			targets = append(targets, coverage.Target{
				Path:      ch.Path,
				SHA256:    sha,
				StartLine: ch.StartLine,
				EndLine:   ch.EndLine,
				ChunkID:   fmt.Sprintf("%s#%s@%d", ch.Path, sha, ch.Index),
			})
		}
	case models.UnitBatch:
		for _, f := range unit.Batch.Files {
			if t, ok := p.fileTarget(f.Path); ok {
				targets = append(targets, t)
			}
		}
	}
	return targets
}

func (p *Pipeline) fileTarget(path string) (coverage.Target, bool) {
	content, err := p.catalog.Read(path)
	if err != nil {
		return coverage.Target{}, false
	}
	sha := hashText(content)
	return coverage.Target{
		Path:      path,
		SHA256:    sha,
		StartLine: 1,
		EndLine:   strings.Count(content, "\n") + 1,
		ChunkID:   fmt.Sprintf("%s#%s@0", path, sha),
	}, true
}

// recordUnit appends the unit's ledger entry; serialized because Append
// writes to a shared file.
func (p *Pipeline) recordUnit(idx int, out unitOutcome) {
	if p.ledger == nil {
		return
	}
	p.ledgerMu.Lock()
	defer p.ledgerMu.Unlock()

	err := p.ledger.Append(coverage.Record{
		Files:      p.targets[idx],
		Model:      p.opts.Model,
		APIURL:     p.opts.APIURL,
		MaxContext: p.opts.ContextLength,
		PromptHash: out.promptHash,
		Tokens: map[string]int{
			"prompt_est":     out.promptTokens,
			"completion_est": out.completionTokens,
		},
		Status:       out.status,
		ErrorMessage: out.errMessage,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to append coverage record")
	}
}

func hashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
