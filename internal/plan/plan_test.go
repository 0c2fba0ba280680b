package plan

import (
	"strings"
	"testing"

	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

func TestBuildUnitsRouting(t *testing.T) {
	// small files batch together, a mid-size file goes alone, and a file
	// over the chunk budget gets split.
	bigContent := uniformContent(400) // 4,000 tokens
	files := map[string]string{
		"src/small1.py": "a = 1",
		"src/small2.py": "b = 2",
		"src/mid.py":    strings.Repeat("m", 2000), // 500 tokens
		"src/big.py":    bigContent,
	}
	records := []models.FileRecord{
		{Path: "src/big.py", EstimatedTokens: tokens.Estimate(bigContent)},
		{Path: "src/mid.py", EstimatedTokens: 500},
		{Path: "src/small1.py", EstimatedTokens: 1},
		{Path: "src/small2.py", EstimatedTokens: 1},
	}
	lim := Limits{
		BatchThreshold:   100,
		MaxFilesPerBatch: 5,
		BatchTokenBudget: 1000,
		ChunkTokenBudget: 1500,
	}

	units, err := BuildUnits(records, mapReader(files), lim)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	// Discovery order is preserved: big (chunked), mid (single), batch.
	if units[0].Kind != models.UnitChunkedFile {
		t.Errorf("unit 0 kind = %s, want chunked", units[0].Kind)
	}
	if len(units[0].Chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(units[0].Chunks))
	}
	if units[1].Kind != models.UnitSingleFile || units[1].File.Path != "src/mid.py" {
		t.Errorf("unit 1 = %+v, want single src/mid.py", units[1])
	}
	if units[2].Kind != models.UnitBatch || len(units[2].Batch.Files) != 2 {
		t.Errorf("unit 2 = %+v, want 2-file batch", units[2])
	}
}

func TestBuildUnitsFileAtBatchBudgetIsPromoted(t *testing.T) {
	// A file at the per-batch budget is never merged into a batch.
	records := []models.FileRecord{
		{Path: "a.py", EstimatedTokens: 1000},
		{Path: "b.py", EstimatedTokens: 10},
	}
	lim := Limits{
		BatchThreshold:   5000,
		MaxFilesPerBatch: 5,
		BatchTokenBudget: 1000,
		ChunkTokenBudget: 10000,
	}
	units, err := BuildUnits(records, mapReader(map[string]string{"a.py": "", "b.py": ""}), lim)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Kind != models.UnitSingleFile {
		t.Errorf("unit 0 kind = %s, want single", units[0].Kind)
	}
	if units[1].Kind != models.UnitBatch {
		t.Errorf("unit 1 kind = %s, want batch", units[1].Kind)
	}
}

func TestBuildUnitsEveryFileExactlyOnce(t *testing.T) {
	var records []models.FileRecord
	files := map[string]string{}
	sizes := []int{1, 5, 50, 120, 400, 999, 1000, 2500, 7}
	for i, n := range sizes {
		path := string(rune('a'+i)) + "/f.py"
		content := uniformContent(n / 10)
		if n < 10 {
			content = strings.Repeat("x", n*4)
		}
		files[path] = content
		records = append(records, models.FileRecord{Path: path, EstimatedTokens: n})
	}
	lim := Limits{
		BatchThreshold:   500,
		MaxFilesPerBatch: 3,
		BatchTokenBudget: 600,
		ChunkTokenBudget: 1200,
	}

	units, err := BuildUnits(records, mapReader(files), lim)
	if err != nil {
		t.Fatalf("BuildUnits failed: %v", err)
	}

	seen := map[string]int{}
	for _, u := range units {
		for _, p := range u.Paths() {
			seen[p]++
		}
	}
	for _, r := range records {
		if seen[r.Path] != 1 {
			t.Errorf("%s routed %d times, want exactly once", r.Path, seen[r.Path])
		}
	}
}
