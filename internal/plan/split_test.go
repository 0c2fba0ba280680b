package plan

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seanblong/localreview/internal/tokens"
	"github.com/seanblong/localreview/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// uniformContent builds n lines of exactly 40 characters (10 estimated
// tokens) each.
func uniformContent(n int) string {
	line := strings.Repeat("x", 40)
	lines := make([]string, n)
	for i := range lines {
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func TestSplitCeilingDivision(t *testing.T) {
	// 5000 lines at 10 tokens each is 50,000 tokens; a 20,000-token budget
	// must yield exactly 3 chunks.
	content := uniformContent(5000)
	rec := models.FileRecord{Path: "big.py", EstimatedTokens: tokens.Estimate(content)}

	chunks, err := Split(rec, content, 20000)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantRanges := [][2]int{{1, 2000}, {2001, 4000}, {4001, 5000}}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has Index %d", i, ch.Index)
		}
		if ch.TotalChunks != 3 {
			t.Errorf("chunk %d TotalChunks = %d, want 3", i, ch.TotalChunks)
		}
		if ch.StartLine != wantRanges[i][0] || ch.EndLine != wantRanges[i][1] {
			t.Errorf("chunk %d range = %d-%d, want %d-%d",
				i, ch.StartLine, ch.EndLine, wantRanges[i][0], wantRanges[i][1])
		}
	}
}

func TestSplitReconstruction(t *testing.T) {
	tests := []struct {
		name    string
		content string
		budget  int
	}{
		{"uniform", uniformContent(500), 300},
		{"ragged", "a\n" + strings.Repeat("y", 200) + "\n\nshort\n" + strings.Repeat("z", 90), 30},
		{"trailing newline", "one\ntwo\nthree\n", 1},
		{"single line", "just one line", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.FileRecord{Path: "f.py"}
			chunks, err := Split(rec, tt.content, tt.budget)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}

			texts := make([]string, len(chunks))
			for i, ch := range chunks {
				texts[i] = ch.Text
			}
			if got := strings.Join(texts, "\n"); got != tt.content {
				t.Errorf("reconstruction mismatch:\ngot:  %q\nwant: %q", got, tt.content)
			}

			// Contiguous, non-overlapping line coverage.
			next := 1
			for i, ch := range chunks {
				if ch.StartLine != next {
					t.Errorf("chunk %d starts at %d, want %d", i, ch.StartLine, next)
				}
				if ch.EndLine < ch.StartLine {
					t.Errorf("chunk %d has inverted range %d-%d", i, ch.StartLine, ch.EndLine)
				}
				next = ch.EndLine + 1
			}
			if wantLines := strings.Count(tt.content, "\n") + 1; next-1 != wantLines {
				t.Errorf("chunks cover %d lines, file has %d", next-1, wantLines)
			}
		})
	}
}

func TestSplitOversizedLine(t *testing.T) {
	// A single line over the budget is still emitted, never dropped.
	huge := strings.Repeat("q", 400) // 100 tokens
	content := "small\n" + huge + "\nsmall"

	chunks, err := Split(models.FileRecord{Path: "f.py"}, content, 10)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, huge) {
			found = true
		}
	}
	if !found {
		t.Error("oversized line was dropped")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if strings.Join(texts, "\n") != content {
		t.Error("reconstruction mismatch with oversized line")
	}
}
