package review

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func TestParseFindings(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantCount  int
		wantErr    bool
		wantReason string
	}{
		{
			name:      "valid document",
			content:   `{"reviews": [{"line": 4, "severity": "warning", "risk_score": 5, "message": "unchecked error"}], "summary": "ok"}`,
			wantCount: 1,
		},
		{
			name:      "empty reviews accepted",
			content:   `{"reviews": [], "summary": "clean"}`,
			wantCount: 0,
		},
		{
			name: "fenced json accepted",
			content: "```json\n" +
				`{"reviews": [{"line": null, "severity": "info", "risk_score": 2, "message": "style"}]}` +
				"\n```",
			wantCount: 1,
		},
		{
			name:       "missing reviews field rejected",
			content:    `{"summary": "no list"}`,
			wantErr:    true,
			wantReason: "missing reviews field",
		},
		{
			name:       "malformed json rejected",
			content:    `reviews: none`,
			wantErr:    true,
			wantReason: "malformed JSON",
		},
		{
			name:       "unknown severity rejected",
			content:    `{"reviews": [{"line": 1, "severity": "critical", "risk_score": 5, "message": "x"}]}`,
			wantErr:    true,
			wantReason: `unknown severity "critical"`,
		},
		{
			name:       "risk score above range rejects whole reply",
			content:    `{"reviews": [{"line": 1, "severity": "error", "risk_score": 11, "message": "x"}]}`,
			wantErr:    true,
			wantReason: "risk_score 11 outside 1-10",
		},
		{
			name:       "risk score below range rejected",
			content:    `{"reviews": [{"line": 1, "severity": "error", "risk_score": 0, "message": "x"}]}`,
			wantErr:    true,
			wantReason: "risk_score 0 outside 1-10",
		},
		{
			name:       "empty message rejected",
			content:    `{"reviews": [{"line": 1, "severity": "error", "risk_score": 3, "message": "  "}]}`,
			wantErr:    true,
			wantReason: "empty message",
		},
		{
			name: "one bad finding rejects valid siblings",
			content: `{"reviews": [
				{"line": 1, "severity": "error", "risk_score": 3, "message": "fine"},
				{"line": 2, "severity": "error", "risk_score": 11, "message": "too risky"}
			]}`,
			wantErr:    true,
			wantReason: "risk_score 11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFindings(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d findings", len(got))
				}
				var invalid *ResponseInvalidError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected ResponseInvalidError, got %T: %v", err, err)
				}
				if !strings.Contains(invalid.Reason, tt.wantReason) {
					t.Errorf("reason %q does not contain %q", invalid.Reason, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFindings: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("got %d findings, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestParseFindingsBatchAttribution(t *testing.T) {
	content := `{"reviews": [{"file": "pkg/a.py", "line": 7, "severity": "warning", "risk_score": 6, "message": "leaked handle"}]}`
	got, err := parseFindings(content)
	if err != nil {
		t.Fatalf("parseFindings: %v", err)
	}
	if len(got) != 1 || got[0].File != "pkg/a.py" {
		t.Fatalf("expected file attribution to survive parsing, got %+v", got)
	}
	if got[0].Line == nil || *got[0].Line != 7 {
		t.Errorf("expected line 7, got %v", got[0].Line)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"language fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"unterminated fence", "```json\n{\"a\": 1}", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.content); got != tt.want {
				t.Errorf("stripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}
