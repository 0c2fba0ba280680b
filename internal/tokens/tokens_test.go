package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "abc", 0},
		{"exact", "abcd", 1},
		{"longer", strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMonotonic(t *testing.T) {
	prev := 0
	for i := 0; i < 1000; i += 7 {
		got := Estimate(strings.Repeat("a", i))
		if got < prev {
			t.Fatalf("Estimate not monotonic at length %d: %d < %d", i, got, prev)
		}
		prev = got
	}
}

func TestEstimateStable(t *testing.T) {
	text := strings.Repeat("package main\n", 50)
	first := Estimate(text)
	for i := 0; i < 10; i++ {
		if got := Estimate(text); got != first {
			t.Fatalf("Estimate changed between calls: %d != %d", got, first)
		}
	}
}

func TestEstimateLines(t *testing.T) {
	lines := []string{"abcdefgh", "ijkl", ""}
	if got := EstimateLines(lines); got != 3 {
		t.Errorf("EstimateLines = %d, want 3", got)
	}
}
