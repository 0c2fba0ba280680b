// Package tokens approximates token counts for budget decisions. The
// estimate is a deterministic character-count heuristic, not an exact
// tokenizer; callers must keep headroom in any budget derived from it.
package tokens

// charsPerToken is a conservative average for source code and prose.
const charsPerToken = 4

// Estimate returns the approximate token count for text. It is monotonic in
// input length and stable across calls.
func Estimate(text string) int {
	return len(text) / charsPerToken
}

// EstimateLines sums the per-line estimates, matching how the splitter
// accounts for lines it accumulates into a chunk.
func EstimateLines(lines []string) int {
	total := 0
	for _, line := range lines {
		total += Estimate(line)
	}
	return total
}
