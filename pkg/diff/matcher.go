package diff

import "strings"

// Span is a matched region of a file, 1-indexed and inclusive.
type Span struct {
	StartLine int
	EndLine   int
}

// FindAllMatches locates every non-overlapping region of fileLines that
// matches oldLines. Exact sequence matches win; when there are none,
// whitespace-normalized matches are tried; as a last resort a sliding
// fuzzy window picks the single closest region. Results are ordered by
// position; no match yields an empty slice, never an error.
func FindAllMatches(fileLines, oldLines []string) []Span {
	if len(oldLines) == 0 || len(oldLines) > len(fileLines) {
		return nil
	}

	if spans := scanWindows(fileLines, oldLines, linesEqual); len(spans) > 0 {
		return spans
	}
	if spans := scanWindows(fileLines, oldLines, linesEqualNormalized); len(spans) > 0 {
		return spans
	}
	if span, ok := bestFuzzyMatch(fileLines, oldLines); ok {
		return []Span{span}
	}
	return nil
}

// scanWindows collects non-overlapping windows where eq holds for every
// line. Earlier windows win, so overlapping later candidates are skipped.
func scanWindows(fileLines, oldLines []string, eq func(a, b string) bool) []Span {
	var spans []Span
	n := len(oldLines)
	for i := 0; i+n <= len(fileLines); i++ {
		match := true
		for j := 0; j < n; j++ {
			if !eq(fileLines[i+j], oldLines[j]) {
				match = false
				break
			}
		}
		if match {
			spans = append(spans, Span{StartLine: i + 1, EndLine: i + n})
			i += n - 1
		}
	}
	return spans
}

func linesEqual(a, b string) bool { return a == b }

func linesEqualNormalized(a, b string) bool {
	return normalizeLine(a) == normalizeLine(b)
}

// normalizeLine collapses runs of whitespace and trims the ends, so
// indentation drift and tab/space churn don't defeat a match.
func normalizeLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// bestFuzzyMatch slides oldLines over the file and scores each window by
// summed per-line edit distance. The lowest score wins, earliest position
// on ties. A score above a third of the old text's size means the agent's
// view has drifted too far to trust, and no match is reported.
func bestFuzzyMatch(fileLines, oldLines []string) (Span, bool) {
	n := len(oldLines)
	budget := 0
	for _, line := range oldLines {
		budget += len(line)
	}
	budget = budget / 3
	if budget < 2 {
		budget = 2
	}

	bestScore := -1
	bestStart := 0
	for i := 0; i+n <= len(fileLines); i++ {
		score := 0
		for j := 0; j < n; j++ {
			score += editDistance(normalizeLine(fileLines[i+j]), normalizeLine(oldLines[j]))
			if bestScore >= 0 && score > bestScore {
				break
			}
		}
		if bestScore < 0 || score < bestScore {
			bestScore = score
			bestStart = i
		}
	}

	if bestScore < 0 || bestScore > budget {
		return Span{}, false
	}
	return Span{StartLine: bestStart + 1, EndLine: bestStart + n}, true
}

// editDistance computes the Levenshtein distance between two strings
// using a rolling pair of rows.
func editDistance(a, b string) int {
	lenA, lenB := len(a), len(b)
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}
	if lenA < lenB {
		a, b = b, a
		lenA, lenB = lenB, lenA
	}

	previous := make([]int, lenB+1)
	for i := 0; i <= lenB; i++ {
		previous[i] = i
	}
	current := make([]int, lenB+1)

	for i := 1; i <= lenA; i++ {
		current[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min3(
				previous[j]+1,      // deletion
				current[j-1]+1,     // insertion
				previous[j-1]+cost, // substitution
			)
		}
		previous, current = current, previous
	}

	return previous[lenB]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
