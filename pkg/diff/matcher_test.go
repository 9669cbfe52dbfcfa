package diff

import "testing"

var sampleFile = []string{
	"package main",
	"",
	"func add(a, b int) int {",
	"	return a + b",
	"}",
	"",
	"func sub(a, b int) int {",
	"	return a - b",
	"}",
}

func TestFindAllMatchesExact(t *testing.T) {
	spans := FindAllMatches(sampleFile, []string{"func add(a, b int) int {", "	return a + b", "}"})
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].StartLine != 3 || spans[0].EndLine != 5 {
		t.Errorf("span = %+v, want 3..5", spans[0])
	}
}

func TestFindAllMatchesMultiple(t *testing.T) {
	file := []string{"a", "x", "a", "x", "a"}
	spans := FindAllMatches(file, []string{"a"})
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	if spans[0].StartLine != 1 || spans[1].StartLine != 3 || spans[2].StartLine != 5 {
		t.Errorf("spans = %+v", spans)
	}
}

func TestFindAllMatchesNonOverlapping(t *testing.T) {
	file := []string{"a", "a", "a"}
	spans := FindAllMatches(file, []string{"a", "a"})
	// The first window claims lines 1-2; line 3 alone cannot match.
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(spans), spans)
	}
	if spans[0].StartLine != 1 || spans[0].EndLine != 2 {
		t.Errorf("span = %+v", spans[0])
	}
}

func TestFindAllMatchesWhitespaceNormalized(t *testing.T) {
	// Agent remembers spaces where the file has a tab.
	spans := FindAllMatches(sampleFile, []string{"    return a + b"})
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].StartLine != 4 {
		t.Errorf("span = %+v, want line 4", spans[0])
	}
}

func TestFindAllMatchesFuzzy(t *testing.T) {
	// One identifier renamed since the agent last read the file.
	spans := FindAllMatches(sampleFile, []string{"func add(x, b int) int {", "	return x + b", "}"})
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].StartLine != 3 || spans[0].EndLine != 5 {
		t.Errorf("span = %+v, want 3..5", spans[0])
	}
}

func TestFindAllMatchesFuzzyEarliestWins(t *testing.T) {
	file := []string{"value := 1", "other", "value := 1"}
	spans := FindAllMatches(file, []string{"value := 2"})
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].StartLine != 1 {
		t.Errorf("tie must resolve to the earliest position, got %+v", spans[0])
	}
}

func TestFindAllMatchesRejectsDistantText(t *testing.T) {
	spans := FindAllMatches(sampleFile, []string{"completely unrelated content here"})
	if len(spans) != 0 {
		t.Errorf("expected no match, got %+v", spans)
	}
}

func TestFindAllMatchesDegenerate(t *testing.T) {
	if spans := FindAllMatches(sampleFile, nil); spans != nil {
		t.Errorf("empty needle: %+v", spans)
	}
	if spans := FindAllMatches([]string{"a"}, []string{"a", "b"}); spans != nil {
		t.Errorf("needle longer than file: %+v", spans)
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
