package transcript

import (
	"strings"
	"testing"
)

func TestMergeAppend(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		next     string
		want     string
	}{
		{
			name:     "overlap deduplicated",
			existing: "I went to the",
			next:     "the store today",
			want:     "I went to the store today",
		},
		{
			name:     "full redundancy is a no-op",
			existing: "hello world",
			next:     "hello world",
			want:     "hello world",
		},
		{
			name:     "empty next returns existing",
			existing: "keep this",
			next:     "   ",
			want:     "keep this",
		},
		{
			name:     "empty existing returns trimmed next",
			existing: "  ",
			next:     " fresh start ",
			want:     "fresh start",
		},
		{
			name:     "no overlap gets space separator",
			existing: "first sentence",
			next:     "second sentence",
			want:     "first sentence second sentence",
		},
		{
			name:     "case-insensitive suffix redundancy",
			existing: "We agreed on Friday",
			next:     "we agreed on friday",
			want:     "We agreed on Friday",
		},
		{
			name:     "case-insensitive overlap",
			existing: "meet me at The Office",
			next:     "the office at noon",
			want:     "meet me at The Office at noon",
		},
		{
			name:     "multi-word overlap",
			existing: "let's go over the action items",
			next:     "the action items from last week",
			want:     "let's go over the action items from last week",
		},
		{
			name:     "existing ends in whitespace",
			existing: "trailing space ",
			next:     "next part",
			want:     "trailing space next part",
		},
		{
			// U+0130 shrinks under ToLower, so overlap indexes computed
			// on a lowered copy would slice the original mid-rune.
			name:     "multibyte rune overlap keeps rune intact",
			existing: "see you İstanbul",
			next:     "İstanbul tomorrow",
			want:     "see you İstanbul tomorrow",
		},
		{
			name:     "multibyte rune full redundancy",
			existing: "uçağa biniyorum İstanbul",
			next:     "İstanbul",
			want:     "uçağa biniyorum İstanbul",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MergeAppend(tc.existing, tc.next); got != tc.want {
				t.Fatalf("MergeAppend(%q, %q) = %q, want %q", tc.existing, tc.next, got, tc.want)
			}
		})
	}
}

func TestMergeAppendWindowBound(t *testing.T) {
	// Overlap detection only looks at the last mergeWindowChars characters
	// of existing, so a "redundant" fragment that matches far earlier text
	// is appended rather than dropped.
	early := "unique opening phrase"
	padding := strings.Repeat("filler words and more filler ", 10)
	existing := early + " " + padding

	got := MergeAppend(existing, early)
	if !strings.HasSuffix(got, early) {
		t.Fatalf("fragment matching pre-window text should be appended, got %q", got)
	}
	if got == existing {
		t.Fatal("fragment matching pre-window text was incorrectly treated as redundant")
	}
}

func TestMergeAppendOverlapLongerThanNext(t *testing.T) {
	// next shorter than the window; the whole of next overlaps a suffix of
	// existing but existing continues past it, so suffix check fails and
	// the overlap scan keeps the maximal match.
	got := MergeAppend("one two three", "three four")
	if got != "one two three four" {
		t.Fatalf("got %q, want %q", got, "one two three four")
	}
}
