package transcript

import (
	"testing"
)

func TestSimilarityExactMatch(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"identical", "can you hear me", "can you hear me"},
		{"case and padding differ", "  Can You Hear Me ", "can you hear me"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); got != 1.0 {
				t.Fatalf("Similarity(%q, %q) = %v, want 1.0", tc.a, tc.b, got)
			}
		})
	}
}

func TestSimilarityJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"disjoint", "alpha bravo", "charlie delta", 0},
		{"partial overlap", "the quick brown fox", "the quick red fox", 0.6},
		{"short tokens ignored", "on the way home", "to the way home", 1.0},
		{"only noise tokens", "a to of", "is at on", 0},
		{"one side empty", "", "hello there", 0},
		{"both empty", "", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similarity(tc.a, tc.b); got != tc.want {
				t.Fatalf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSimilaritySymmetryAndBounds(t *testing.T) {
	pairs := [][2]string{
		{"can you hear me", "can you hear me now"},
		{"let's review the quarterly numbers", "quarterly numbers look good"},
		{"", "something"},
		{"one two three", "four five six"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("Similarity(%q, %q) = %v, out of [0,1]", p[0], p[1], ab)
		}
	}

	if got := Similarity("hello there", "hello there"); got != 1.0 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
}

func TestPhoneticSimilarityHomophones(t *testing.T) {
	// Two transcription passes often disagree on spelling while agreeing
	// on sound; the phonetic score should stay high where the plain
	// token score collapses.
	a := "can you hear the numbers"
	b := "can you here the numbers"

	plain := Similarity(a, b)
	phonetic := PhoneticSimilarity(a, b)

	if phonetic <= plain {
		t.Fatalf("PhoneticSimilarity = %v, want greater than plain %v", phonetic, plain)
	}
	if phonetic != 1.0 {
		t.Fatalf("PhoneticSimilarity(%q, %q) = %v, want 1.0", a, b, phonetic)
	}
}

func TestPhoneticSimilaritySymmetry(t *testing.T) {
	a, b := "their results were strong", "there results where strong"
	if PhoneticSimilarity(a, b) != PhoneticSimilarity(b, a) {
		t.Fatal("phonetic similarity is not symmetric")
	}
}
