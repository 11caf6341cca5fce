package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// minTokenLen is the shortest token length that participates in similarity
// scoring. Shorter tokens ("a", "to", "is") are noise words that inflate
// scores between unrelated utterances.
const minTokenLen = 3

// Similarity computes a symmetric textual-similarity score in [0, 1]
// between two short utterances.
//
// Both strings are lowercased and trimmed; an exact match after
// normalization scores 1.0. Otherwise the score is the Jaccard index
// (intersection over union) of the whitespace-token sets, after discarding
// tokens shorter than three characters. If either token set ends up empty
// the score is 0.
func Similarity(a, b string) float64 {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))

	if na == nb {
		if na == "" {
			return 0
		}
		return 1.0
	}

	return jaccard(tokenSet(na), tokenSet(nb))
}

// PhoneticSimilarity computes the same Jaccard score as Similarity but
// compares tokens by their Double Metaphone codes instead of their spelling.
// Two independent ASR passes over the same audio frequently disagree on
// homophones ("hear"/"here", "their"/"there"); phonetic codes collapse those
// so an echoed utterance still scores high.
func PhoneticSimilarity(a, b string) float64 {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))

	if na == nb {
		if na == "" {
			return 0
		}
		return 1.0
	}

	return jaccard(codeSet(na), codeSet(nb))
}

// tokenSet returns the set of whitespace-delimited tokens of s that meet
// the minimum length.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		if len(tok) < minTokenLen {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// codeSet returns the set of Double Metaphone codes for the tokens of s
// that meet the minimum length. Tokens that produce no code (no consonant
// content) are excluded.
func codeSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		if len(tok) < minTokenLen {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(tok)
		if primary != "" {
			set[primary] = struct{}{}
		}
		if secondary != "" {
			set[secondary] = struct{}{}
		}
	}
	return set
}

// jaccard returns the intersection-over-union of two sets, or 0 when either
// set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}
