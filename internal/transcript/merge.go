package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// mergeWindowChars bounds the suffix scan in MergeAppend. Streaming ASR
// overlap never spans more than a sentence or two, so scanning the whole
// accumulated utterance would be wasted work.
const mergeWindowChars = 200

// MergeAppend integrates a new final fragment from a source into that
// source's accumulated utterance, deduplicating the overlapping region that
// streaming ASR re-sends between consecutive windows.
//
// The longest suffix of existing (within the last mergeWindowChars
// characters) that case-insensitively equals a prefix of next is dropped
// from next before appending; a single space separates the remainder if
// existing does not already end in whitespace. If existing already ends
// with next in full, next is entirely redundant and existing is returned
// unchanged.
func MergeAppend(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return next
	}

	if len(next) <= len(existing) && strings.EqualFold(existing[len(existing)-len(next):], next) {
		return existing
	}

	window := existing
	if len(window) > mergeWindowChars {
		window = window[len(window)-mergeWindowChars:]
	}

	// Scan ascending and keep overwriting so the final match is the
	// maximal overlap. Folding per candidate window keeps the indexes in
	// original-case bytes, so the remainder slice below can never split a
	// rune the way a ToLower copy with shifted byte lengths could.
	overlap := 0
	maxLen := len(window)
	if len(next) < maxLen {
		maxLen = len(next)
	}
	for n := 1; n <= maxLen; n++ {
		if n < len(next) && !utf8.RuneStart(next[n]) {
			continue
		}
		if strings.EqualFold(window[len(window)-n:], next[:n]) {
			overlap = n
		}
	}

	remainder := next[overlap:]
	if remainder == "" {
		return existing
	}

	if endsInWhitespace(existing) {
		return existing + strings.TrimLeft(remainder, " ")
	}
	if strings.HasPrefix(remainder, " ") {
		return existing + remainder
	}
	return existing + " " + remainder
}

func endsInWhitespace(s string) bool {
	if s == "" {
		return false
	}
	return unicode.IsSpace(rune(s[len(s)-1]))
}
